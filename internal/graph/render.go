package graph

import (
	"io"
	"strconv"
	"strings"

	"github.com/emicklei/dot"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator renders dependency graphs.
type Generator struct {
	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByType groups resources by AWS service.
	ClusterByType bool

	// ShowWaves labels every node with its provisioning wave.
	ShowWaves bool
}

// Generate renders g and writes it to w.
func (gen *Generator) Generate(g *Graph, w io.Writer) error {
	graph, err := gen.buildGraph(g)
	if err != nil {
		return err
	}

	var output string
	if gen.Format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}

	_, err = w.Write([]byte(output))
	return err
}

// GenerateString is a convenience method that returns the rendering as a string.
func (gen *Generator) GenerateString(g *Graph) (string, error) {
	var sb strings.Builder
	if err := gen.Generate(g, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (gen *Generator) buildGraph(g *Graph) (*dot.Graph, error) {
	waveOf := make(map[string]int)
	if gen.ShowWaves {
		waves, err := g.Waves()
		if err != nil {
			return nil, err
		}
		for i, w := range waves {
			for _, id := range w {
				waveOf[id] = i
			}
		}
	}

	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")

	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	label := func(n Node) string {
		l := n.ID + "\\n[" + n.Type + "]"
		if gen.ShowWaves {
			l += "\\nwave " + strconv.Itoa(waveOf[n.ID])
		}
		return l
	}

	rendered := make(map[string]dot.Node, len(g.Nodes))

	if gen.ClusterByType {
		byService := make(map[string][]Node)
		var services []string
		for _, n := range g.Nodes {
			svc := serviceOf(n.Type)
			if _, seen := byService[svc]; !seen {
				services = append(services, svc)
			}
			byService[svc] = append(byService[svc], n)
		}
		for _, svc := range services {
			nodes := byService[svc]
			if len(nodes) == 1 {
				rendered[nodes[0].ID] = graph.Node(nodes[0].ID).Label(label(nodes[0]))
				continue
			}
			cluster := graph.Subgraph("cluster_"+svc, dot.ClusterOption{})
			cluster.Attr("label", svc)
			cluster.Attr("style", "rounded")
			for _, n := range nodes {
				rendered[n.ID] = cluster.Node(n.ID).Label(label(n))
			}
		}
	} else {
		for _, n := range g.Nodes {
			rendered[n.ID] = graph.Node(n.ID).Label(label(n))
		}
	}

	for _, e := range g.Edges {
		from, ok := rendered[e.From]
		if !ok {
			continue
		}
		to, ok := rendered[e.To]
		if !ok {
			continue
		}
		graph.Edge(from, to)
	}

	return graph, nil
}

// serviceOf extracts the service from a CloudFormation type.
// e.g., "AWS::S3::Bucket" -> "S3"
func serviceOf(cfType string) string {
	parts := strings.Split(cfType, "::")
	if len(parts) == 3 {
		return parts[1]
	}
	return "Other"
}
