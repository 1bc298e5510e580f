// Package graph builds the explicit dependency graph of a stack and renders it
// as DOT or Mermaid.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
)

// Node is one declared resource.
type Node struct {
	ID   string         `json:"id"`
	Kind stackwire.Kind `json:"kind"`
	Type string         `json:"type"`
}

// Edge points from a dependent resource to the resource it references.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a resource dependency graph. Nodes and edges are kept sorted so two
// graphs built from equivalent declarations compare equal.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// FromStack builds the graph of the resources declared in stack.
func FromStack(stack *construct.Stack) *Graph {
	var nodes []Node
	var edges []Edge
	for _, r := range stack.Resources() {
		nodes = append(nodes, Node{ID: r.ID(), Kind: r.Kind(), Type: r.ResourceType()})
		for _, dep := range r.Dependencies() {
			edges = append(edges, Edge{From: r.ID(), To: dep})
		}
	}
	return New(nodes, edges)
}

// New builds a graph from explicit nodes and edges.
func New(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		Nodes: append([]Node(nil), nodes...),
		Edges: append([]Edge(nil), edges...),
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	return g
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// DependenciesOf returns the ids id depends on.
func (g *Graph) DependenciesOf(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	return out
}

// DependentsOf returns the ids that depend on id.
func (g *Graph) DependentsOf(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.To == id {
			out = append(out, e.From)
		}
	}
	return out
}

// EdgesTouching counts edges with id at either end.
func (g *Graph) EdgesTouching(id string) int {
	n := 0
	for _, e := range g.Edges {
		if e.From == id || e.To == id {
			n++
		}
	}
	return n
}

// Validate checks that every edge ends at a known node and that the graph is acyclic.
func (g *Graph) Validate() error {
	known := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if known[n.ID] {
			return fmt.Errorf("duplicate node %q", n.ID)
		}
		known[n.ID] = true
	}
	for _, e := range g.Edges {
		if !known[e.From] {
			return fmt.Errorf("edge %s -> %s: unknown resource %q", e.From, e.To, e.From)
		}
		if !known[e.To] {
			return fmt.Errorf("edge %s -> %s: unknown resource %q", e.From, e.To, e.To)
		}
	}
	_, err := g.TopologicalOrder()
	return err
}

// TopologicalOrder returns node ids with every dependency before its dependents.
func (g *Graph) TopologicalOrder() ([]string, error) {
	waves, err := g.Waves()
	if err != nil {
		return nil, err
	}
	var order []string
	for _, w := range waves {
		order = append(order, w...)
	}
	return order, nil
}

// Waves groups nodes into provisioning levels. Nodes in one wave only depend on
// nodes in earlier waves, so a wave can be provisioned in parallel.
func (g *Graph) Waves() ([][]string, error) {
	dependents := make(map[string][]string)
	inDegree := make(map[string]int)

	for _, n := range g.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		_, fromKnown := inDegree[e.From]
		_, toKnown := inDegree[e.To]
		if !fromKnown || !toKnown {
			continue
		}
		dependents[e.To] = append(dependents[e.To], e.From)
		inDegree[e.From]++
	}

	// Kahn's algorithm, one level at a time
	var current []string
	for id, degree := range inDegree {
		if degree == 0 {
			current = append(current, id)
		}
	}
	sort.Strings(current)

	var waves [][]string
	visited := 0
	for len(current) > 0 {
		waves = append(waves, current)
		visited += len(current)

		var next []string
		for _, id := range current {
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		current = next
	}

	if visited != len(g.Nodes) {
		return nil, g.detectCycle()
	}
	return waves, nil
}

// detectCycle finds and reports a cycle in the dependency graph.
func (g *Graph) detectCycle() error {
	visited := make(map[string]bool)
	onPath := make(map[string]bool)
	var stack []string

	var cycle []string
	var findCycle func(node string) bool
	findCycle = func(node string) bool {
		visited[node] = true
		onPath[node] = true
		stack = append(stack, node)

		for _, dep := range g.DependenciesOf(node) {
			if _, exists := g.Node(dep); !exists {
				continue
			}
			if onPath[dep] {
				for i, id := range stack {
					if id == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						break
					}
				}
				return true
			}
			if !visited[dep] && findCycle(dep) {
				return true
			}
		}

		onPath[node] = false
		stack = stack[:len(stack)-1]
		return false
	}

	for _, n := range g.Nodes {
		if !visited[n.ID] && findCycle(n.ID) {
			break
		}
	}

	if len(cycle) > 0 {
		return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " -> "))
	}
	return errors.New("circular dependency detected")
}
