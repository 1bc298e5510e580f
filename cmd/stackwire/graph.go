package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schedulegen/stackwire-go/internal/graph"
)

func newGraphCmd(e *env) *cobra.Command {
	var (
		outputFormat  string
		clusterByType bool
		showWaves     bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate a graph of resource dependencies",
		Long: `Generate a DOT or Mermaid graph showing resource dependencies.

The output can be rendered with Graphviz:
    stackwire graph | dot -Tpng -o deps.png

Or used in GitHub markdown (Mermaid format):
    stackwire graph -f mermaid

Examples:
    stackwire graph -c              # cluster by service
    stackwire graph -w              # label provisioning waves`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var format graph.Format
			switch outputFormat {
			case "dot":
				format = graph.FormatDOT
			case "mermaid":
				format = graph.FormatMermaid
			default:
				return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", outputFormat)
			}

			stack, err := e.declare()
			if err != nil {
				return err
			}
			gen := &graph.Generator{
				Format:        format,
				ClusterByType: clusterByType,
				ShowWaves:     showWaves,
			}
			return gen.Generate(graph.FromStack(stack), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVarP(&clusterByType, "cluster", "c", false, "Cluster resources by AWS service")
	cmd.Flags().BoolVarP(&showWaves, "waves", "w", false, "Label nodes with their provisioning wave")

	return cmd
}
