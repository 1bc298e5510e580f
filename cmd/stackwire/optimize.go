package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schedulegen/stackwire-go/internal/optimizer"
)

func newOptimizeCmd(e *env) *cobra.Command {
	var (
		outputFormat string
		category     string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Suggest improvements to the declared stack",
		Long: `Optimize reviews the declared resources and suggests improvements
in four categories: security, cost, performance and reliability.

Suggestions are advice. They never fail the command.

Examples:
    stackwire optimize
    stackwire optimize --category security
    stackwire optimize -f json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := e.declare()
			if err != nil {
				return err
			}
			result, err := optimizer.Optimize(stack, optimizer.Options{Category: category})
			if err != nil {
				return err
			}
			return writeOptimizeResult(cmd.OutOrStdout(), result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVarP(&category, "category", "c", "all", "Category: all, security, cost, performance, or reliability")

	return cmd
}

func writeOptimizeResult(w io.Writer, result *optimizer.Result, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if len(result.Suggestions) == 0 {
			fmt.Fprintf(w, "Analyzed %d resources. No optimization suggestions.\n", result.ResourceCount)
			return nil
		}
		fmt.Fprintf(w, "Analyzed %d resources. Found %d suggestions:\n\n", result.ResourceCount, result.Summary.Total)

		byCat := map[string][]optimizer.Suggestion{}
		for _, s := range result.Suggestions {
			byCat[s.Category] = append(byCat[s.Category], s)
		}
		for _, cat := range optimizer.Categories {
			suggestions := byCat[cat]
			if len(suggestions) == 0 {
				continue
			}
			fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d)", strings.ToUpper(cat[:1])+cat[1:], len(suggestions))))
			for _, s := range suggestions {
				fmt.Fprintf(w, "\n%s %s\n", severityStyle(s.Severity).Render("["+s.Severity+"]"), s.Title)
				fmt.Fprintf(w, "  Resource: %s (%s)\n", s.Resource, s.Rule)
				fmt.Fprintf(w, "  %s\n", s.Description)
				fmt.Fprintf(w, "  Suggestion: %s\n", s.Suggestion)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Summary: %d security, %d cost, %d performance, %d reliability\n",
			result.Summary.Security, result.Summary.Cost,
			result.Summary.Performance, result.Summary.Reliability)

	default:
		return fmt.Errorf("unknown format: %s (use 'text' or 'json')", format)
	}
	return nil
}
