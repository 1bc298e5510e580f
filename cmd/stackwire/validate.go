package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/schedulegen/stackwire-go/internal/validation"
)

var errValidation = errors.New("validation failed")

func newValidateCmd(e *env) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the declared stack",
		Long: `Validate checks the declared stack in two layers:
  - Structure: dependency graph is acyclic and every reference resolves
  - cfn-lint: the synthesized template passes CloudFormation lint rules

Examples:
    stackwire validate
    stackwire validate --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := e.declare()
			if err != nil {
				return err
			}
			res, err := validation.ValidateStack(stack)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch outputFormat {
			case "json":
				data, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			case "text":
				printLayer(out, "Structure", res.Structure.Passed, res.Structure.Errors, res.Structure.Warnings)
				printLayer(out, "cfn-lint", res.CfnLint.Passed, res.CfnLint.Errors, append(append([]string(nil), res.CfnLint.Warnings...), res.CfnLint.Informational...))
			default:
				return fmt.Errorf("unknown format: %s (use 'text' or 'json')", outputFormat)
			}

			if !res.Passed() {
				return errValidation
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func printLayer(w io.Writer, name string, passed bool, errs, warnings []string) {
	status := createStyle.Render("passed")
	if !passed {
		status = deleteStyle.Render("FAILED")
	}
	fmt.Fprintf(w, "%s: %s\n", headerStyle.Render(name), status)
	for _, e := range errs {
		fmt.Fprintln(w, deleteStyle.Render("  error: "+e))
	}
	for _, warn := range warnings {
		fmt.Fprintln(w, updateStyle.Render("  warning: "+warn))
	}
}
