package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/internal/template"
)

func newSynthCmd(e *env) *cobra.Command {
	var (
		outputFormat string
		outputFile   string
		jsonResult   bool
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize the CloudFormation template",
		Long: `Synth expands the declared stack into a CloudFormation template and stages
function assets into the output directory (STACKWIRE_OUTDIR).

Examples:
    stackwire synth
    stackwire synth -f yaml
    stackwire synth --json-result
    stackwire synth -o stackwire.out/GeneratorStack.template.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := e.declare()
			if err != nil {
				return err
			}
			res, err := template.Synthesize(stack, template.Options{Outdir: e.cfg.Synth.Outdir, Logger: e.log})
			if jsonResult {
				return writeSynthResult(cmd.OutOrStdout(), res, err)
			}
			if err != nil {
				return err
			}

			var data []byte
			switch outputFormat {
			case "json":
				data, err = template.ToJSON(res.Template)
			case "yaml":
				data, err = template.ToYAML(res.Template)
			default:
				return fmt.Errorf("unknown format: %s (use 'json' or 'yaml')", outputFormat)
			}
			if err != nil {
				return err
			}

			if outputFile == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(outputFile, data, 0o644); err != nil {
				return err
			}
			e.log.Info().Str("stack", stack.ID()).Str("file", outputFile).Int("resources", len(res.Template.Resources)).Msg("synthesized")
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&jsonResult, "json-result", false, "Wrap the template in a JSON result with success and errors")

	return cmd
}

func writeSynthResult(w io.Writer, res *template.Result, synthErr error) error {
	result := stackwire.SynthResult{Success: synthErr == nil}
	if synthErr != nil {
		result.Errors = []string{synthErr.Error()}
	} else {
		result.Template = *res.Template
		result.Resources = template.ResourceNames(res.Template)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return synthErr
}
