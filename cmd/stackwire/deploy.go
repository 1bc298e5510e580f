package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	stackwire "github.com/schedulegen/stackwire-go"
)

func newDeployCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Provision the stack on the configured backend",
		Long: `Deploy plans the declared stack against its recorded state and applies the
changes wave by wave. Any failure deletes every resource created by the run;
state is recorded only when the whole stack succeeded.

Examples:
    stackwire deploy
    STACKWIRE_BACKEND=aws stackwire deploy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := e.declare()
			if err != nil {
				return err
			}
			d, st, err := e.deployer(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := d.Deploy(cmd.Context(), stack)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			renderPlan(out, res.Plan)
			renderOutputs(out, res.Record.Outputs())
			return nil
		},
	}
}

func newDestroyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "Delete every resource of a deployed stack",
		Long: `Destroy deletes the recorded resources of the stack, gateway first and
buckets last. Buckets with a Retain removal policy are left in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, st, err := e.deployer(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			retained, err := d.Destroy(cmd.Context(), e.stackID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(retained) > 0 {
				fmt.Fprintln(out, updateStyle.Render("retained: "+strings.Join(retained, ", ")))
			}
			fmt.Fprintln(out, faintStyle.Render(e.stackID+" destroyed"))
			return nil
		},
	}
}

func newOutputsCmd(e *env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "outputs",
		Short: "Show the outputs of a deployed stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, st, err := e.deployer(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			outputs, err := d.Outputs(cmd.Context(), e.stackID)
			if err != nil {
				return err
			}
			if asJSON {
				data, err := json.MarshalIndent(outputs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			renderOutputs(cmd.OutOrStdout(), outputs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print outputs as JSON")

	return cmd
}

func newListCmd(e *env) *cobra.Command {
	var declared bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded stacks",
		Long: `List shows every stack recorded in the state store. With --declared it
prints the resources declared in the selected stack as JSON instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if declared {
				return listDeclared(e, cmd.OutOrStdout())
			}
			st, err := e.store()
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), faintStyle.Render("no stacks recorded"))
				return nil
			}
			renderRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().BoolVar(&declared, "declared", false, "List the declared resources of the stack as JSON")

	return cmd
}

func listDeclared(e *env, w io.Writer) error {
	stack, err := e.declare()
	if err != nil {
		return err
	}
	result := stackwire.ListResult{Resources: []stackwire.ListResource{}}
	for _, r := range stack.Resources() {
		result.Resources = append(result.Resources, stackwire.ListResource{
			ID:           r.ID(),
			Kind:         r.Kind(),
			Type:         r.ResourceType(),
			Dependencies: r.Dependencies(),
		})
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
