package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schedulegen/stackwire-go/internal/differ"
	"github.com/schedulegen/stackwire-go/internal/state"
	"github.com/schedulegen/stackwire-go/internal/template"
)

func newDiffCmd(e *env) *cobra.Command {
	var ignoreOrder bool

	cmd := &cobra.Command{
		Use:   "diff [old-template new-template]",
		Short: "Compare the declared stack with its last deployment",
		Long: `Diff plans the declared stack against the recorded state and shows what a
deploy would create, update, replace or delete, followed by the template
changes since the last deployment.

With two arguments, two template files are compared instead.

Examples:
    stackwire diff
    stackwire diff old.json new.json
    stackwire diff old.yaml new.json --ignore-order`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 args, received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := differ.Options{IgnoreOrder: ignoreOrder}
			out := cmd.OutOrStdout()

			if len(args) == 2 {
				res, err := differ.CompareFiles(args[0], args[1], opts)
				if err != nil {
					return err
				}
				renderDiff(out, res)
				return nil
			}

			stack, err := e.declare()
			if err != nil {
				return err
			}
			d, st, err := e.deployer(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			plan, err := d.Plan(cmd.Context(), stack)
			if err != nil {
				return err
			}
			renderPlan(out, plan)

			rec, err := st.Get(cmd.Context(), stack.ID())
			if errors.Is(err, state.ErrNotFound) || (err == nil && len(rec.Template) == 0) {
				return nil
			}
			if err != nil {
				return err
			}
			deployed, err := differ.ParseTemplate(rec.Template)
			if err != nil {
				return fmt.Errorf("recorded template: %w", err)
			}
			data, err := template.ToJSON(plan.Template())
			if err != nil {
				return err
			}
			declared, err := differ.ParseTemplate(data)
			if err != nil {
				return err
			}
			res, err := differ.Compare(deployed, declared, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			renderDiff(out, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&ignoreOrder, "ignore-order", false, "Ignore array element order")

	return cmd
}
