// Command stackwire synthesizes, deploys and inspects the schedule generator stack.
//
// Usage:
//
//	stackwire synth                 Print the CloudFormation template
//	stackwire graph -f mermaid      Render the dependency graph
//	stackwire diff                  Compare the declared stack with its last deployment
//	stackwire deploy                Provision the stack on the configured backend
//	stackwire invoke /schedules     Send a request through the gateway (memory backend)
//	stackwire version               Show version
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/infra"
	"github.com/schedulegen/stackwire-go/internal/config"
	"github.com/schedulegen/stackwire-go/internal/tracing"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is the state shared by every subcommand.
type env struct {
	envFile string
	stackID string
	backend string

	cfg      *config.Config
	log      zerolog.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:   "stackwire",
		Short: "Deploy the schedule generator stack",
		Long: `stackwire declares the schedule generator stack in Go: a versioned bucket,
a function packaged from ./app and a REST API proxying every request to it.

Configuration is read from the environment and an optional .env file:

    STACKWIRE_BACKEND=memory|aws|minio
    STACKWIRE_STATE_DRIVER=sqlite3|postgres|memory
    STACKWIRE_LOG_LEVEL=debug

Then synthesize or deploy:

    stackwire synth
    stackwire deploy`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return e.close(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&e.envFile, "env-file", ".env", "Dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVarP(&e.stackID, "stack", "s", infra.StackID, "Stack to operate on")
	rootCmd.PersistentFlags().StringVar(&e.backend, "backend", "", "Override STACKWIRE_BACKEND")

	rootCmd.AddCommand(
		newSynthCmd(e),
		newGraphCmd(e),
		newDiffCmd(e),
		newValidateCmd(e),
		newOptimizeCmd(e),
		newDeployCmd(e),
		newDestroyCmd(e),
		newOutputsCmd(e),
		newListCmd(e),
		newInvokeCmd(e),
		newWatchCmd(e),
		newVersionCmd(),
	)

	return rootCmd
}

func (e *env) init(ctx context.Context) error {
	cfg, err := config.Load(e.envFile)
	if err != nil {
		return err
	}
	if e.backend != "" {
		cfg.Backend.Name = e.backend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	e.cfg = cfg

	zerolog.SetGlobalLevel(cfg.Log.LogLevel())
	if cfg.Log.JSON {
		e.log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		e.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	_, shutdown, err := tracing.InitOtel(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return err
	}
	e.shutdown = shutdown
	return nil
}

func (e *env) close(ctx context.Context) error {
	if e.shutdown == nil {
		return nil
	}
	return e.shutdown(ctx)
}

// declare builds the app and returns the selected stack.
func (e *env) declare() (*construct.Stack, error) {
	app := construct.NewApp(&construct.AppProps{Outdir: e.cfg.Synth.Outdir})
	if _, err := infra.NewGeneratorStack(app, infra.StackID, nil); err != nil {
		return nil, fmt.Errorf("declaring %s: %w", infra.StackID, err)
	}

	stack, ok := app.Stack(e.stackID)
	if !ok {
		var ids []string
		for _, s := range app.Stacks() {
			ids = append(ids, s.ID())
		}
		return nil, fmt.Errorf("unknown stack %q (declared: %v)", e.stackID, ids)
	}
	return stack, nil
}
