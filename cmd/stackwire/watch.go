package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/internal/template"
	"github.com/schedulegen/stackwire-go/resources/lambda"
)

// newWatchCmd creates the "watch" subcommand for re-synthesizing on asset changes.
func newWatchCmd(e *env) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-synthesize when function assets change",
		Long: `Watch monitors the code asset directories of the stack's functions and
re-synthesizes the template into STACKWIRE_OUTDIR on every change.

Rapid changes are debounced so a build writing many files triggers one synth.

Examples:
    stackwire watch
    stackwire watch --debounce 1s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stack, err := e.declare()
			if err != nil {
				return err
			}
			return runWatch(ctx, e, stack, debounce, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")

	return cmd
}

// assetDirs returns the directories holding the stack's function assets.
func assetDirs(stack *construct.Stack) []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, r := range stack.Resources() {
		fn, ok := r.(*lambda.Function)
		if !ok || !fn.Code().IsAsset() {
			continue
		}
		dir := fn.Code().Resolve(stack.Props().AssetRoot)
		if strings.EqualFold(filepath.Ext(dir), ".zip") {
			dir = filepath.Dir(dir)
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func runWatch(ctx context.Context, e *env, stack *construct.Stack, debounce time.Duration, out io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dirs := assetDirs(stack)
	if len(dirs) == 0 {
		return fmt.Errorf("stack %s has no asset directories to watch", stack.ID())
	}
	for _, dir := range dirs {
		if err := addDirRecursive(watcher, dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		fmt.Fprintf(out, "Watching: %s\n", dir)
	}

	synth(e, stack, out)

	var debounceTimer *time.Timer
	rebuild := make(chan struct{}, 1)

	fmt.Fprintln(out, "\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// new subdirectories are watched too
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addDirRecursive(watcher, event.Name)
				}
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case rebuild <- struct{}{}:
				default:
				}
			})

		case <-rebuild:
			fmt.Fprintf(out, "\n[%s] Change detected, synthesizing...\n", time.Now().Format("15:04:05"))
			synth(e, stack, out)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.log.Error().Err(err).Msg("watch error")

		case <-ctx.Done():
			fmt.Fprintln(out, "\nStopping watch...")
			return nil
		}
	}
}

// addDirRecursive adds a directory and all subdirectories to the watcher.
func addDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(filepath.Base(path), ".") && path != dir {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

// synth writes the template and staged assets, reporting failures without
// stopping the watch.
func synth(e *env, stack *construct.Stack, out io.Writer) {
	res, err := template.Synthesize(stack, template.Options{Outdir: e.cfg.Synth.Outdir, Logger: e.log})
	if err != nil {
		fmt.Fprintln(out, deleteStyle.Render("Synth failed: "+err.Error()))
		return
	}
	path, err := res.WriteTemplate(e.cfg.Synth.Outdir, stack.ID())
	if err != nil {
		fmt.Fprintln(out, deleteStyle.Render("Writing template failed: "+err.Error()))
		return
	}
	for id, st := range res.Assets {
		fmt.Fprintf(out, "  %s asset %s\n", id, st.Hash[:12])
	}
	fmt.Fprintln(out, createStyle.Render(fmt.Sprintf("Synthesized %d resources to %s", len(res.Template.Resources), path)))
}
