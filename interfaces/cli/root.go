// Package cli is the datasync command tree.
package cli

import (
	"context"
	"errors"
	"fmt"

	"tattoo-datasync/application/services"
	"tattoo-datasync/pkg/report"

	"github.com/spf13/cobra"
)

// Options are the global flags.
type Options struct {
	ConfigPath string
	Exclusive  bool
	Verbose    bool
}

// App bundles the services a command needs.
type App struct {
	Exporter   *services.Exporter
	Migrations *services.MigrationRunner
	Sync       *services.Synchronizer
	Resolver   *services.ConflictResolver
	Guard      *services.RunGuard
	ExportDir  string
}

// Factory builds the App once flags are parsed.
type Factory func(ctx context.Context, opts Options) (*App, error)

// FailuresError reports a run that finished with counted failures.
type FailuresError struct {
	Operation string
	Count     int
}

func (e *FailuresError) Error() string {
	return fmt.Sprintf("%s finished with %d failure(s)", e.Operation, e.Count)
}

// IsFailures reports whether err is a FailuresError.
func IsFailures(err error) bool {
	var fe *FailuresError
	return errors.As(err, &fe)
}

type runner struct {
	opts    Options
	factory Factory
	app     *App
}

// NewRootCommand creates the datasync command tree.
func NewRootCommand(factory Factory) *cobra.Command {
	r := &runner{factory: factory}

	root := &cobra.Command{
		Use:   "datasync",
		Short: "Synchronize the tattoo directory record store and search index",
		Long: `datasync moves directory data between the DynamoDB record store and the
OpenSearch index: snapshots and backups, versioned migrations, two-way
fingerprint sync and conflict resolution.`,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&r.opts.ConfigPath, "config", "", "YAML config file (overrides defaults, overridden by environment)")
	root.PersistentFlags().BoolVar(&r.opts.Exclusive, "exclusive", false, "hold the DynamoDB run lock while mutating")
	root.PersistentFlags().BoolVarP(&r.opts.Verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newDataCommand(r), newMigrateCommand(r), newSyncCommand(r))
	return root
}

// load builds the App on first use. Usage is silenced from here on so only
// argument errors print it.
func (r *runner) load(cmd *cobra.Command) (*App, error) {
	cmd.SilenceUsage = true
	if r.app != nil {
		return r.app, nil
	}
	app, err := r.factory(cmd.Context(), r.opts)
	if err != nil {
		return nil, err
	}
	r.app = app
	return app, nil
}

// abortedRows is the table printed for a run that failed before producing
// any statistics.
var abortedRows = []report.Row{
	{Label: "Completed", Value: 0},
	{Label: "Errors", Value: 1, Failure: true},
}

// execute runs fn through the guard, prints its table whatever the outcome
// and turns counted failures into an error.
func (r *runner) execute(cmd *cobra.Command, operation, title string, mutating bool, fn services.RunFunc) (services.RunStats, error) {
	app, err := r.load(cmd)
	if err != nil {
		return nil, err
	}

	run := app.Guard.Read
	if mutating {
		run = app.Guard.Run
	}
	stats, err := run(contextOf(cmd), operation, fn)
	rows := abortedRows
	if stats != nil {
		rows = stats.Rows()
	}
	if stats != nil || err != nil {
		if perr := report.Fprint(cmd.OutOrStdout(), title, rows); perr != nil {
			return stats, perr
		}
	}
	if err != nil {
		return stats, err
	}
	if stats != nil && stats.Failures() > 0 {
		return stats, &FailuresError{Operation: operation, Count: stats.Failures()}
	}
	return stats, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// stats adapts a service result to RunStats without leaking a typed nil.
func stats[S any, P interface {
	*S
	services.RunStats
}](p P, err error) (services.RunStats, error) {
	if p == nil {
		return nil, err
	}
	return p, err
}
