package cli

import (
	"context"
	"fmt"

	"tattoo-datasync/application/services"
	"tattoo-datasync/pkg/report"

	"github.com/spf13/cobra"
)

// maxConflictRows caps the conflict listing printed to the terminal; the
// report file always holds all of them.
const maxConflictRows = 50

func newSyncCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the record store and the search index",
	}

	toIndexCmd := &cobra.Command{
		Use:   "dynamo-to-os",
		Short: "Copy changed records from DynamoDB into OpenSearch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			_, err = r.execute(cmd, "sync:store-to-index", "DynamoDB to OpenSearch", true, func(ctx context.Context) (services.RunStats, error) {
				return stats(app.Sync.SyncStoreToIndex(ctx))
			})
			return err
		},
	}

	toStoreCmd := &cobra.Command{
		Use:   "os-to-dynamo",
		Short: "Copy changed documents from OpenSearch into DynamoDB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			_, err = r.execute(cmd, "sync:index-to-store", "OpenSearch to DynamoDB", true, func(ctx context.Context) (services.RunStats, error) {
				return stats(app.Sync.SyncIndexToStore(ctx))
			})
			return err
		},
	}

	var detectReport string
	detectCmd := &cobra.Command{
		Use:   "detect-conflicts",
		Short: "List identifiers on which the two stores disagree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			var conflicts []services.Conflict
			if _, err := r.execute(cmd, "sync:detect", "Conflicts", false, func(ctx context.Context) (services.RunStats, error) {
				found, err := app.Sync.DetectConflicts(ctx)
				if err != nil {
					return nil, err
				}
				conflicts = found
				return services.SummarizeConflicts(found), nil
			}); err != nil {
				return err
			}
			printConflicts(cmd, conflicts)
			return writeReport(cmd, app, detectReport, conflicts)
		},
	}
	detectCmd.Flags().StringVar(&detectReport, "report", "", "write the conflicts as JSON to this file")

	var resolveReport string
	resolveCmd := &cobra.Command{
		Use:   "resolve-conflicts [strategy]",
		Short: "Detect conflicts and resolve them (latest, store_wins, index_wins)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 1 {
				raw = args[0]
			}
			strategy, err := services.ParseStrategy(raw)
			if err != nil {
				return err
			}
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			var conflicts []services.Conflict
			_, err = r.execute(cmd, "sync:resolve", "Resolution ("+string(strategy)+")", true, func(ctx context.Context) (services.RunStats, error) {
				found, res, err := app.Resolver.Reconcile(ctx, app.Sync, strategy)
				conflicts = found
				return stats(res, err)
			})
			if conflicts != nil {
				if rerr := writeReport(cmd, app, resolveReport, conflicts); rerr != nil && err == nil {
					err = rerr
				}
			}
			return err
		},
	}
	resolveCmd.Flags().StringVar(&resolveReport, "report", "", "write the detected conflicts as JSON to this file")

	pointCmd := &cobra.Command{
		Use:   "sync-point <name>",
		Short: "Save counts and a state hash of both stores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			var path string
			if _, err := r.execute(cmd, "sync:point", "Sync point "+args[0], false, func(ctx context.Context) (services.RunStats, error) {
				res, err := app.Sync.CreateSyncPoint(ctx, args[0])
				if err != nil {
					return nil, err
				}
				path = res.Path
				return res, nil
			}); err != nil {
				return err
			}
			cmd.Printf("Sync point written to %s\n", path)
			return nil
		},
	}

	validatePointCmd := &cobra.Command{
		Use:   "validate-sync-point <file>",
		Short: "Compare the current state with a saved sync point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			_, err = r.execute(cmd, "sync:validate-point", "Sync point check", false, func(ctx context.Context) (services.RunStats, error) {
				return stats(app.Sync.ValidateSyncPoint(ctx, args[0]))
			})
			return err
		},
	}

	cmd.AddCommand(toIndexCmd, toStoreCmd, detectCmd, resolveCmd, pointCmd, validatePointCmd)
	return cmd
}

func printConflicts(cmd *cobra.Command, conflicts []services.Conflict) {
	if len(conflicts) == 0 {
		cmd.Println("No conflicts detected")
		return
	}
	shown := conflicts
	if len(shown) > maxConflictRows {
		shown = shown[:maxConflictRows]
	}
	rows := make([][]string, 0, len(shown))
	for _, c := range shown {
		rows = append(rows, []string{c.ID, string(c.Kind), c.StoreFingerprint, c.IndexFingerprint})
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.Table([]string{"ID", "Kind", "Store fingerprint", "Index fingerprint"}, rows))
	if more := len(conflicts) - len(shown); more > 0 {
		cmd.Printf("... and %d more\n", more)
	}
}

func writeReport(cmd *cobra.Command, app *App, path string, conflicts []services.Conflict) error {
	if path == "" {
		return nil
	}
	if err := app.Sync.WriteReport(path, conflicts); err != nil {
		return err
	}
	cmd.Printf("Conflict report written to %s\n", path)
	return nil
}
