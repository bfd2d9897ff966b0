package cli

import (
	"context"
	"fmt"
	"strings"

	"tattoo-datasync/application/services"
	"tattoo-datasync/pkg/report"

	"github.com/spf13/cobra"
)

func newMigrateCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back and audit versioned record migrations",
	}

	runCmd := &cobra.Command{
		Use:   "run <migration>",
		Short: "Apply one migration to matching records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			_, err = r.execute(cmd, "migrate:"+args[0], "Migration "+args[0], true, func(ctx context.Context) (services.RunStats, error) {
				return stats(app.Migrations.Run(ctx, args[0]))
			})
			return err
		},
	}

	runAllCmd := &cobra.Command{
		Use:   "run-all",
		Short: "Apply every registered migration in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			var batch *services.MigrationBatch
			_, err = r.execute(cmd, "migrate:all", "All migrations", true, func(ctx context.Context) (services.RunStats, error) {
				b, err := app.Migrations.RunAll(ctx)
				batch = b
				return stats(b, err)
			})
			if batch != nil && len(batch.Results) > 0 {
				rows := make([][]string, 0, len(batch.Results))
				for _, res := range batch.Results {
					status, s := "ok", services.MigrationStats{}
					if res.Error != "" {
						status = res.Error
					}
					if res.Stats != nil {
						s = *res.Stats
					}
					rows = append(rows, []string{res.Name, fmt.Sprint(s.Migrated), fmt.Sprint(s.Transformed), fmt.Sprint(s.Failed), status})
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Table([]string{"Migration", "Migrated", "Transformed", "Failed", "Status"}, rows))
			}
			return err
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Report the migration version distribution across records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			_, err = r.execute(cmd, "migrate:validate", "Migration versions", false, func(ctx context.Context) (services.RunStats, error) {
				return stats(app.Migrations.Validate(ctx))
			})
			return err
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback <migration>",
		Short: "Undo a migration on the records it stamped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			_, err = r.execute(cmd, "rollback:"+args[0], "Rollback "+args[0], true, func(ctx context.Context) (services.RunStats, error) {
				return stats(app.Migrations.Rollback(ctx, args[0]))
			})
			return err
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			defs := app.Migrations.List()
			if len(defs) == 0 {
				cmd.Println("No migrations registered")
				return nil
			}
			rows := make([][]string, 0, len(defs))
			for _, m := range defs {
				types := "all"
				if len(m.AppliesTo) > 0 {
					names := make([]string, len(m.AppliesTo))
					for i, t := range m.AppliesTo {
						names[i] = string(t)
					}
					types = strings.Join(names, ",")
				}
				rollback := "stamp only"
				if m.HasInverse() {
					rollback = "inverse"
				}
				rows = append(rows, []string{m.Name, m.Version, types, rollback, m.Description})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), report.Table([]string{"Name", "Version", "Types", "Rollback", "Description"}, rows))
			return err
		},
	}

	cmd.AddCommand(runCmd, runAllCmd, validateCmd, rollbackCmd, listCmd)
	return cmd
}
