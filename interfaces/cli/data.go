package cli

import (
	"context"
	"fmt"
	"strconv"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/application/services"
	"tattoo-datasync/pkg/report"

	"github.com/spf13/cobra"
)

type backupList []ports.BlobObject

func (b backupList) Counts() map[string]int { return map[string]int{"backups": len(b)} }
func (b backupList) Failures() int          { return 0 }
func (b backupList) Rows() []report.Row {
	return []report.Row{{Label: "Backups", Value: len(b)}}
}

func newDataCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Export, import, back up and restore directory data",
	}

	exportCmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Write a snapshot of both stores to a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			parent := app.ExportDir
			if len(args) == 1 {
				parent = args[0]
			}
			dir := app.Exporter.SnapshotDir(parent)
			if _, err := r.execute(cmd, "export", "Export", false, func(ctx context.Context) (services.RunStats, error) {
				return stats(app.Exporter.ExportAll(ctx, dir))
			}); err != nil {
				return err
			}
			cmd.Printf("Snapshot written to %s\n", dir)
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Load a snapshot directory into both stores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			_, err = r.execute(cmd, "import", "Import", true, func(ctx context.Context) (services.RunStats, error) {
				return stats(app.Exporter.ImportAll(ctx, args[0]))
			})
			return err
		},
	}

	backupCmd := &cobra.Command{
		Use:   "backup [name]",
		Short: "Export, archive and upload a snapshot to the backup bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			var key string
			if _, err := r.execute(cmd, "backup", "Backup", false, func(ctx context.Context) (services.RunStats, error) {
				res, err := app.Exporter.Backup(ctx, name)
				if err != nil {
					return nil, err
				}
				key = res.Key
				return res.Manifest, nil
			}); err != nil {
				return err
			}
			cmd.Printf("Backup uploaded to %s\n", key)
			return nil
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore <key>",
		Short: "Download a backup archive and import it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			_, err = r.execute(cmd, "restore", "Restore", true, func(ctx context.Context) (services.RunStats, error) {
				return stats(app.Exporter.Restore(ctx, args[0]))
			})
			return err
		},
	}

	listCmd := &cobra.Command{
		Use:   "list-backups",
		Short: "List backup archives, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			var objects backupList
			if _, err := r.execute(cmd, "list-backups", "Backups", false, func(ctx context.Context) (services.RunStats, error) {
				list, err := app.Exporter.ListBackups(ctx)
				if err != nil {
					return nil, err
				}
				objects = list
				return objects, nil
			}); err != nil {
				return err
			}
			if len(objects) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(objects))
			for _, o := range objects {
				rows = append(rows, []string{o.Key, strconv.FormatInt(o.Size, 10), o.LastModified.UTC().Format("2006-01-02 15:04:05")})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), report.Table([]string{"Key", "Size", "Last modified"}, rows))
			return err
		},
	}

	cmd.AddCommand(exportCmd, importCmd, backupCmd, restoreCmd, listCmd)
	return cmd
}
