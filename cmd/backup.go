package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newBackupCommand(a *app) *cobra.Command {
	var (
		to    string
		prune bool
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy the encrypted vault into the backup directory",
		Long: `Copies the encrypted vault file, verified first, to a timestamped file in
the backup directory, or to --to. Backups stay encrypted and can only be
restored with the key that sealed them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			var path string
			if to != "" {
				path, err = v.BackupTo(to)
			} else {
				path, err = v.Backup()
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Backup written to %s\n", path)

			if prune {
				removed, err := v.PruneBackups(a.cfg.Backup.Keep)
				if err != nil {
					return err
				}
				for _, name := range removed {
					fmt.Fprintf(out, "  pruned %s\n", name)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Write the backup to this path instead (relative paths are inside the backup directory)")
	cmd.Flags().BoolVar(&prune, "prune", false, "Remove old backups beyond backup.keep afterwards")
	return cmd
}

func newBackupsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List backups, newest last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			backups, err := v.ListBackups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintln(out, "No backups")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Name, b.Size, b.ModTime.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newRestoreCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup>",
		Short: "Replace the vault with a backup",
		Long: `Replaces the current vault with a backup after checking that it opens with
the current key. <backup> is a file name inside the backup directory or an
absolute path. Backups made before the last key rotation cannot be restored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			if err := v.Restore(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Restored from %s\n", args[0])
			return nil
		},
	}
}
