package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cfgvault/internal/diff"
)

func newDiffCommand(a *app) *cobra.Command {
	var pathsOnly bool

	cmd := &cobra.Command{
		Use:   "diff <backup>",
		Short: "Compare a backup with the current configuration",
		Long: `Shows what changed between a backup and the current vault. Both sides are
redacted, so a changed secret shows up without revealing either value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			before, err := v.InspectBackup(args[0])
			if err != nil {
				return err
			}
			current, err := v.GetAllSafe()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if pathsOnly {
				changes := diff.Paths(before, current)
				if len(changes) == 0 {
					fmt.Fprintln(out, "No changes")
				}
				for _, c := range changes {
					fmt.Fprintln(out, c)
				}
				return nil
			}

			text, err := diff.Documents(args[0], "current", before, current)
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Fprintln(out, "No changes")
				return nil
			}
			fmt.Fprint(out, text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&pathsOnly, "paths", false, "Only list changed paths")
	return cmd
}
