package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Merge a JSON or JSON5 file into the configuration",
		Long: `Reads a JSON or JSON5 object (comments and trailing commas allowed) and
merges it into the vault; nested maps are merged, everything else is
replaced. Use - to read from standard input. Delete the plaintext file
afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = a.in
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			imported, err := v.Import(r)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Imported %d top-level keys\n", len(imported))
			for _, key := range imported {
				fmt.Fprintf(out, "  %s\n", key)
			}
			return nil
		},
	}
}
