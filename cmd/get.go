package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/illarion/cfgvault/internal/document"
)

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Print the value stored at a path",
		Long: `Prints the raw value stored at a dot-separated path. Strings are printed
as-is, everything else as JSON.

Examples:
  cfgvault get bot_token
  cfgvault get features
  export TOKEN=$(cfgvault get bot_token)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			doc, err := v.GetAll()
			if err != nil {
				return err
			}
			val, ok := doc.Lookup(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", errNotFound, args[0])
			}
			return printValue(cmd.OutOrStdout(), val)
		},
	}
}

func newShowCommand(a *app) *cobra.Command {
	var paths bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the whole configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			safe, err := v.GetAllSafe()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if paths {
				safe.Walk(func(path string, val document.Value) {
					fmt.Fprintf(out, "%s = %s\n", path, val)
				})
				return nil
			}
			data, err := safe.Marshal()
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&paths, "paths", false, "Print one path = value line per leaf")
	return cmd
}

// printValue writes strings raw and everything else as indented JSON
func printValue(w io.Writer, val document.Value) error {
	if s, ok := val.AsString(); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	compact, err := val.MarshalJSON()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}
