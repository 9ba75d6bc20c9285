package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cfgvault/internal/crypto"
	"github.com/illarion/cfgvault/internal/document"
)

func newSetCommand(a *app) *cobra.Command {
	var (
		asString bool
		secret   bool
	)

	cmd := &cobra.Command{
		Use:   "set <path> [value]",
		Short: "Store a value at a path",
		Long: `Stores a value at a dot-separated path, creating intermediate maps.

The value is parsed as JSON (numbers, true/false, null, objects, lists);
anything that is not valid JSON is stored as a string. Use --string to store
JSON-looking text verbatim, or --secret to type the value without echo.

Examples:
  cfgvault set owner_id 123456789
  cfgvault set settings.language en
  cfgvault set --string version 2.0
  cfgvault set --secret bot_token`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			var val document.Value
			switch {
			case secret:
				if len(args) == 2 {
					return errors.New("--secret reads the value from the terminal, do not pass it as an argument")
				}
				raw, err := readSecret(a.in, a.errOut, fmt.Sprintf("Value for %s: ", path))
				if err != nil {
					return err
				}
				val = document.String(string(raw))
				crypto.ClearBytes(raw)
			case len(args) < 2:
				return errors.New("missing value (or use --secret)")
			case asString:
				val = document.String(args[1])
			default:
				val = parseValue(args[1])
			}

			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			if err := v.Set(path, val); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asString, "string", false, "Store the value as a string without parsing")
	cmd.Flags().BoolVar(&secret, "secret", false, "Read the value from the terminal without echo")
	return cmd
}

// parseValue reads JSON when it can and falls back to a plain string
func parseValue(raw string) document.Value {
	if val, err := document.Parse(raw); err == nil {
		return val
	}
	return document.String(raw)
}
