package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(a *app) *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration against a JSON schema",
		Long: `Validates the stored configuration against the JSON schema in schema_file,
or the built-in bot schema (bot_token and owner_id required) when none is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schema != "" {
				a.cfg.SchemaFile = schema
			}
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			if err := v.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "JSON schema file to validate against")
	return cmd
}
