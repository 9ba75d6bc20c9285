package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFeatureCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "feature <name> on|off",
		Short:     "Turn a bot feature on or off",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"welcome", "security", "auto_response", "live_stream", "games", "music"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[1] {
			case "on", "true", "enable":
				enabled = true
			case "off", "false", "disable":
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}

			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			if err := v.SetFeature(args[0], enabled); err != nil {
				return err
			}
			state := "off"
			if enabled {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Feature %s is %s\n", args[0], state)
			return nil
		},
	}
}
