package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cfgvault/internal/document"
	"github.com/illarion/cfgvault/internal/metrics"
	"github.com/illarion/cfgvault/internal/scheduler"
	"github.com/illarion/cfgvault/internal/vault"
)

func newAutobackupCommand(a *app) *cobra.Command {
	var (
		metricsAddr string
		schedule    string
		now         bool
	)

	cmd := &cobra.Command{
		Use:   "autobackup",
		Short: "Back up the vault on a schedule",
		Long: `Runs in the foreground, writing a backup on a schedule and pruning old ones
beyond backup.keep.

The schedule is, in order: --schedule, the stored settings.backup_interval
(hours), then backup.schedule from the config file. Setting
settings.auto_backup to false disables automatic backups.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.New()
			v, err := a.openVault(vault.WithObserver(m))
			if err != nil {
				return err
			}
			defer v.Close()

			enabled, err := v.Get("settings.auto_backup", document.Bool(true))
			if err != nil {
				return err
			}
			if on, ok := enabled.AsBool(); ok && !on {
				fmt.Fprintln(cmd.OutOrStdout(), "Automatic backups are disabled (settings.auto_backup is false)")
				return nil
			}

			if schedule == "" {
				schedule, err = storedSchedule(v)
				if err != nil {
					return err
				}
			}
			if schedule == "" {
				schedule = a.cfg.Backup.Schedule
			}

			s, err := scheduler.New(v, schedule, a.cfg.Backup.Keep, a.logger)
			if err != nil {
				return err
			}

			stopMetrics, err := a.startMetrics(m, metricsAddr)
			if err != nil {
				return err
			}
			defer stopMetrics()

			out := cmd.OutOrStdout()
			if now {
				if err := s.RunOnce(); err != nil {
					return err
				}
				fmt.Fprintln(out, "✓ Backup written")
			}

			if err := s.Start(cmd.Context()); err != nil {
				return err
			}
			defer s.Stop()

			fmt.Fprintf(out, "Backing up on %q, next at %s (Ctrl+C to stop)\n", schedule, s.Next().Format("2006-01-02 15:04:05"))
			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9477")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression or @every duration, overriding stored settings")
	cmd.Flags().BoolVar(&now, "now", false, "Write a backup immediately before waiting")
	return cmd
}

// storedSchedule turns settings.backup_interval (hours) into a schedule, or
// returns "" when it is not set
func storedSchedule(v *vault.Vault) (string, error) {
	val, err := v.Get("settings.backup_interval", document.Null())
	if err != nil {
		return "", err
	}
	hours, ok := val.AsInt()
	if !ok {
		return "", nil
	}
	if hours <= 0 {
		return "", fmt.Errorf("settings.backup_interval must be a positive number of hours, got %d", hours)
	}
	return fmt.Sprintf("@every %dh", hours), nil
}
