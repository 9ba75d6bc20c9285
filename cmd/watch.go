package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/illarion/cfgvault/internal/metrics"
	"github.com/illarion/cfgvault/internal/vault"
	"github.com/illarion/cfgvault/internal/watch"
)

// startMetrics serves m on addr until the returned stop function is called.
// An empty addr serves nothing.
func (a *app) startMetrics(m *metrics.Metrics, addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	srv := metrics.NewServer(m, a.logger)
	if err := srv.Start(addr); err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", "error", err)
		}
	}, nil
}

func newWatchCommand(a *app) *cobra.Command {
	var (
		metricsAddr string
		debounce    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Warn when another process writes the vault file",
		Long: `Watches the vault file and reports every change this process did not make.
The vault assumes a single writer; a foreign write means another process
or a person edited the file and changes may be lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.New()
			v, err := a.openVault(vault.WithObserver(m))
			if err != nil {
				return err
			}
			defer v.Close()

			stopMetrics, err := a.startMetrics(m, metricsAddr)
			if err != nil {
				return err
			}
			defer stopMetrics()

			w, err := watch.New(a.cfg.VaultPath(), v,
				watch.WithDebounce(debounce),
				watch.WithLogger(a.logger))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			w.OnChange(func(ev watch.Event) {
				m.ObserveForeignWrite()
				if ev.Removed {
					fmt.Fprintf(out, "%s  vault file removed\n", time.Now().Format(time.TimeOnly))
					return
				}
				fmt.Fprintf(out, "%s  vault file changed by another writer (sha256 %x)\n",
					time.Now().Format(time.TimeOnly), ev.Digest[:8])
			})
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()

			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", a.cfg.VaultPath())
			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9477")
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "Wait this long after a change before checking")
	return cmd
}
