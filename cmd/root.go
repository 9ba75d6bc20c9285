package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/cfgvault/internal/config"
	"github.com/illarion/cfgvault/internal/logging"
	"github.com/illarion/cfgvault/internal/vault"
)

var version = "dev"

// app carries global flags and the resolved configuration to every command
type app struct {
	configPath string
	dataDir    string
	logLevel   string
	logFormat  string

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context) int {
	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	if err := newRootCommand(a).ExecuteContext(ctx); err != nil {
		HandleError(a.errOut, err)
		return 1
	}
	return 0
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cfgvault",
		Short: "Encrypted configuration vault",
		Long: `cfgvault keeps a bot's configuration in an encrypted, tamper-evident file.

Values are addressed by dot-separated paths (settings.language). The key is
generated on first use and kept in a separate key file next to the vault;
a redacted plaintext copy is written for inspection after every change.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default $CFGVAULT_CONFIG or ./cfgvault.yaml)")
	pf.StringVar(&a.dataDir, "data-dir", "", "Directory holding the key, vault and backups")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		newInitCommand(a),
		newGetCommand(a),
		newSetCommand(a),
		newRmCommand(a),
		newShowCommand(a),
		newBackupCommand(a),
		newBackupsCommand(a),
		newRestoreCommand(a),
		newRotateCommand(a),
		newDiffCommand(a),
		newValidateCommand(a),
		newImportCommand(a),
		newFeatureCommand(a),
		newStatusCommand(a),
		newKeyringCommand(a),
		newWatchCommand(a),
		newAutobackupCommand(a),
		newCompletionCommand(),
	)

	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	return root
}

// setup loads configuration, applies flag overrides and configures logging
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.Setup(a.errOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// newVault creates the vault without opening it
func (a *app) newVault(opts ...vault.Option) (*vault.Vault, error) {
	return vault.New(a.cfg, append([]vault.Option{vault.WithLogger(a.logger)}, opts...)...)
}

// openVault creates and opens the vault. The caller closes it.
func (a *app) openVault(opts ...vault.Option) (*vault.Vault, error) {
	v, err := a.newVault(opts...)
	if err != nil {
		return nil, err
	}
	if err := v.Open(); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}
