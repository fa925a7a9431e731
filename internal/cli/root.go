// Package cli implements loyaltyctl, the operator command line for schema
// migrations and ledger inspection.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/loyalty/backend/internal/infrastructure/config"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ValidFormats are the accepted --format values
var ValidFormats = []string{"text", "json"}

// RootOptions holds the global flags
type RootOptions struct {
	LogLevel string
	Format   string
}

// NewRootCommand creates the loyaltyctl root command
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "loyaltyctl",
		Short:   "Loyalty backend operator tool",
		Long:    "Apply schema migrations, audit enrollment ledgers and print customer statements.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewStatementCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// logger builds the console logger used by every command. Logs go to
// stderr so command output stays parseable.
func (o *RootOptions) logger() (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      o.LogLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
}

// load reads the same configuration as the server
func (o *RootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := o.logger()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// print writes v as indented JSON in json mode and calls text otherwise
func (o *RootOptions) print(w io.Writer, v any, text func(io.Writer) error) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
