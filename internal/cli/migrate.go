package cli

import (
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/loyalty/backend/internal/infrastructure/migration"
	"github.com/loyalty/backend/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

// MigrateOptions holds flags for the migrate commands
type MigrateOptions struct {
	*RootOptions
	// Dir reads migrations from disk instead of the embedded set. create
	// always writes to Dir.
	Dir string
}

// NewMigrateCommand creates the migrate command group
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply or roll back the golang-migrate files under migrations/.

By default the migrations compiled into the binary are used; --dir points
at a directory on disk instead.

Examples:
  loyaltyctl migrate up
  loyaltyctl migrate steps -1
  loyaltyctl migrate force 2
  loyaltyctl migrate create add_reward_tiers --dir migrations`,
	}
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "migrations directory (default: embedded)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withMigrator(func(m *migration.Migrator) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withMigrator(func(m *migration.Migrator) error { return m.Down() })
			},
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations, or roll back when N is negative",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
				}
				return opts.withMigrator(func(m *migration.Migrator) error { return m.Steps(n) })
			},
		},
		&cobra.Command{
			Use:   "goto VERSION",
			Short: "Migrate up or down to VERSION",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return opts.withMigrator(func(m *migration.Migrator) error { return m.GoTo(uint(v)) })
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied without running it, clearing a dirty state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return opts.withMigrator(func(m *migration.Migrator) error { return m.Force(v) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withMigrator(func(m *migration.Migrator) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					result := struct {
						Version uint `json:"version"`
						Dirty   bool `json:"dirty"`
					}{version, dirty}
					return opts.print(cmd.OutOrStdout(), result, func(w io.Writer) error {
						_, err := fmt.Fprintf(w, "version %d (dirty: %t)\n", version, dirty)
						return err
					})
				})
			},
		},
		newMigrateListCommand(opts),
		newMigrateCreateCommand(opts),
	)
	return cmd
}

func newMigrateListCommand(opts *MigrateOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := migration.List(opts.source())
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), infos, func(w io.Writer) error {
				for _, info := range infos {
					down := ""
					if !info.HasDown {
						down = " (no down)"
					}
					if _, err := fmt.Fprintf(w, "%06d %s%s\n", info.Version, info.Name, down); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newMigrateCreateCommand(opts *MigrateOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME [DESCRIPTION]",
		Short: "Create the next up/down migration pair in --dir",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Dir == "" {
				return fmt.Errorf("create needs --dir")
			}
			description := ""
			if len(args) > 1 {
				description = args[1]
			}
			f, err := migration.Create(opts.Dir, args[0], description)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), f, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "created %s\ncreated %s\n", f.UpPath, f.DownPath)
				return err
			})
		},
	}
}

func (o *MigrateOptions) source() fs.FS {
	if o.Dir != "" {
		return os.DirFS(o.Dir)
	}
	return migrations.FS
}

// withMigrator connects to the configured PostgreSQL database and runs fn
func (o *MigrateOptions) withMigrator(fn func(m *migration.Migrator) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations target postgres, database.driver is %q", cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	m, err := migration.New(db, o.source(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return fn(m)
}
