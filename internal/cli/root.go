package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/icc-checker/internal/api"
	"github.com/soaringjerry/icc-checker/internal/config"
	"github.com/soaringjerry/icc-checker/internal/db"
	"github.com/soaringjerry/icc-checker/internal/utils"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	Format        string // "json" | "text"
	DBDriver      string
	DSN           string
	MigrationsDir string

	// open replaces the store factory in tests.
	open func(ctx context.Context, opts *RootOptions) (api.Store, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for iccctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{open: openStore})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iccctl",
		Short: "ICC Checker administration and audit tool",
		Long:  "Manage stores, checklist items and administrators, and run store compliance audits from the terminal.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBDriver, "db-driver", utils.SafeEnv("ICC_DB_DRIVER", string(db.DialectSQLite)), "database driver (sqlite3|pgx|memory)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", utils.SafeEnv("ICC_DB_DSN", "data/icc.db"), "database DSN or SQLite path")
	cmd.PersistentFlags().StringVar(&opts.MigrationsDir, "migrations", utils.SafeEnv("ICC_MIGRATIONS_DIR", ""), "directory overriding the embedded migrations")

	cmd.AddCommand(NewAdminCommand(opts))
	cmd.AddCommand(NewStoreCommand(opts))
	cmd.AddCommand(NewItemCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func openStore(ctx context.Context, opts *RootOptions) (api.Store, error) {
	if opts.DBDriver == config.DriverMemory {
		return api.NewMemoryStore(), nil
	}
	d, err := db.ParseDialect(opts.DBDriver)
	if err != nil {
		return nil, err
	}
	return db.NewStore(ctx, d, opts.DSN, opts.MigrationsDir)
}

// withStore opens the store for one command run and closes it afterwards.
func withStore(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, store api.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := opts.open(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && opts.Verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "close store: %v\n", cerr)
		}
	}()
	return fn(ctx, store)
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
