package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/icc-checker/internal/api"
	"github.com/soaringjerry/icc-checker/internal/services"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load stores, items and administrators from a YAML file",
		Long: `Load stores, items and administrators from a YAML file.

Entries that already exist are skipped, so the command can be re-run.
Admin passwords may reference environment variables as ${NAME}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := services.LoadSeedFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load seed", err)
			}
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				auth := services.NewAuthService(store, nil, 0)
				rep, err := services.ApplySeed(ctx, adminService(store), auth, f)
				if err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(rep, func(w io.Writer) {
					fmt.Fprintf(w, "%s %d stores, %d items, %d admins (%d skipped)\n",
						okColor("seeded"), rep.Stores, rep.Items, rep.Admins, rep.Skipped)
				})
			})
		},
	}
}
