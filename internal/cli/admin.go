package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/icc-checker/internal/api"
	"github.com/soaringjerry/icc-checker/internal/services"
)

// actor is recorded on the activity log for CLI mutations.
const actor = "iccctl"

// NewAdminCommand creates the admin command group.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}
	cmd.AddCommand(newAdminCreateCommand(rootOpts))
	return cmd
}

func newAdminCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		Long: `Create an administrator account. The password is read from --password,
or from ICC_ADMIN_PASSWORD when the flag is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ICC_ADMIN_PASSWORD")
			}
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				auth := services.NewAuthService(store, nil, 0)
				u, err := auth.CreateAdmin(ctx, email, password)
				if err != nil {
					return err
				}
				out := map[string]any{"id": u.ID, "email": u.Email}
				return formatter(cmd, rootOpts).Emit(out, func(w io.Writer) {
					fmt.Fprintf(w, "%s administrator %s (%s)\n", okColor("created"), u.Email, u.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	cmd.Flags().StringVar(&password, "password", "", "administrator password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func adminService(store api.Store) *services.AdminService {
	return services.NewAdminService(store, services.NewDynamicItemSource(store))
}
