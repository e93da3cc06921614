package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/icc-checker/internal/api"
)

// NewStoreCommand creates the store command group.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage stores and their access codes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stores with their codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				stores, err := adminService(store).ListStores(ctx)
				if err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(stores, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, headColor("ID")+"\t"+headColor("NAME")+"\t"+headColor("CODE"))
					for _, st := range stores {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", st.ID, st.Name, st.Code)
					}
					_ = tw.Flush()
				})
			})
		},
	})

	var code string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				st, err := adminService(store).AddStore(ctx, actor, args[0], code)
				if err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(st, func(w io.Writer) {
					fmt.Fprintf(w, "%s store %s (%s)\n", okColor("added"), st.Name, st.ID)
				})
			})
		},
	}
	add.Flags().StringVar(&code, "code", "", "store access code")
	_ = add.MarkFlagRequired("code")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "set-code <id> <code>",
		Short: "Change a store's access code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				if err := adminService(store).UpdateStoreCode(ctx, actor, args[0], args[1]); err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(map[string]any{"id": args[0], "updated": true}, func(w io.Writer) {
					fmt.Fprintf(w, "%s code of %s\n", okColor("updated"), args[0])
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				if err := adminService(store).RemoveStore(ctx, actor, args[0]); err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(map[string]any{"id": args[0], "removed": true}, func(w io.Writer) {
					fmt.Fprintf(w, "%s store %s\n", okColor("removed"), args[0])
				})
			})
		},
	})
	return cmd
}
