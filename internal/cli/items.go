package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/icc-checker/internal/api"
	"github.com/soaringjerry/icc-checker/internal/services"
)

// NewItemCommand creates the item command group for the dynamic checklist.
func NewItemCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage checklist items",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every item, inactive ones included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				items, err := adminService(store).ListItems(ctx)
				if err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(items, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, headColor("ORDER")+"\t"+headColor("ID")+"\t"+headColor("TITLE")+"\t"+headColor("ACTIVE"))
					for _, it := range items {
						fmt.Fprintf(tw, "%d\t%s\t%s %s\t%t\n", it.Order, it.ID, it.DisplayIcon(), it.Title, it.IsActive())
					}
					_ = tw.Flush()
				})
			})
		},
	})

	var title, description, icon string
	var order int
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				it, err := adminService(store).AddItem(ctx, actor, title, description, icon, order)
				if err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(it, func(w io.Writer) {
					fmt.Fprintf(w, "%s item %s (%s)\n", okColor("added"), it.Title, it.ID)
				})
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "item title")
	add.Flags().StringVar(&description, "description", "", "item description")
	add.Flags().StringVar(&icon, "icon", "", "item icon (default 📌 when shown)")
	add.Flags().IntVar(&order, "order", 0, "sort order")
	cmd.AddCommand(add)

	cmd.AddCommand(newItemUpdateCommand(rootOpts))

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				if err := adminService(store).RemoveItem(ctx, actor, args[0]); err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(map[string]any{"id": args[0], "removed": true}, func(w io.Writer) {
					fmt.Fprintf(w, "%s item %s\n", okColor("removed"), args[0])
				})
			})
		},
	})
	return cmd
}

func newItemUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var title, description, icon string
	var order int
	var active bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update the given fields of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch services.ItemPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("icon") {
				patch.Icon = &icon
			}
			if flags.Changed("order") {
				patch.Order = &order
			}
			if flags.Changed("active") {
				patch.Active = &active
			}
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				if err := adminService(store).UpdateItem(ctx, actor, args[0], patch); err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(map[string]any{"id": args[0], "updated": true}, func(w io.Writer) {
					fmt.Fprintf(w, "%s item %s\n", okColor("updated"), args[0])
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&icon, "icon", "", "new icon")
	cmd.Flags().IntVar(&order, "order", 0, "new sort order")
	cmd.Flags().BoolVar(&active, "active", true, "whether the item is shown")
	return cmd
}
