package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/icc-checker/internal/api"
	"github.com/soaringjerry/icc-checker/internal/services"
)

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and export saved audits",
	}

	var storeID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List audits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				recs, err := adminService(store).ListAudits(ctx, storeID)
				if err != nil {
					return err
				}
				return formatter(cmd, rootOpts).Emit(recs, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, headColor("DATE")+"\t"+headColor("STORE")+"\t"+headColor("VERIFIER")+"\t"+headColor("RESULT"))
					for _, rec := range recs {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", services.FormatDateStringFR(rec.Date), rec.StoreName, rec.Verifier, recordResult(rec))
					}
					_ = tw.Flush()
				})
			})
		},
	}
	list.Flags().StringVar(&storeID, "store", "", "restrict to one store id")
	cmd.AddCommand(list)

	var exportStore, out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export audits as CSV, one row per answered item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				b, err := adminService(store).ExportAudits(ctx, exportStore)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = cmd.OutOrStdout().Write(b)
					return err
				}
				if err := os.WriteFile(out, b, 0o644); err != nil {
					return WrapExitError(ExitCommandError, "write export", err)
				}
				formatter(cmd, rootOpts).VerboseLog("wrote %d bytes to %s", len(b), out)
				return nil
			})
		},
	}
	export.Flags().StringVar(&exportStore, "store", "", "restrict to one store id")
	export.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.AddCommand(export)
	return cmd
}

// recordResult summarises a stored record without the item list, which may
// have changed since.
func recordResult(rec services.AuditRecord) string {
	for _, resp := range rec.Results {
		if resp.Status == services.StatusNonCompliant {
			return statusText(services.StatusNonCompliant)
		}
	}
	return statusText(services.StatusCompliant)
}
