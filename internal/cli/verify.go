package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/icc-checker/internal/api"
	"github.com/soaringjerry/icc-checker/internal/services"
	"github.com/soaringjerry/icc-checker/internal/utils"
)

type verifyOptions struct {
	store     string
	code      string
	verifier  string
	date      string
	sets      []string
	comment   string
	items     string
	checklist string
	mailTo    string
	strict    bool
}

// verifyResult is the JSON document printed by verify.
type verifyResult struct {
	Gate    services.PreCheckGate    `json:"gate"`
	Start   *services.StartView      `json:"start,omitempty"`
	Summary *services.SummaryView    `json:"summary,omitempty"`
	Mail    *services.MailDraft      `json:"mail,omitempty"`
	Pending []services.ChecklistItem `json:"pending,omitempty"`
}

// NewVerifyCommand drives one audit session from pre-check to summary.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	o := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run a store audit and record it",
		Long: `Run a store audit through the same state machine as the web flow.

Each --set answers one item as id=status[:comment], where status is
compliant (ok, done) or non_compliant (error). The audit is written only
when every active item is answered. When an audit already exists for the
store and date, its summary is shown instead and nothing is written.`,
		Example: `  iccctl verify --store Acme --code 1234 --verifier Jo --date 2024-05-13 \
    --set caisse=ok --set coffre=non_compliant:"porte ouverte"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, store api.Store) error {
				return runVerify(ctx, cmd, rootOpts, o, store)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.store, "store", "", "store name")
	f.StringVar(&o.code, "code", "", "store access code")
	f.StringVar(&o.verifier, "verifier", "", "verifier name")
	f.StringVar(&o.date, "date", "", "audit date YYYY-MM-DD (default today)")
	f.StringArrayVar(&o.sets, "set", nil, "item answer id=status[:comment], repeatable")
	f.StringVar(&o.comment, "comment", "", "general comment")
	f.StringVar(&o.items, "items", "dynamic", "item source (dynamic|static)")
	f.StringVar(&o.checklist, "checklist", "", "YAML checklist file for the static source")
	f.StringVar(&o.mailTo, "mail-to", "", "print a mailto: link for this address")
	f.BoolVar(&o.strict, "strict", false, "exit 1 when non-compliant items are recorded")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

func itemSource(o *verifyOptions, store api.Store) (services.ItemSource, error) {
	switch {
	case o.checklist != "":
		return services.LoadChecklistFile(o.checklist)
	case o.items == "static":
		return services.DefaultStaticItemSource()
	case o.items == "dynamic":
		return services.NewDynamicItemSource(store), nil
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown item source %q", o.items))
}

// parseSet splits id=status[:comment].
func parseSet(raw string) (string, services.ItemEdit, error) {
	id, rest, ok := strings.Cut(raw, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return "", services.ItemEdit{}, NewExitError(ExitCommandError, fmt.Sprintf("--set %q: want id=status[:comment]", raw))
	}
	statusText, comment, _ := strings.Cut(rest, ":")
	st, err := services.ParseStatus(statusText)
	if err != nil {
		return "", services.ItemEdit{}, WrapExitError(ExitCommandError, "--set "+raw, err)
	}
	return id, services.ItemEdit{Status: st, Comment: comment}, nil
}

func runVerify(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, o *verifyOptions, store api.Store) error {
	out := formatter(cmd, rootOpts)
	items, err := itemSource(o, store)
	if err != nil {
		return err
	}
	date := o.date
	if date == "" {
		date = time.Now().Format(services.DateLayout)
	}
	m := services.NewMachine(store, items, services.MachineConfig{})
	s := m.NewSession()
	res := verifyResult{}

	gate, err := m.UpdatePreCheck(ctx, s, services.PreCheckInput{StoreName: o.store, Code: o.code, Verifier: o.verifier, Date: date})
	if err != nil {
		return err
	}
	res.Gate = gate
	for _, k := range gate.Messages {
		out.VerboseLog("pre-check: %s", utils.T(utils.DefaultLocale, k))
	}

	if gate.CanViewExisting {
		view, err := m.ViewExisting(ctx, s)
		if err != nil {
			return err
		}
		res.Summary = view
		if err := emitSummary(out, res, view); err != nil {
			return err
		}
		if len(o.sets) > 0 {
			return services.ErrDuplicateAudit
		}
		return nil
	}

	start, err := m.Begin(ctx, s)
	if err != nil {
		return describe(err)
	}
	res.Start = start
	out.VerboseLog("%s, période %s, %d audit(s) récent(s)", start.StoreName, start.Period, len(start.History))

	if _, err := m.OpenChecklist(ctx, s); err != nil {
		return err
	}
	for _, raw := range o.sets {
		id, edit, err := parseSet(raw)
		if err != nil {
			return err
		}
		if _, err := m.EditItem(s, id, edit); err != nil {
			return WrapExitError(ExitFailure, "--set "+raw, err)
		}
	}
	list, err := m.Checklist(s)
	if err != nil {
		return err
	}
	if !list.CanFinish {
		for _, it := range list.Items {
			if it.Status == services.StatusPending {
				res.Pending = append(res.Pending, it)
			}
		}
		if err := out.Emit(res, func(w io.Writer) { writeChecklist(w, list) }); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("checklist incomplete (%d%%): nothing recorded", list.Completion))
	}

	view, err := m.Finish(ctx, s, o.comment)
	if err != nil {
		return err
	}
	res.Summary = view
	if o.mailTo != "" {
		draft, err := m.MailDraft(s)
		if err != nil {
			return err
		}
		res.Mail = draft
	}
	if err := emitSummary(out, res, view); err != nil {
		return err
	}
	if res.Mail != nil && out.Format != "json" {
		fmt.Fprintln(out.Writer, res.Mail.MailtoURL(o.mailTo))
	}
	if o.strict && view.Overall == services.ResultIssuesDetected {
		return NewExitError(ExitFailure, "non-compliant items recorded")
	}
	return nil
}

// describe appends the translated gate reasons to a validation error.
func describe(err error) error {
	se, ok := services.AsServiceError(err)
	if !ok || len(se.Details) == 0 {
		return err
	}
	reasons := make([]string, 0, len(se.Details))
	for _, k := range se.Details {
		reasons = append(reasons, utils.T(utils.DefaultLocale, k))
	}
	return WrapExitError(ExitFailure, strings.Join(reasons, "; "), err)
}

func writeChecklist(w io.Writer, v *services.ChecklistView) {
	for _, it := range v.Items {
		fmt.Fprintf(w, "  %s %s : %s\n", it.Icon, it.Title, statusText(it.Status))
	}
	fmt.Fprintln(w, utils.Tf(utils.DefaultLocale, "completion", v.Completion))
}

func emitSummary(out *OutputFormatter, res verifyResult, v *services.SummaryView) error {
	return out.Emit(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s · %s · %s\n", headColor("Boutique"), v.StoreName, v.Verifier, services.FormatDateStringFR(v.Date))
		if !v.Period.IsZero() {
			fmt.Fprintf(w, "Période : %s\n", v.Period)
		}
		for _, it := range v.Items {
			line := fmt.Sprintf("  %s %s : %s", it.Icon, it.Title, statusText(it.Status))
			if it.Comment != "" {
				line += " (" + it.Comment + ")"
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w, utils.Tf(utils.DefaultLocale, "completion", v.Completion))
		fmt.Fprintln(w, overallText(v.Overall))
		if v.Comment != "" {
			fmt.Fprintf(w, "Commentaire : %s\n", v.Comment)
		}
		switch {
		case v.Existing:
			fmt.Fprintln(w, pendingColor("Audit déjà enregistré pour cette date, rien n'a été écrit."))
		case v.Persisted:
			fmt.Fprintln(w, okColor("Audit enregistré."))
		}
	})
}
