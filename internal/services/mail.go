package services

import (
	"fmt"
	"net/url"
	"strings"
)

// MailDraft is the subject and plain-text body handed to the mail composer.
type MailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

var overallText = map[OverallResult]string{
	ResultAllOK:          "Tous les points sont conformes.",
	ResultIssuesDetected: "Des non-conformités ont été détectées.",
}

// MailDraft serializes the current summary. Only valid in the summary phase.
func (m *Machine) MailDraft(s *Session) (*MailDraft, error) {
	if s.Phase != PhaseSummary {
		return nil, ErrInvalidTransition
	}
	return BuildMailDraft(m.summaryView(s)), nil
}

// BuildMailDraft renders a summary view into a mail draft.
func BuildMailDraft(v *SummaryView) *MailDraft {
	date := FormatDateStringFR(v.Date)
	var b strings.Builder
	fmt.Fprintf(&b, "Boutique : %s\n", v.StoreName)
	fmt.Fprintf(&b, "Vérificateur : %s\n", v.Verifier)
	fmt.Fprintf(&b, "Date : %s\n", date)
	if !v.Period.IsZero() {
		fmt.Fprintf(&b, "Période : %s\n", v.Period.String())
	}
	fmt.Fprintf(&b, "Complétion : %d%%\n", v.Completion)
	b.WriteString(overallText[v.Overall])
	b.WriteString("\n\n")
	for _, it := range v.Items {
		fmt.Fprintf(&b, "- %s : %s", it.Title, it.Label)
		if it.Comment != "" {
			fmt.Fprintf(&b, " (%s)", it.Comment)
		}
		b.WriteString("\n")
	}
	if v.Comment != "" {
		fmt.Fprintf(&b, "\nCommentaire : %s\n", v.Comment)
	}
	return &MailDraft{
		Subject: fmt.Sprintf("Résultats ICC – %s – %s", v.StoreName, date),
		Body:    b.String(),
	}
}

// MailtoURL builds a mailto: link. to may be empty.
func (d *MailDraft) MailtoURL(to string) string {
	q := "subject=" + escapeMailto(d.Subject) + "&body=" + escapeMailto(d.Body)
	return "mailto:" + escapeMailto(strings.TrimSpace(to)) + "?" + q
}

// escapeMailto percent-encodes everything but unreserved characters and '@'.
// Spaces become %20, not '+'.
func escapeMailto(s string) string {
	e := strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	return strings.ReplaceAll(e, "%40", "@")
}
