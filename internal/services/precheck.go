package services

import "strings"

// PreCheckInput is what the verifier has typed on the pre-check screen.
type PreCheckInput struct {
	StoreName string `json:"store"`
	Code      string `json:"code"`
	Verifier  string `json:"verifier"`
	Date      string `json:"date"`
}

// Normalized trims the verifier and date, and clears the code when no store
// is selected.
func (in PreCheckInput) Normalized() PreCheckInput {
	in.StoreName = strings.TrimSpace(in.StoreName)
	in.Verifier = strings.TrimSpace(in.Verifier)
	in.Date = strings.TrimSpace(in.Date)
	if in.StoreName == "" {
		in.Code = ""
	}
	return in
}

// PreCheckLookups are the store reads the gate depends on.
type PreCheckLookups struct {
	Store     Lookup[*Store]
	Latest    Lookup[*AuditRecord]
	Duplicate Lookup[*AuditRecord]
}

// PreCheckGate is everything the pre-check screen needs to render.
type PreCheckGate struct {
	ShowCodeField        bool          `json:"show_code_field"`
	CodeOK               bool          `json:"code_ok"`
	CodeError            bool          `json:"code_error"`
	Latest               *HistoryEntry `json:"latest,omitempty"`
	LatestUnavailable    bool          `json:"latest_unavailable,omitempty"`
	DuplicateExists      bool          `json:"duplicate_exists"`
	DuplicateUnavailable bool          `json:"duplicate_unavailable,omitempty"`
	CanContinue          bool          `json:"can_continue"`
	CanViewExisting      bool          `json:"can_view_existing"`
	Messages             []string      `json:"messages,omitempty"`

	duplicate *AuditRecord
	store     *Store
}

// Existing returns the same-date record when the gate allows viewing it.
func (g PreCheckGate) Existing() *AuditRecord {
	if !g.CanViewExisting {
		return nil
	}
	return g.duplicate
}

// EvaluatePreCheck computes the gate from the fields and the lookups. It does
// no I/O.
func EvaluatePreCheck(in PreCheckInput, lk PreCheckLookups) PreCheckGate {
	in = in.Normalized()
	g := PreCheckGate{}

	selected := in.StoreName != "" && lk.Store.Found
	g.ShowCodeField = in.StoreName != ""
	if selected {
		g.store = lk.Store.Value
		g.CodeOK = in.Code == lk.Store.Value.Code
		g.CodeError = in.Code != "" && !g.CodeOK
	}
	if g.CodeError {
		g.Messages = append(g.Messages, "precheck.code_incorrect")
	}
	if in.StoreName != "" && !lk.Store.Found {
		g.Messages = append(g.Messages, "precheck.store_unknown")
	}

	if selected {
		switch {
		case lk.Latest.Failed():
			g.LatestUnavailable = true
			g.Messages = append(g.Messages, "history.unavailable")
		case lk.Latest.Found:
			h := historyFrom(*lk.Latest.Value)
			g.Latest = &h
		default:
			g.Messages = append(g.Messages, "history.none")
		}
	}

	if selected && in.Date != "" {
		if lk.Duplicate.Failed() {
			g.DuplicateUnavailable = true
		}
		if lk.Duplicate.Found && g.CodeOK {
			g.DuplicateExists = true
			g.duplicate = lk.Duplicate.Value
		}
	}

	dateOK := in.Date != ""
	if dateOK {
		if _, err := ParseDate(in.Date); err != nil {
			dateOK = false
			g.Messages = append(g.Messages, "precheck.date_invalid")
		}
	}
	g.CanContinue = selected && g.CodeOK && in.Verifier != "" && dateOK
	if g.DuplicateExists {
		g.CanContinue = false
		g.CanViewExisting = true
		g.Messages = append(g.Messages, "precheck.duplicate")
	}
	return g
}

// missingFields lists the i18n keys for unmet basic conditions.
func (g PreCheckGate) missingFields(in PreCheckInput) []string {
	in = in.Normalized()
	var keys []string
	if g.store == nil {
		keys = append(keys, "precheck.store_required")
	}
	if !g.CodeOK {
		keys = append(keys, "precheck.code_required")
	}
	if in.Verifier == "" {
		keys = append(keys, "precheck.verifier_required")
	}
	if in.Date == "" {
		keys = append(keys, "precheck.date_required")
	}
	if g.DuplicateExists {
		keys = append(keys, "precheck.duplicate")
	}
	return keys
}
