package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the compliance state of one checklist item.
type Status string

const (
	StatusPending      Status = "pending"
	StatusCompliant    Status = "compliant"
	StatusNonCompliant Status = "non_compliant"
)

// ParseStatus accepts the canonical values plus the todo/done/error words
// stored by the hosted deployment.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pending", "todo":
		return StatusPending, nil
	case "compliant", "done", "ok":
		return StatusCompliant, nil
	case "non_compliant", "non-compliant", "error":
		return StatusNonCompliant, nil
	}
	return "", NewInvalidError(fmt.Sprintf("unknown status %q", raw))
}

// UnmarshalJSON maps stored values, including the legacy words, onto the
// three canonical statuses. Unknown words are an error.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Label is the short display text used on cards, summaries and mails.
func (s Status) Label() string {
	switch s {
	case StatusCompliant:
		return "OK"
	case StatusNonCompliant:
		return "Non conf."
	default:
		return "À faire"
	}
}

// Store is a retail location. Code is the shared access secret.
type Store struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

const DefaultIcon = "📌"

// ItemDefinition is one checklist question. A nil Active flag means active.
type ItemDefinition struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Order       int    `json:"order" yaml:"order"`
	Active      *bool  `json:"active,omitempty" yaml:"active,omitempty"`
}

func (it ItemDefinition) IsActive() bool { return it.Active == nil || *it.Active }

func (it ItemDefinition) DisplayIcon() string {
	if strings.TrimSpace(it.Icon) == "" {
		return DefaultIcon
	}
	return it.Icon
}

// ItemPatch carries the fields of an item update; nil fields stay untouched.
type ItemPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	Order       *int    `json:"order,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// Apply returns a copy of it with the patch fields applied.
func (p ItemPatch) Apply(it ItemDefinition) ItemDefinition {
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.Icon != nil {
		it.Icon = *p.Icon
	}
	if p.Order != nil {
		it.Order = *p.Order
	}
	if p.Active != nil {
		v := *p.Active
		it.Active = &v
	}
	return it
}

// ItemResponse is the verifier's answer for one item.
type ItemResponse struct {
	Status  Status `json:"status"`
	Comment string `json:"comment"`
}

// Responses maps item id to answer. Missing ids are implicitly pending.
type Responses map[string]ItemResponse

func (r Responses) StatusOf(itemID string) Status {
	if resp, ok := r[itemID]; ok && resp.Status != "" {
		return resp.Status
	}
	return StatusPending
}

// Clone returns an independent copy.
func (r Responses) Clone() Responses {
	out := make(Responses, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// AuditRecord is the persisted result of one finalized session.
type AuditRecord struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	StoreName string    `json:"store_name"`
	Verifier  string    `json:"verifier"`
	Date      string    `json:"date"`
	Period    string    `json:"period"`
	Results   Responses `json:"results"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an account allowed to sign in to the administration screens.
type User struct {
	ID        string
	Email     string
	PassHash  []byte
	IsAdmin   bool
	CreatedAt time.Time
}

// ActivityEntry records one administrative change.
type ActivityEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
