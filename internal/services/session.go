package services

import (
	"sync"
	"time"
)

// Phase is a screen of the audit flow.
type Phase string

const (
	PhasePreCheck       Phase = "precheck"
	PhaseStart          Phase = "start"
	PhaseChecklist      Phase = "checklist"
	PhaseSummary        Phase = "summary"
	PhaseAdminLogin     Phase = "admin_login"
	PhaseAdminDashboard Phase = "admin_dashboard"
	PhaseStoreAdmin     Phase = "store_admin"
	PhaseCategoryAdmin  Phase = "category_admin"
)

var transitions = map[Phase][]Phase{
	PhasePreCheck:       {PhaseStart, PhaseSummary, PhaseAdminLogin},
	PhaseStart:          {PhaseChecklist},
	PhaseChecklist:      {PhaseSummary},
	PhaseSummary:        {PhasePreCheck},
	PhaseAdminLogin:     {PhaseAdminDashboard, PhasePreCheck},
	PhaseAdminDashboard: {PhaseStoreAdmin, PhaseCategoryAdmin, PhasePreCheck, PhaseAdminLogin},
	PhaseStoreAdmin:     {PhaseAdminDashboard, PhasePreCheck, PhaseAdminLogin},
	PhaseCategoryAdmin:  {PhaseAdminDashboard, PhasePreCheck, PhaseAdminLogin},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

func (p Phase) IsAdmin() bool {
	switch p {
	case PhaseAdminLogin, PhaseAdminDashboard, PhaseStoreAdmin, PhaseCategoryAdmin:
		return true
	}
	return false
}

// Session is one verifier's in-progress audit. It is owned by a single
// caller; Acquire/Release serialize events on it.
type Session struct {
	ID        string
	Phase     Phase
	StoreID   string
	StoreName string
	Verifier  string
	Date      string
	Period    Period
	Responses Responses
	Comment   string
	// Persisted is set once the audit record has been written, or when the
	// session shows an existing record. It blocks any further insert.
	Persisted bool
	// Existing marks a session opened through "view existing results".
	Existing bool
	Items    []ItemDefinition

	input      PreCheckInput
	gate       PreCheckGate
	lastActive time.Time

	mu sync.Mutex
}

// NewSession returns a session in the pre-check phase.
func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, Phase: PhasePreCheck, Responses: Responses{}, lastActive: now}
}

// Acquire marks the session busy. A second caller gets ErrSessionBusy until
// Release is called.
func (s *Session) Acquire() error {
	if !s.mu.TryLock() {
		return ErrSessionBusy
	}
	return nil
}

func (s *Session) Release() { s.mu.Unlock() }

// Touch records activity at t.
func (s *Session) Touch(t time.Time) { s.lastActive = t }

func (s *Session) LastActive() time.Time { return s.lastActive }

// Gate returns the last computed pre-check gate.
func (s *Session) Gate() PreCheckGate { return s.gate }

// PreCheckInput returns the last fields submitted on the pre-check screen.
func (s *Session) PreCheckInput() PreCheckInput { return s.input }

// reset clears every field except the id. Used on restart and when
// returning to pre-check from administration.
func (s *Session) reset() {
	s.Phase = PhasePreCheck
	s.StoreID = ""
	s.StoreName = ""
	s.Verifier = ""
	s.Date = ""
	s.Period = Period{}
	s.Responses = Responses{}
	s.Comment = ""
	s.Persisted = false
	s.Existing = false
	s.Items = nil
	s.input = PreCheckInput{}
	s.gate = PreCheckGate{}
}

func (s *Session) moveTo(p Phase) error {
	if !CanTransition(s.Phase, p) {
		return ErrInvalidTransition
	}
	s.Phase = p
	return nil
}

// SessionSnapshot is the read-only view of a session's identity.
type SessionSnapshot struct {
	ID        string `json:"id"`
	Phase     Phase  `json:"phase"`
	StoreID   string `json:"store_id,omitempty"`
	StoreName string `json:"store_name,omitempty"`
	Verifier  string `json:"verifier,omitempty"`
	Date      string `json:"date,omitempty"`
	Period    Period `json:"period"`
	Persisted bool   `json:"persisted"`
	Existing  bool   `json:"existing"`
}

func (s *Session) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:        s.ID,
		Phase:     s.Phase,
		StoreID:   s.StoreID,
		StoreName: s.StoreName,
		Verifier:  s.Verifier,
		Date:      s.Date,
		Period:    s.Period,
		Persisted: s.Persisted,
		Existing:  s.Existing,
	}
}
