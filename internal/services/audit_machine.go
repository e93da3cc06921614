package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"
)

// AuditStore is the persistence the audit flow reads and writes.
type AuditStore interface {
	ListStores(ctx context.Context) ([]Store, error)
	FindAuditByStoreAndDate(ctx context.Context, storeID, date string) (*AuditRecord, error)
	LatestAuditForStore(ctx context.Context, storeID string) (*AuditRecord, error)
	RecentAuditsForStore(ctx context.Context, storeID string, limit int) ([]AuditRecord, error)
	// InsertAudit must return an error wrapping ErrDuplicateAudit when a
	// record already exists for (StoreID, Date).
	InsertAudit(ctx context.Context, rec *AuditRecord) error
}

// Metrics receives counters from the audit flow.
type Metrics interface {
	AuditPersisted()
	DuplicateDetected(source string)
	CodeRejected()
	StoreError(op string)
}

type noopMetrics struct{}

func (noopMetrics) AuditPersisted()          {}
func (noopMetrics) DuplicateDetected(string) {}
func (noopMetrics) CodeRejected()            {}
func (noopMetrics) StoreError(string)        {}

const DefaultHistoryLimit = 3

type MachineConfig struct {
	// HistoryLimit caps the audits listed on the start screen.
	HistoryLimit int
	Metrics      Metrics
	// Gate guards the administration phases. Nil disables them.
	Gate *AccessGate
}

// Machine drives sessions through precheck, start, checklist and summary.
type Machine struct {
	store        AuditStore
	items        ItemSource
	gate         *AccessGate
	metrics      Metrics
	historyLimit int
	now          func() time.Time
	idGen        func() string
}

func NewMachine(store AuditStore, items ItemSource, cfg MachineConfig) *Machine {
	m := &Machine{
		store:        store,
		items:        items,
		gate:         cfg.Gate,
		metrics:      cfg.Metrics,
		historyLimit: cfg.HistoryLimit,
		now:          func() time.Time { return time.Now().UTC() },
		idGen:        func() string { return shortID(12) },
	}
	if m.metrics == nil {
		m.metrics = noopMetrics{}
	}
	if m.historyLimit <= 0 {
		m.historyLimit = DefaultHistoryLimit
	}
	return m
}

// NewSession opens a session in the pre-check phase.
func (m *Machine) NewSession() *Session {
	return NewSession(shortID(16), m.now())
}

// Stores lists the selectable stores without their access codes.
func (m *Machine) Stores(ctx context.Context) ([]Store, error) {
	stores, err := m.store.ListStores(ctx)
	if err != nil {
		m.metrics.StoreError("list_stores")
		log.Printf("audit machine: list stores: %v", err)
		return nil, NewUnavailableError("list stores", err)
	}
	out := make([]Store, 0, len(stores))
	for _, st := range stores {
		out = append(out, Store{ID: st.ID, Name: st.Name})
	}
	return out, nil
}

func (m *Machine) findStore(ctx context.Context, name string) Lookup[*Store] {
	stores, err := m.store.ListStores(ctx)
	if err != nil {
		m.metrics.StoreError("list_stores")
		return lookupPtr[Store]("find store", nil, err)
	}
	for i := range stores {
		if stores[i].Name == name {
			st := stores[i]
			return FoundLookup(&st)
		}
	}
	return Lookup[*Store]{}
}

// UpdatePreCheck records the pre-check fields and recomputes the gate. Store
// read failures are reported on the gate, never as an error.
func (m *Machine) UpdatePreCheck(ctx context.Context, s *Session, in PreCheckInput) (PreCheckGate, error) {
	if s.Phase != PhasePreCheck {
		return PreCheckGate{}, ErrInvalidTransition
	}
	in = in.Normalized()
	var lk PreCheckLookups
	if in.StoreName != "" {
		lk.Store = m.findStore(ctx, in.StoreName)
	}
	if lk.Store.Found {
		storeID := lk.Store.Value.ID
		latest, err := m.store.LatestAuditForStore(ctx, storeID)
		if err != nil {
			m.metrics.StoreError("latest_audit")
		}
		lk.Latest = lookupPtr("latest audit", latest, err)
		if in.Date != "" {
			dup, err := m.store.FindAuditByStoreAndDate(ctx, storeID, in.Date)
			if err != nil {
				m.metrics.StoreError("find_audit")
			}
			lk.Duplicate = lookupPtr("find audit by date", dup, err)
		}
	}
	gate := EvaluatePreCheck(in, lk)
	if gate.CodeError {
		m.metrics.CodeRejected()
	}
	if gate.DuplicateExists {
		m.metrics.DuplicateDetected("precheck")
	}
	s.input = in
	s.gate = gate
	return gate, nil
}

// HistoryEntry is one prior audit as listed for reassurance.
type HistoryEntry struct {
	Date     string `json:"date"`
	Verifier string `json:"verifier"`
	Period   Period `json:"period"`
}

func historyFrom(rec AuditRecord) HistoryEntry {
	return HistoryEntry{Date: FormatDateStringFR(rec.Date), Verifier: rec.Verifier, Period: ParsePeriod(rec.Period)}
}

type StartView struct {
	Verifier           string         `json:"verifier"`
	StoreName          string         `json:"store_name"`
	Period             Period         `json:"period"`
	History            []HistoryEntry `json:"history"`
	HistoryUnavailable bool           `json:"history_unavailable,omitempty"`
}

// Begin moves from pre-check to start. The gate is re-evaluated with fresh
// lookups so a stale screen cannot skip the code or duplicate checks.
func (m *Machine) Begin(ctx context.Context, s *Session) (*StartView, error) {
	if !CanTransition(s.Phase, PhaseStart) {
		return nil, ErrInvalidTransition
	}
	in := s.input
	gate, err := m.UpdatePreCheck(ctx, s, in)
	if err != nil {
		return nil, err
	}
	if !gate.CanContinue {
		return nil, invalidWithKeys("pre-check incomplete", gate.missingFields(in))
	}
	s.StoreID = gate.store.ID
	s.StoreName = gate.store.Name
	s.Verifier = in.Verifier
	s.Date = in.Date
	s.Period = ComputePeriodFromString(in.Date)
	s.Responses = Responses{}
	s.Comment = ""
	s.Persisted = false
	s.Existing = false
	if err := s.moveTo(PhaseStart); err != nil {
		return nil, err
	}
	return m.startView(ctx, s), nil
}

// StartView renders the start screen again without changing state.
func (m *Machine) StartView(ctx context.Context, s *Session) (*StartView, error) {
	if s.Phase != PhaseStart {
		return nil, ErrInvalidTransition
	}
	return m.startView(ctx, s), nil
}

func (m *Machine) startView(ctx context.Context, s *Session) *StartView {
	if s.Period.IsZero() {
		s.Period = ComputePeriodFromString(s.Date)
	}
	view := &StartView{Verifier: s.Verifier, StoreName: s.StoreName, Period: s.Period, History: []HistoryEntry{}}
	recent, err := m.store.RecentAuditsForStore(ctx, s.StoreID, m.historyLimit)
	if err != nil {
		m.metrics.StoreError("recent_audits")
		log.Printf("audit machine: recent audits for %s: %v", s.StoreID, err)
		view.HistoryUnavailable = true
		return view
	}
	for _, rec := range recent {
		view.History = append(view.History, historyFrom(rec))
	}
	return view
}

// ChecklistItem is one card of the checklist or summary.
type ChecklistItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Status      Status `json:"status"`
	Label       string `json:"label"`
	Comment     string `json:"comment,omitempty"`
}

type ChecklistView struct {
	Items      []ChecklistItem `json:"items"`
	Completion int             `json:"completion"`
	CanFinish  bool            `json:"can_finish"`
}

func cards(items []ItemDefinition, responses Responses) []ChecklistItem {
	out := make([]ChecklistItem, 0, len(items))
	for _, it := range items {
		if !it.IsActive() {
			continue
		}
		st := responses.StatusOf(it.ID)
		out = append(out, ChecklistItem{
			ID:          it.ID,
			Title:       it.Title,
			Description: it.Description,
			Icon:        it.DisplayIcon(),
			Status:      st,
			Label:       st.Label(),
			Comment:     responses[it.ID].Comment,
		})
	}
	return out
}

// OpenChecklist moves from start to checklist and snapshots the active items.
func (m *Machine) OpenChecklist(ctx context.Context, s *Session) (*ChecklistView, error) {
	if !CanTransition(s.Phase, PhaseChecklist) {
		return nil, ErrInvalidTransition
	}
	items, err := m.items.ActiveItems(ctx)
	if err != nil {
		m.metrics.StoreError("list_items")
		return nil, err
	}
	s.Items = items
	if err := s.moveTo(PhaseChecklist); err != nil {
		return nil, err
	}
	return m.checklistView(s), nil
}

// Checklist renders the checklist of the current session.
func (m *Machine) Checklist(s *Session) (*ChecklistView, error) {
	if s.Phase != PhaseChecklist {
		return nil, ErrInvalidTransition
	}
	return m.checklistView(s), nil
}

func (m *Machine) checklistView(s *Session) *ChecklistView {
	c := Completion(s.Items, s.Responses)
	return &ChecklistView{Items: cards(s.Items, s.Responses), Completion: c, CanFinish: c == 100}
}

// ItemEdit is the confirmed content of the item dialog. An empty Status means
// no choice was made.
type ItemEdit struct {
	Status  Status `json:"status"`
	Comment string `json:"comment"`
}

// EditItem overwrites the response for itemID. Without a status choice it
// writes nothing and returns the unchanged view.
func (m *Machine) EditItem(s *Session, itemID string, edit ItemEdit) (*ChecklistView, error) {
	if s.Phase != PhaseChecklist {
		return nil, ErrInvalidTransition
	}
	found := false
	for _, it := range s.Items {
		if it.ID == itemID && it.IsActive() {
			found = true
			break
		}
	}
	if !found {
		return nil, NewNotFoundError("item not found")
	}
	switch edit.Status {
	case "":
		return m.checklistView(s), nil
	case StatusCompliant, StatusNonCompliant:
	default:
		return nil, NewInvalidError("status must be compliant or non_compliant")
	}
	if s.Responses == nil {
		s.Responses = Responses{}
	}
	s.Responses[itemID] = ItemResponse{Status: edit.Status, Comment: strings.TrimSpace(edit.Comment)}
	return m.checklistView(s), nil
}

type SummaryView struct {
	StoreName  string          `json:"store_name"`
	Verifier   string          `json:"verifier"`
	Date       string          `json:"date"`
	Period     Period          `json:"period"`
	Completion int             `json:"completion"`
	Overall    OverallResult   `json:"overall"`
	Items      []ChecklistItem `json:"items"`
	Comment    string          `json:"comment,omitempty"`
	Persisted  bool            `json:"persisted"`
	Existing   bool            `json:"existing"`
}

// Finish moves from checklist to summary and writes the audit record once.
// On any write failure the session stays in checklist.
func (m *Machine) Finish(ctx context.Context, s *Session, comment string) (*SummaryView, error) {
	if !CanTransition(s.Phase, PhaseSummary) || s.Phase != PhaseChecklist {
		return nil, ErrInvalidTransition
	}
	if Completion(s.Items, s.Responses) < 100 {
		return nil, NewInvalidError("checklist incomplete")
	}
	comment = strings.TrimSpace(comment)
	if !s.Persisted {
		rec := &AuditRecord{
			ID:        m.idGen(),
			StoreID:   s.StoreID,
			StoreName: s.StoreName,
			Verifier:  s.Verifier,
			Date:      s.Date,
			Period:    s.Period.String(),
			Results:   s.Responses.Clone(),
			Comment:   comment,
			CreatedAt: m.now(),
		}
		if err := m.store.InsertAudit(ctx, rec); err != nil {
			if errors.Is(err, ErrDuplicateAudit) {
				m.metrics.DuplicateDetected("insert")
				return nil, ErrDuplicateAudit
			}
			m.metrics.StoreError("insert_audit")
			log.Printf("audit machine: insert audit %s/%s: %v", s.StoreID, s.Date, err)
			return nil, NewUnavailableError("save audit", err)
		}
		s.Persisted = true
		m.metrics.AuditPersisted()
	}
	s.Comment = comment
	if err := s.moveTo(PhaseSummary); err != nil {
		return nil, err
	}
	return m.summaryView(s), nil
}

// ViewExisting jumps from pre-check to the summary of the same-date audit.
// Nothing is written.
func (m *Machine) ViewExisting(ctx context.Context, s *Session) (*SummaryView, error) {
	if s.Phase != PhasePreCheck {
		return nil, ErrInvalidTransition
	}
	gate, err := m.UpdatePreCheck(ctx, s, s.input)
	if err != nil {
		return nil, err
	}
	rec := gate.Existing()
	if rec == nil {
		return nil, NewForbiddenError("no existing audit available")
	}
	items, err := m.items.ActiveItems(ctx)
	if err != nil {
		log.Printf("audit machine: load items for existing audit: %v", err)
		items = itemsFromResults(rec.Results)
	}
	s.StoreID = rec.StoreID
	s.StoreName = rec.StoreName
	s.Verifier = rec.Verifier
	s.Date = rec.Date
	s.Period = ParsePeriod(rec.Period)
	s.Responses = rec.Results.Clone()
	s.Comment = rec.Comment
	s.Items = items
	s.Persisted = true
	s.Existing = true
	if err := s.moveTo(PhaseSummary); err != nil {
		return nil, err
	}
	return m.summaryView(s), nil
}

func itemsFromResults(results Responses) []ItemDefinition {
	out := make([]ItemDefinition, 0, len(results))
	for id := range results {
		out = append(out, ItemDefinition{ID: id, Title: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Summary renders the summary again. It never writes.
func (m *Machine) Summary(s *Session) (*SummaryView, error) {
	if s.Phase != PhaseSummary {
		return nil, ErrInvalidTransition
	}
	return m.summaryView(s), nil
}

func (m *Machine) summaryView(s *Session) *SummaryView {
	return &SummaryView{
		StoreName:  s.StoreName,
		Verifier:   s.Verifier,
		Date:       s.Date,
		Period:     s.Period,
		Completion: Completion(s.Items, s.Responses),
		Overall:    Overall(s.Items, s.Responses),
		Items:      cards(s.Items, s.Responses),
		Comment:    s.Comment,
		Persisted:  s.Persisted,
		Existing:   s.Existing,
	}
}

// Restart leaves the summary and clears the session.
func (m *Machine) Restart(s *Session) error {
	if err := s.moveTo(PhasePreCheck); err != nil {
		return err
	}
	s.reset()
	return nil
}

// EnterAdmin moves from pre-check to the administration login.
func (m *Machine) EnterAdmin(s *Session) error {
	return s.moveTo(PhaseAdminLogin)
}

// AdminNavigate enters an administration screen. The access gate is checked on
// every call; a failed check sends the session back to the admin login.
func (m *Machine) AdminNavigate(ctx context.Context, s *Session, p *Principal, target Phase) error {
	if !target.IsAdmin() || target == PhaseAdminLogin {
		return ErrInvalidTransition
	}
	if !CanTransition(s.Phase, target) {
		return ErrInvalidTransition
	}
	if m.gate == nil {
		return ErrAdminRequired
	}
	if _, err := m.gate.Check(ctx, p); err != nil {
		s.Phase = PhaseAdminLogin
		return err
	}
	s.Phase = target
	return nil
}

// LeaveAdmin returns from any administration screen to a fresh pre-check.
func (m *Machine) LeaveAdmin(s *Session) error {
	if !s.Phase.IsAdmin() {
		return ErrInvalidTransition
	}
	if err := s.moveTo(PhasePreCheck); err != nil {
		return err
	}
	s.reset()
	return nil
}
