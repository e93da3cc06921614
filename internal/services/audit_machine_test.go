package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(f *fakeStore, m Metrics) *Machine {
	mc := NewMachine(f, NewDynamicItemSource(f), MachineConfig{Metrics: m, Gate: NewAccessGate(f)})
	mc.now = func() time.Time { return time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC) }
	n := 0
	mc.idGen = func() string { n++; return "audit" + string(rune('0'+n)) }
	return mc
}

func validInput() PreCheckInput {
	return PreCheckInput{StoreName: "Acme", Code: "1234", Verifier: "Jo", Date: "2024-05-13"}
}

// toChecklist drives a fresh session up to the checklist phase.
func toChecklist(t *testing.T, mc *Machine) *Session {
	t.Helper()
	ctx := context.Background()
	s := mc.NewSession()
	_, err := mc.UpdatePreCheck(ctx, s, validInput())
	require.NoError(t, err)
	_, err = mc.Begin(ctx, s)
	require.NoError(t, err)
	_, err = mc.OpenChecklist(ctx, s)
	require.NoError(t, err)
	return s
}

func answerAll(t *testing.T, mc *Machine, s *Session) {
	t.Helper()
	for _, it := range s.Items {
		_, err := mc.EditItem(s, it.ID, ItemEdit{Status: StatusCompliant})
		require.NoError(t, err)
	}
}

func TestScenarioTwoItemsWithIssue(t *testing.T) {
	f := newFakeStore()
	f.stores = []Store{{ID: "acme", Name: "Acme", Code: "7777"}}
	f.items = []ItemDefinition{
		{ID: "A", Title: "Item A", Description: "a", Order: 1},
		{ID: "B", Title: "Item B", Description: "b", Order: 2},
	}
	metrics := newCountingMetrics()
	mc := newTestMachine(f, metrics)
	ctx := context.Background()

	s := mc.NewSession()
	gate, err := mc.UpdatePreCheck(ctx, s, PreCheckInput{StoreName: "Acme", Code: "7777", Verifier: "Jo", Date: "2024-05-13"})
	require.NoError(t, err)
	require.True(t, gate.CanContinue)

	start, err := mc.Begin(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Period{Start: "06/05/2024", End: "12/05/2024"}, start.Period)
	assert.Empty(t, start.History)

	view, err := mc.OpenChecklist(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Completion)
	assert.False(t, view.CanFinish)

	_, err = mc.EditItem(s, "A", ItemEdit{Status: StatusCompliant, Comment: "  ok  "})
	require.NoError(t, err)
	view, err = mc.EditItem(s, "B", ItemEdit{Status: StatusNonCompliant, Comment: "écart"})
	require.NoError(t, err)
	assert.Equal(t, 100, view.Completion)
	assert.True(t, view.CanFinish)

	sum, err := mc.Finish(ctx, s, "RAS")
	require.NoError(t, err)
	assert.Equal(t, ResultIssuesDetected, sum.Overall)
	assert.Equal(t, 100, sum.Completion)
	assert.True(t, sum.Persisted)
	assert.False(t, sum.Existing)

	require.Len(t, f.audits, 1)
	rec := f.audits[0]
	assert.Equal(t, "acme", rec.StoreID)
	assert.Equal(t, "du 06/05/2024 au 12/05/2024", rec.Period)
	assert.Equal(t, Responses{
		"A": {Status: StatusCompliant, Comment: "ok"},
		"B": {Status: StatusNonCompliant, Comment: "écart"},
	}, rec.Results)
	assert.Equal(t, 1, metrics.persisted)
}

func TestFinishWritesOnce(t *testing.T) {
	f := acmeStore()
	mc := newTestMachine(f, nil)
	s := toChecklist(t, mc)
	answerAll(t, mc, s)

	_, err := mc.Finish(context.Background(), s, "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := mc.Summary(s)
		require.NoError(t, err)
	}
	_, err = mc.Finish(context.Background(), s, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, f.inserts)
	assert.Len(t, f.audits, 1)
}

func TestFinishRequiresFullCompletion(t *testing.T) {
	f := acmeStore()
	mc := newTestMachine(f, nil)
	s := toChecklist(t, mc)
	_, err := mc.EditItem(s, "caisse", ItemEdit{Status: StatusCompliant})
	require.NoError(t, err)

	_, err = mc.Finish(context.Background(), s, "")
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorInvalid, se.Code)
	assert.Equal(t, PhaseChecklist, s.Phase)
	assert.Zero(t, f.inserts)
}

func TestFinishDuplicateFromStorageKeepsChecklist(t *testing.T) {
	f := acmeStore()
	metrics := newCountingMetrics()
	mc := newTestMachine(f, metrics)
	s := toChecklist(t, mc)
	answerAll(t, mc, s)

	// Another session wrote the same (store, date) after our pre-check.
	f.audits = append(f.audits, AuditRecord{ID: "other", StoreID: "s1", Date: "2024-05-13"})

	_, err := mc.Finish(context.Background(), s, "")
	assert.ErrorIs(t, err, ErrDuplicateAudit)
	assert.Equal(t, PhaseChecklist, s.Phase)
	assert.False(t, s.Persisted)
	assert.Equal(t, 1, metrics.duplicates["insert"])
}

func TestFinishStoreFailureKeepsChecklist(t *testing.T) {
	f := acmeStore()
	metrics := newCountingMetrics()
	mc := newTestMachine(f, metrics)
	s := toChecklist(t, mc)
	answerAll(t, mc, s)
	f.errInsert = errBoom

	_, err := mc.Finish(context.Background(), s, "")
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorUnavailable, se.Code)
	assert.True(t, errors.Is(err, errBoom))
	assert.Equal(t, PhaseChecklist, s.Phase)
	assert.Equal(t, 1, metrics.storeErrs["insert_audit"])

	f.errInsert = nil
	_, err = mc.Finish(context.Background(), s, "")
	require.NoError(t, err)
	assert.Equal(t, PhaseSummary, s.Phase)
}

func TestEditItemOverwritesSingleEntry(t *testing.T) {
	mc := newTestMachine(acmeStore(), nil)
	s := toChecklist(t, mc)

	for _, st := range []Status{StatusCompliant, StatusNonCompliant, StatusCompliant} {
		_, err := mc.EditItem(s, "caisse", ItemEdit{Status: st, Comment: string(st)})
		require.NoError(t, err)
	}
	assert.Len(t, s.Responses, 1)
	assert.Equal(t, ItemResponse{Status: StatusCompliant, Comment: "compliant"}, s.Responses["caisse"])
}

func TestEditItemWithoutChoiceIsNoop(t *testing.T) {
	mc := newTestMachine(acmeStore(), nil)
	s := toChecklist(t, mc)
	_, err := mc.EditItem(s, "caisse", ItemEdit{Status: StatusNonCompliant, Comment: "manque"})
	require.NoError(t, err)

	_, err = mc.EditItem(s, "caisse", ItemEdit{Comment: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, ItemResponse{Status: StatusNonCompliant, Comment: "manque"}, s.Responses["caisse"])

	_, err = mc.EditItem(s, "caisse", ItemEdit{Status: StatusPending})
	require.Error(t, err)
	_, err = mc.EditItem(s, "ghost", ItemEdit{Status: StatusCompliant})
	se, _ := AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, ErrorNotFound, se.Code)
}

func TestBeginBlockedByGate(t *testing.T) {
	f := acmeStore()
	metrics := newCountingMetrics()
	mc := newTestMachine(f, metrics)
	ctx := context.Background()
	s := mc.NewSession()

	in := validInput()
	in.Code = "12345"
	gate, err := mc.UpdatePreCheck(ctx, s, in)
	require.NoError(t, err)
	assert.True(t, gate.CodeError)
	assert.Equal(t, 1, metrics.rejected)

	_, err = mc.Begin(ctx, s)
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorInvalid, se.Code)
	assert.Contains(t, se.Details, "precheck.code_required")
	assert.Equal(t, PhasePreCheck, s.Phase)
}

func TestBeginRechecksDuplicate(t *testing.T) {
	f := acmeStore()
	mc := newTestMachine(f, nil)
	ctx := context.Background()
	s := mc.NewSession()
	_, err := mc.UpdatePreCheck(ctx, s, validInput())
	require.NoError(t, err)

	f.audits = append(f.audits, AuditRecord{ID: "x", StoreID: "s1", Date: "2024-05-13"})
	_, err = mc.Begin(ctx, s)
	require.Error(t, err)
	assert.Equal(t, PhasePreCheck, s.Phase)
	assert.True(t, s.Gate().CanViewExisting)
}

func TestStartHistory(t *testing.T) {
	f := acmeStore()
	for _, d := range []string{"2024-04-15", "2024-04-22", "2024-04-29", "2024-05-06"} {
		f.audits = append(f.audits, AuditRecord{ID: d, StoreID: "s1", Date: d, Verifier: "Max", Period: ComputePeriodFromString(d).String()})
	}
	mc := newTestMachine(f, nil)
	ctx := context.Background()
	s := mc.NewSession()
	_, err := mc.UpdatePreCheck(ctx, s, validInput())
	require.NoError(t, err)
	view, err := mc.Begin(ctx, s)
	require.NoError(t, err)
	require.Len(t, view.History, DefaultHistoryLimit)
	assert.Equal(t, "06/05/2024", view.History[0].Date)
	assert.Equal(t, "29/04/2024", view.History[0].Period.Start)
}

func TestStartHistoryUnavailable(t *testing.T) {
	f := acmeStore()
	f.errRecent = errBoom
	mc := newTestMachine(f, nil)
	ctx := context.Background()
	s := mc.NewSession()
	_, err := mc.UpdatePreCheck(ctx, s, validInput())
	require.NoError(t, err)
	view, err := mc.Begin(ctx, s)
	require.NoError(t, err)
	assert.True(t, view.HistoryUnavailable)
	assert.Equal(t, PhaseStart, s.Phase)
}

func TestPreCheckLookupFailuresAreReported(t *testing.T) {
	f := acmeStore()
	f.errLatest = errBoom
	f.errFind = errBoom
	metrics := newCountingMetrics()
	mc := newTestMachine(f, metrics)
	s := mc.NewSession()

	gate, err := mc.UpdatePreCheck(context.Background(), s, validInput())
	require.NoError(t, err)
	assert.True(t, gate.LatestUnavailable)
	assert.True(t, gate.DuplicateUnavailable)
	assert.True(t, gate.CanContinue)
	assert.Equal(t, 1, metrics.storeErrs["latest_audit"])
	assert.Equal(t, 1, metrics.storeErrs["find_audit"])
}

func TestViewExisting(t *testing.T) {
	f := acmeStore()
	f.audits = []AuditRecord{{
		ID: "a1", StoreID: "s1", StoreName: "Acme", Verifier: "Max", Date: "2024-05-13",
		Period:  "du 06/05/2024 au 12/05/2024",
		Results: Responses{"caisse": {Status: StatusCompliant}, "coffre": {Status: StatusNonCompliant, Comment: "porte"}},
	}}
	metrics := newCountingMetrics()
	mc := newTestMachine(f, metrics)
	ctx := context.Background()
	s := mc.NewSession()

	gate, err := mc.UpdatePreCheck(ctx, s, validInput())
	require.NoError(t, err)
	require.True(t, gate.CanViewExisting)
	require.False(t, gate.CanContinue)
	assert.Equal(t, 1, metrics.duplicates["precheck"])

	sum, err := mc.ViewExisting(ctx, s)
	require.NoError(t, err)
	assert.True(t, sum.Existing)
	assert.True(t, sum.Persisted)
	assert.Equal(t, "Max", sum.Verifier)
	assert.Equal(t, ResultIssuesDetected, sum.Overall)
	assert.Equal(t, 67, sum.Completion)
	assert.Zero(t, f.inserts)

	require.NoError(t, mc.Restart(s))
	assert.Equal(t, PhasePreCheck, s.Phase)
	assert.Empty(t, s.StoreID)
	assert.False(t, s.Persisted)
}

func TestViewExistingRequiresValidCode(t *testing.T) {
	f := acmeStore()
	f.audits = []AuditRecord{{ID: "a1", StoreID: "s1", Date: "2024-05-13"}}
	mc := newTestMachine(f, nil)
	s := mc.NewSession()
	in := validInput()
	in.Code = "0000"
	_, err := mc.UpdatePreCheck(context.Background(), s, in)
	require.NoError(t, err)

	_, err = mc.ViewExisting(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, PhasePreCheck, s.Phase)
}

func TestViewExistingRechecksStore(t *testing.T) {
	ctx := context.Background()

	// Code changed after the pre-check.
	f := acmeStore()
	f.audits = []AuditRecord{{ID: "a1", StoreID: "s1", Date: "2024-05-13", Comment: "ancien"}}
	mc := newTestMachine(f, nil)
	s := mc.NewSession()
	gate, err := mc.UpdatePreCheck(ctx, s, validInput())
	require.NoError(t, err)
	require.True(t, gate.CanViewExisting)
	f.mu.Lock()
	f.stores[0].Code = "4321"
	f.mu.Unlock()

	_, err = mc.ViewExisting(ctx, s)
	require.Error(t, err)
	assert.Equal(t, PhasePreCheck, s.Phase)
	assert.Empty(t, s.Comment)
	assert.False(t, s.Gate().CanViewExisting)

	// Record removed after the pre-check.
	f = acmeStore()
	f.audits = []AuditRecord{{ID: "a1", StoreID: "s1", Date: "2024-05-13"}}
	mc = newTestMachine(f, nil)
	s = mc.NewSession()
	_, err = mc.UpdatePreCheck(ctx, s, validInput())
	require.NoError(t, err)
	f.mu.Lock()
	f.audits = nil
	f.mu.Unlock()

	_, err = mc.ViewExisting(ctx, s)
	require.Error(t, err)
	assert.Equal(t, PhasePreCheck, s.Phase)
}

func TestViewExistingFallsBackToResultKeys(t *testing.T) {
	f := acmeStore()
	f.audits = []AuditRecord{{ID: "a1", StoreID: "s1", Date: "2024-05-13", Results: Responses{"old": {Status: StatusCompliant}}}}
	mc := newTestMachine(f, nil)
	ctx := context.Background()
	s := mc.NewSession()
	_, err := mc.UpdatePreCheck(ctx, s, validInput())
	require.NoError(t, err)
	f.errListItems = errBoom

	sum, err := mc.ViewExisting(ctx, s)
	require.NoError(t, err)
	require.Len(t, sum.Items, 1)
	assert.Equal(t, "old", sum.Items[0].ID)
	assert.Equal(t, 100, sum.Completion)
}

func TestInvalidTransitions(t *testing.T) {
	mc := newTestMachine(acmeStore(), nil)
	ctx := context.Background()
	s := mc.NewSession()

	_, err := mc.OpenChecklist(ctx, s)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = mc.Finish(ctx, s, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = mc.Summary(s)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, mc.Restart(s), ErrInvalidTransition)
	_, err = mc.MailDraft(s)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, PhasePreCheck, s.Phase)
}

func TestAdminNavigation(t *testing.T) {
	f := acmeStore()
	f.users["u1"] = &User{ID: "u1", Email: "boss@acme.fr", IsAdmin: true}
	f.users["u2"] = &User{ID: "u2", Email: "clerk@acme.fr"}
	mc := newTestMachine(f, nil)
	ctx := context.Background()
	s := mc.NewSession()

	require.NoError(t, mc.EnterAdmin(s))
	assert.Equal(t, PhaseAdminLogin, s.Phase)

	err := mc.AdminNavigate(ctx, s, &Principal{UserID: "u2"}, PhaseAdminDashboard)
	assert.ErrorIs(t, err, ErrAdminRequired)
	assert.Equal(t, PhaseAdminLogin, s.Phase)

	admin := &Principal{UserID: "u1", TokenID: "j1"}
	require.NoError(t, mc.AdminNavigate(ctx, s, admin, PhaseAdminDashboard))
	require.NoError(t, mc.AdminNavigate(ctx, s, admin, PhaseStoreAdmin))
	assert.ErrorIs(t, mc.AdminNavigate(ctx, s, admin, PhaseCategoryAdmin), ErrInvalidTransition)
	require.NoError(t, mc.AdminNavigate(ctx, s, admin, PhaseAdminDashboard))
	require.NoError(t, mc.AdminNavigate(ctx, s, admin, PhaseCategoryAdmin))

	// Role revoked mid-session: the next screen change sends back to login.
	f.users["u1"].IsAdmin = false
	assert.ErrorIs(t, mc.AdminNavigate(ctx, s, admin, PhaseAdminDashboard), ErrAdminRequired)
	assert.Equal(t, PhaseAdminLogin, s.Phase)

	require.NoError(t, mc.LeaveAdmin(s))
	assert.Equal(t, PhasePreCheck, s.Phase)
	assert.ErrorIs(t, mc.LeaveAdmin(s), ErrInvalidTransition)
}

func TestSessionAcquire(t *testing.T) {
	s := NewSession("x", time.Now())
	require.NoError(t, s.Acquire())
	assert.ErrorIs(t, s.Acquire(), ErrSessionBusy)
	s.Release()
	require.NoError(t, s.Acquire())
	s.Release()
}

func TestStoresHidesCodes(t *testing.T) {
	mc := newTestMachine(acmeStore(), nil)
	stores, err := mc.Stores(context.Background())
	require.NoError(t, err)
	require.Len(t, stores, 2)
	for _, st := range stores {
		assert.Empty(t, st.Code)
	}
}
