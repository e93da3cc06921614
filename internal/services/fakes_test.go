package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var errBoom = errors.New("boom")

// fakeStore implements every store interface of the package in memory. The
// err* fields force failures on the named operation.
type fakeStore struct {
	mu       sync.Mutex
	stores   []Store
	items    []ItemDefinition
	audits   []AuditRecord
	users    map[string]*User
	revoked  map[string]time.Time
	activity []ActivityEntry

	inserts int

	errListStores error
	errLatest     error
	errFind       error
	errRecent     error
	errInsert     error
	errListItems  error
	errAddItem    error
	errGetUser    error
	errRevoked    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*User{}, revoked: map[string]time.Time{}}
}

func (f *fakeStore) ListStores(context.Context) ([]Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errListStores != nil {
		return nil, f.errListStores
	}
	return append([]Store(nil), f.stores...), nil
}

func (f *fakeStore) GetStore(_ context.Context, id string) (*Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.stores {
		if st.ID == id {
			c := st
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AddStore(_ context.Context, st *Store) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stores = append(f.stores, *st)
	return nil
}

func (f *fakeStore) UpdateStoreCode(_ context.Context, id, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.stores {
		if f.stores[i].ID == id {
			f.stores[i].Code = code
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) DeleteStore(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.stores {
		if f.stores[i].ID == id {
			f.stores = append(f.stores[:i], f.stores[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) FindAuditByStoreAndDate(_ context.Context, storeID, date string) (*AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errFind != nil {
		return nil, f.errFind
	}
	for _, a := range f.audits {
		if a.StoreID == storeID && a.Date == date {
			c := a
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) sortedAudits(storeID string) []AuditRecord {
	var out []AuditRecord
	for _, a := range f.audits {
		if storeID == "" || a.StoreID == storeID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (f *fakeStore) LatestAuditForStore(_ context.Context, storeID string) (*AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errLatest != nil {
		return nil, f.errLatest
	}
	all := f.sortedAudits(storeID)
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

func (f *fakeStore) RecentAuditsForStore(_ context.Context, storeID string, limit int) ([]AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errRecent != nil {
		return nil, f.errRecent
	}
	all := f.sortedAudits(storeID)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStore) ListAudits(_ context.Context, storeID string) ([]AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedAudits(storeID), nil
}

func (f *fakeStore) InsertAudit(_ context.Context, rec *AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.errInsert != nil {
		return f.errInsert
	}
	for _, a := range f.audits {
		if a.StoreID == rec.StoreID && a.Date == rec.Date {
			return ErrDuplicateAudit
		}
	}
	f.audits = append(f.audits, *rec)
	return nil
}

func (f *fakeStore) ListItems(context.Context) ([]ItemDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errListItems != nil {
		return nil, f.errListItems
	}
	return append([]ItemDefinition(nil), f.items...), nil
}

func (f *fakeStore) AddItem(_ context.Context, it *ItemDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errAddItem != nil {
		return f.errAddItem
	}
	f.items = append(f.items, *it)
	return nil
}

func (f *fakeStore) UpdateItem(_ context.Context, id string, patch ItemPatch) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i] = patch.Apply(f.items[i])
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) DeleteItem(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errGetUser != nil {
		return nil, f.errGetUser
	}
	if u, ok := f.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (f *fakeStore) AddUser(_ context.Context, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *u
	f.users[u.ID] = &c
	return nil
}

func (f *fakeStore) RevokeToken(_ context.Context, jti string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = exp
	return nil
}

func (f *fakeStore) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errRevoked != nil {
		return false, f.errRevoked
	}
	_, ok := f.revoked[jti]
	return ok, nil
}

func (f *fakeStore) AddActivity(_ context.Context, e ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, e)
	return nil
}

func (f *fakeStore) ListActivity(_ context.Context, limit int) ([]ActivityEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]ActivityEntry(nil), f.activity...)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type countingMetrics struct {
	persisted  int
	duplicates map[string]int
	rejected   int
	storeErrs  map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{duplicates: map[string]int{}, storeErrs: map[string]int{}}
}

func (c *countingMetrics) AuditPersisted()                 { c.persisted++ }
func (c *countingMetrics) DuplicateDetected(source string) { c.duplicates[source]++ }
func (c *countingMetrics) CodeRejected()                   { c.rejected++ }
func (c *countingMetrics) StoreError(op string)            { c.storeErrs[op]++ }

func acmeItems() []ItemDefinition {
	return []ItemDefinition{
		{ID: "caisse", Title: "Caisse", Description: "Fond de caisse", Order: 1},
		{ID: "coffre", Title: "Coffre", Description: "Contenu du coffre", Order: 2},
		{ID: "annulations", Title: "Annulations", Description: "Tickets annulés", Order: 3},
	}
}

func acmeStore() *fakeStore {
	f := newFakeStore()
	f.stores = []Store{{ID: "s1", Name: "Acme", Code: "1234"}, {ID: "s2", Name: "Bravo", Code: "9999"}}
	f.items = acmeItems()
	return f
}

func boolPtr(b bool) *bool { return &b }
func strPtr(s string) *string { return &s }
