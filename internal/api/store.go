package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soaringjerry/icc-checker/internal/services"
)

type auditKey struct{ store, date string }

// MemoryStore keeps everything in process. It enforces the same uniqueness
// rules as the SQL schema: store names, user emails and (store, date) audits.
type MemoryStore struct {
	mu       sync.RWMutex
	stores   map[string]*services.Store
	items    map[string]*services.ItemDefinition
	itemSeq  map[string]int
	seq      int
	audits   map[auditKey]*services.AuditRecord
	users    map[string]*services.User
	revoked  map[string]time.Time
	activity []services.ActivityEntry

	// fail forces the named operation to return the error.
	fail map[string]error
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stores:  map[string]*services.Store{},
		items:   map[string]*services.ItemDefinition{},
		itemSeq: map[string]int{},
		audits:  map[auditKey]*services.AuditRecord{},
		users:   map[string]*services.User{},
		revoked: map[string]time.Time{},
		fail:    map[string]error{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) failure(op string) error { return s.fail[op] }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) ListStores(context.Context) ([]services.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("ListStores"); err != nil {
		return nil, err
	}
	out := make([]services.Store, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetStore(_ context.Context, id string) (*services.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.stores[id]; ok {
		c := *st
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) AddStore(_ context.Context, st *services.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("AddStore"); err != nil {
		return err
	}
	for _, existing := range s.stores {
		if existing.Name == st.Name {
			return services.ErrDuplicateStore
		}
	}
	c := *st
	s.stores[st.ID] = &c
	return nil
}

func (s *MemoryStore) UpdateStoreCode(_ context.Context, id, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[id]
	if !ok {
		return false, nil
	}
	st.Code = code
	return true, nil
}

func (s *MemoryStore) DeleteStore(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[id]; !ok {
		return false, nil
	}
	delete(s.stores, id)
	return true, nil
}

func (s *MemoryStore) ListItems(context.Context) ([]services.ItemDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("ListItems"); err != nil {
		return nil, err
	}
	out := make([]services.ItemDefinition, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return s.itemSeq[out[i].ID] < s.itemSeq[out[j].ID]
	})
	return out, nil
}

func (s *MemoryStore) AddItem(_ context.Context, it *services.ItemDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("AddItem"); err != nil {
		return err
	}
	if _, ok := s.items[it.ID]; ok {
		return services.NewConflictError("item id exists")
	}
	c := *it
	active := it.IsActive()
	c.Active = &active
	s.seq++
	s.items[it.ID] = &c
	s.itemSeq[it.ID] = s.seq
	return nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, id string, patch services.ItemPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return false, nil
	}
	updated := patch.Apply(*it)
	*it = updated
	return true, nil
}

func (s *MemoryStore) DeleteItem(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	delete(s.itemSeq, id)
	return true, nil
}

func (s *MemoryStore) FindAuditByStoreAndDate(_ context.Context, storeID, date string) (*services.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("FindAuditByStoreAndDate"); err != nil {
		return nil, err
	}
	if rec, ok := s.audits[auditKey{storeID, date}]; ok {
		c := *rec
		c.Results = rec.Results.Clone()
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) sortedAudits(storeID string) []services.AuditRecord {
	var out []services.AuditRecord
	for _, rec := range s.audits {
		if storeID == "" || rec.StoreID == storeID {
			c := *rec
			c.Results = rec.Results.Clone()
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) LatestAuditForStore(_ context.Context, storeID string) (*services.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("LatestAuditForStore"); err != nil {
		return nil, err
	}
	all := s.sortedAudits(storeID)
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

func (s *MemoryStore) RecentAuditsForStore(_ context.Context, storeID string, limit int) ([]services.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("RecentAuditsForStore"); err != nil {
		return nil, err
	}
	all := s.sortedAudits(storeID)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) ListAudits(_ context.Context, storeID string) ([]services.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedAudits(storeID), nil
}

func (s *MemoryStore) InsertAudit(_ context.Context, rec *services.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("InsertAudit"); err != nil {
		return err
	}
	k := auditKey{rec.StoreID, rec.Date}
	if _, ok := s.audits[k]; ok {
		return fmt.Errorf("insert audit %s/%s: %w", rec.StoreID, rec.Date, services.ErrDuplicateAudit)
	}
	c := *rec
	c.Results = rec.Results.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.audits[k] = &c
	return nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetUser"); err != nil {
		return nil, err
	}
	if u, ok := s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) AddUser(_ context.Context, u *services.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return services.NewConflictError("email exists")
		}
	}
	c := *u
	s.users[u.ID] = &c
	return nil
}

// SetAdmin flips the admin flag of a user. Returns false when unknown.
func (s *MemoryStore) SetAdmin(id string, admin bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if ok {
		u.IsAdmin = admin
	}
	return ok
}

func (s *MemoryStore) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, k)
		}
	}
	s.revoked[jti] = expiresAt
	return nil
}

func (s *MemoryStore) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[jti]
	return ok, nil
}

func (s *MemoryStore) AddActivity(_ context.Context, e services.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, e)
	return nil
}

// ListActivity returns the newest entries first.
func (s *MemoryStore) ListActivity(_ context.Context, limit int) ([]services.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]services.ActivityEntry, 0, len(s.activity))
	for i := len(s.activity) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.activity[i])
	}
	return out, nil
}
