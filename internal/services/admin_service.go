package services

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type AdminStore interface {
	ListStores(ctx context.Context) ([]Store, error)
	GetStore(ctx context.Context, id string) (*Store, error)
	AddStore(ctx context.Context, st *Store) error
	UpdateStoreCode(ctx context.Context, id, code string) (bool, error)
	DeleteStore(ctx context.Context, id string) (bool, error)
	ListAudits(ctx context.Context, storeID string) ([]AuditRecord, error)
	AddActivity(ctx context.Context, e ActivityEntry) error
	ListActivity(ctx context.Context, limit int) ([]ActivityEntry, error)
}

// ErrDuplicateStore is returned when a store with the same normalised name exists.
var ErrDuplicateStore = &ServiceError{Code: ErrorConflict, Message: "store name already exists", Key: "store.duplicate"}

var errItemsReadOnly = &ServiceError{Code: ErrorForbidden, Message: "items are read-only with the static source", Key: "items.readonly"}

// AdminService backs the dashboard, store and category screens. Callers check
// the AccessGate first; actor is recorded on the activity log.
type AdminService struct {
	store AdminStore
	items *DynamicItemSource
	now   func() time.Time
	idGen func() string
}

// NewAdminService builds the service. items may be nil when the static
// checklist is in use; item mutations are then refused.
func NewAdminService(store AdminStore, items *DynamicItemSource) *AdminService {
	return &AdminService{
		store: store,
		items: items,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(10) },
	}
}

var folder = cases.Fold()

// NormalizeStoreName folds case, applies NFC and collapses inner whitespace.
func NormalizeStoreName(name string) string {
	name = norm.NFC.String(strings.Join(strings.Fields(name), " "))
	return folder.String(name)
}

func (s *AdminService) record(ctx context.Context, actor, action, target, note string) {
	e := ActivityEntry{Time: s.now(), Actor: actor, Action: action, Target: target, Note: note}
	if err := s.store.AddActivity(ctx, e); err != nil {
		log.Printf("admin: activity %s %s: %v", action, target, err)
	}
}

func unavailable(op string, err error) error {
	if _, ok := AsServiceError(err); ok {
		return err
	}
	log.Printf("admin: %s: %v", op, err)
	return NewUnavailableError(op, err)
}

func (s *AdminService) ListStores(ctx context.Context) ([]Store, error) {
	stores, err := s.store.ListStores(ctx)
	if err != nil {
		return nil, unavailable("list stores", err)
	}
	return stores, nil
}

func (s *AdminService) AddStore(ctx context.Context, actor, name, code string) (*Store, error) {
	name = strings.Join(strings.Fields(name), " ")
	code = strings.TrimSpace(code)
	if name == "" || code == "" {
		return nil, NewInvalidError("name and code required")
	}
	existing, err := s.store.ListStores(ctx)
	if err != nil {
		return nil, unavailable("list stores", err)
	}
	key := NormalizeStoreName(name)
	for _, st := range existing {
		if NormalizeStoreName(st.Name) == key {
			return nil, ErrDuplicateStore
		}
	}
	st := &Store{ID: s.idGen(), Name: name, Code: code}
	if err := s.store.AddStore(ctx, st); err != nil {
		return nil, unavailable("add store", err)
	}
	s.record(ctx, actor, "store.add", st.Name, "")
	return st, nil
}

func (s *AdminService) UpdateStoreCode(ctx context.Context, actor, id, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return NewInvalidError("code required")
	}
	ok, err := s.store.UpdateStoreCode(ctx, id, code)
	if err != nil {
		return unavailable("update store code", err)
	}
	if !ok {
		return NewNotFoundError("store not found")
	}
	s.record(ctx, actor, "store.code", id, "")
	return nil
}

func (s *AdminService) RemoveStore(ctx context.Context, actor, id string) error {
	ok, err := s.store.DeleteStore(ctx, id)
	if err != nil {
		return unavailable("remove store", err)
	}
	if !ok {
		return NewNotFoundError("store not found")
	}
	s.record(ctx, actor, "store.remove", id, "")
	return nil
}

// ListItems returns every item, inactive ones included.
func (s *AdminService) ListItems(ctx context.Context) ([]ItemDefinition, error) {
	if s.items == nil {
		return nil, errItemsReadOnly
	}
	if err := s.items.Reload(ctx); err != nil {
		return nil, err
	}
	return s.items.All(ctx)
}

func (s *AdminService) AddItem(ctx context.Context, actor, title, description, icon string, order int) (*ItemDefinition, error) {
	if s.items == nil {
		return nil, errItemsReadOnly
	}
	it, err := s.items.Add(ctx, title, description, icon, order)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, "item.add", it.ID, it.Title)
	return it, nil
}

func (s *AdminService) UpdateItem(ctx context.Context, actor, id string, patch ItemPatch) error {
	if s.items == nil {
		return errItemsReadOnly
	}
	if err := s.items.Update(ctx, id, patch); err != nil {
		return err
	}
	s.record(ctx, actor, "item.update", id, "")
	return nil
}

func (s *AdminService) RemoveItem(ctx context.Context, actor, id string) error {
	if s.items == nil {
		return errItemsReadOnly
	}
	if err := s.items.Remove(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "item.remove", id, "")
	return nil
}

// ListAudits returns the audits of one store, or of all stores when storeID
// is empty, newest first.
func (s *AdminService) ListAudits(ctx context.Context, storeID string) ([]AuditRecord, error) {
	recs, err := s.store.ListAudits(ctx, strings.TrimSpace(storeID))
	if err != nil {
		return nil, unavailable("list audits", err)
	}
	return recs, nil
}

// ExportAudits renders ListAudits as CSV, resolving item titles from the
// current item list when one is available.
func (s *AdminService) ExportAudits(ctx context.Context, storeID string) ([]byte, error) {
	recs, err := s.ListAudits(ctx, storeID)
	if err != nil {
		return nil, err
	}
	var items []ItemDefinition
	if s.items != nil {
		if all, err := s.items.All(ctx); err == nil {
			items = all
		}
	}
	return ExportAuditsCSV(recs, items)
}

func (s *AdminService) ListActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	out, err := s.store.ListActivity(ctx, limit)
	if err != nil {
		return nil, unavailable("list activity", err)
	}
	return out, nil
}
