package services

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed checklist.yaml
var defaultChecklist []byte

// ItemSource supplies the active checklist items in ascending display order.
type ItemSource interface {
	ActiveItems(ctx context.Context) ([]ItemDefinition, error)
}

// ItemStore is the persistence needed by the dynamic item source.
type ItemStore interface {
	ListItems(ctx context.Context) ([]ItemDefinition, error)
	AddItem(ctx context.Context, it *ItemDefinition) error
	UpdateItem(ctx context.Context, id string, patch ItemPatch) (bool, error)
	DeleteItem(ctx context.Context, id string) (bool, error)
}

// sortItems orders by Order ascending, keeping input order on ties.
func sortItems(items []ItemDefinition) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
}

func activeSorted(items []ItemDefinition) []ItemDefinition {
	out := ActiveOnly(items)
	sortItems(out)
	return out
}

// StaticItemSource serves a fixed list.
type StaticItemSource struct {
	items []ItemDefinition
}

type checklistFile struct {
	Items []ItemDefinition `yaml:"items"`
}

// NewStaticItemSource copies items; the caller's slice is not retained.
func NewStaticItemSource(items []ItemDefinition) *StaticItemSource {
	return &StaticItemSource{items: activeSorted(append([]ItemDefinition(nil), items...))}
}

// DefaultStaticItemSource serves the compiled-in checklist.
func DefaultStaticItemSource() (*StaticItemSource, error) {
	return ParseChecklist(defaultChecklist)
}

// LoadChecklistFile reads a YAML checklist from path.
func LoadChecklistFile(path string) (*StaticItemSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checklist: %w", err)
	}
	return ParseChecklist(b)
}

// ParseChecklist decodes a YAML document with a top-level "items" list.
func ParseChecklist(b []byte) (*StaticItemSource, error) {
	var f checklistFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode checklist: %w", err)
	}
	seen := map[string]struct{}{}
	for i, it := range f.Items {
		if strings.TrimSpace(it.ID) == "" {
			return nil, fmt.Errorf("checklist item %d: id required", i)
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("checklist item %q: duplicate id", it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return NewStaticItemSource(f.Items), nil
}

func (s *StaticItemSource) ActiveItems(context.Context) ([]ItemDefinition, error) {
	return append([]ItemDefinition(nil), s.items...), nil
}

// DynamicItemSource serves administrator-managed items. Every mutation is
// followed by a full reload; the reloaded list is the only one trusted.
type DynamicItemSource struct {
	store ItemStore
	idGen func() string

	mu     sync.RWMutex
	all    []ItemDefinition
	loaded bool
}

func NewDynamicItemSource(store ItemStore) *DynamicItemSource {
	return &DynamicItemSource{store: store, idGen: func() string { return shortID(10) }}
}

// Reload replaces the cached list with the store's contents. On failure the
// previous list is kept and the error returned.
func (s *DynamicItemSource) Reload(ctx context.Context) error {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		log.Printf("item source: reload: %v", err)
		return NewUnavailableError("load items", err)
	}
	sortItems(items)
	s.mu.Lock()
	s.all = items
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// ActiveItems reloads on every call so each session sees the current list.
func (s *DynamicItemSource) ActiveItems(ctx context.Context) ([]ItemDefinition, error) {
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ActiveOnly(s.all), nil
}

// All returns the cached list including inactive items, loading it first if needed.
func (s *DynamicItemSource) All(ctx context.Context) ([]ItemDefinition, error) {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if !loaded {
		if err := s.Reload(ctx); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ItemDefinition(nil), s.all...), nil
}

// Add creates an item. An empty icon is stored empty; DisplayIcon supplies the default.
func (s *DynamicItemSource) Add(ctx context.Context, title, description, icon string, order int) (*ItemDefinition, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return nil, NewInvalidError("title and description required")
	}
	it := &ItemDefinition{ID: s.idGen(), Title: title, Description: description, Icon: strings.TrimSpace(icon), Order: order}
	err := s.store.AddItem(ctx, it)
	return it, s.afterMutation(ctx, "add item", err)
}

func (s *DynamicItemSource) Update(ctx context.Context, id string, patch ItemPatch) error {
	if strings.TrimSpace(id) == "" {
		return NewInvalidError("item id required")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return NewInvalidError("title and description required")
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return NewInvalidError("title and description required")
	}
	ok, err := s.store.UpdateItem(ctx, id, patch)
	if err == nil && !ok {
		err = errNotFound
	}
	return s.afterMutation(ctx, "update item", err)
}

func (s *DynamicItemSource) Remove(ctx context.Context, id string) error {
	ok, err := s.store.DeleteItem(ctx, id)
	if err == nil && !ok {
		err = errNotFound
	}
	return s.afterMutation(ctx, "remove item", err)
}

var errNotFound = errors.New("not found")

func (s *DynamicItemSource) afterMutation(ctx context.Context, op string, err error) error {
	if rerr := s.Reload(ctx); rerr != nil && err == nil {
		return rerr
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNotFound):
		return NewNotFoundError("item not found")
	default:
		log.Printf("item source: %s: %v", op, err)
		if _, ok := AsServiceError(err); ok {
			return err
		}
		return NewUnavailableError(op, err)
	}
}
