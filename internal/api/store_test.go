package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/icc-checker/internal/services"
)

func TestMemoryStoreAuditUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := &services.AuditRecord{ID: "a1", StoreID: "s1", Date: "2024-05-13", Results: services.Responses{"x": {Status: services.StatusCompliant}}}
	require.NoError(t, s.InsertAudit(ctx, rec))

	err := s.InsertAudit(ctx, &services.AuditRecord{ID: "a2", StoreID: "s1", Date: "2024-05-13"})
	assert.True(t, errors.Is(err, services.ErrDuplicateAudit))

	require.NoError(t, s.InsertAudit(ctx, &services.AuditRecord{ID: "a3", StoreID: "s1", Date: "2024-05-20"}))

	// Stored copies are independent of the caller's map.
	rec.Results["x"] = services.ItemResponse{Status: services.StatusNonCompliant}
	got, err := s.FindAuditByStoreAndDate(ctx, "s1", "2024-05-13")
	require.NoError(t, err)
	assert.Equal(t, services.StatusCompliant, got.Results["x"].Status)

	latest, err := s.LatestAuditForStore(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a3", latest.ID)

	recent, err := s.RecentAuditsForStore(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "2024-05-20", recent[0].Date)

	none, err := s.LatestAuditForStore(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStoreStoresAndUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.AddStore(ctx, &services.Store{ID: "s1", Name: "Acme", Code: "1"}))
	assert.ErrorIs(t, s.AddStore(ctx, &services.Store{ID: "s2", Name: "Acme", Code: "2"}), services.ErrDuplicateStore)

	ok, err := s.UpdateStoreCode(ctx, "ghost", "x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddUser(ctx, &services.User{ID: "u1", Email: "a@b.c"}))
	err = s.AddUser(ctx, &services.User{ID: "u2", Email: "a@b.c"})
	se, isSE := services.AsServiceError(err)
	require.True(t, isSE)
	assert.Equal(t, services.ErrorConflict, se.Code)
}

func TestMemoryStoreItemsOrderedStable(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.AddItem(ctx, &services.ItemDefinition{ID: "b", Order: 2}))
	require.NoError(t, s.AddItem(ctx, &services.ItemDefinition{ID: "a1", Order: 1}))
	require.NoError(t, s.AddItem(ctx, &services.ItemDefinition{ID: "a0", Order: 1}))

	items, err := s.ListItems(ctx)
	require.NoError(t, err)
	ids := []string{items[0].ID, items[1].ID, items[2].ID}
	assert.Equal(t, []string{"a1", "a0", "b"}, ids)
	assert.True(t, items[0].IsActive())
}

func TestMemoryStoreRevocationPurgesExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 5, 13, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.RevokeToken(ctx, "old", now.Add(-time.Minute)))
	require.NoError(t, s.RevokeToken(ctx, "new", now.Add(time.Hour)))

	old, _ := s.IsTokenRevoked(ctx, "old")
	assert.False(t, old)
	fresh, _ := s.IsTokenRevoked(ctx, "new")
	assert.True(t, fresh)
}

func TestSessionRegistryExpiresIdle(t *testing.T) {
	reg := NewSessionRegistry(time.Hour)
	now := time.Date(2024, 5, 13, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	s := services.NewSession("abc", now)
	reg.Put(s)
	_, ok := reg.Get("abc")
	require.True(t, ok)

	now = now.Add(59 * time.Minute)
	_, ok = reg.Get("abc")
	require.True(t, ok, "access refreshes the idle clock")

	now = now.Add(61 * time.Minute)
	_, ok = reg.Get("abc")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}
