package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStaticItemSource(t *testing.T) {
	src, err := DefaultStaticItemSource()
	require.NoError(t, err)
	items, err := src.ActiveItems(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, items)
	for i := 1; i < len(items); i++ {
		assert.LessOrEqual(t, items[i-1].Order, items[i].Order)
	}
	assert.Equal(t, "caisse", items[0].ID)
}

func TestParseChecklist(t *testing.T) {
	src, err := ParseChecklist([]byte(`
items:
  - {id: b, title: B, description: b, order: 2}
  - {id: a, title: A, description: a, order: 1}
  - {id: z, title: Z, description: z, order: 1, active: false}
`))
	require.NoError(t, err)
	items, _ := src.ActiveItems(context.Background())
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, DefaultIcon, items[0].DisplayIcon())

	_, err = ParseChecklist([]byte("items:\n  - {id: a}\n  - {id: a}\n"))
	assert.ErrorContains(t, err, "duplicate id")
	_, err = ParseChecklist([]byte("items:\n  - {title: nameless}\n"))
	assert.ErrorContains(t, err, "id required")
}

func TestLoadChecklistFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.yaml")
	require.NoError(t, os.WriteFile(path, []byte("items:\n  - {id: x, title: X, description: x}\n"), 0o600))
	src, err := LoadChecklistFile(path)
	require.NoError(t, err)
	items, _ := src.ActiveItems(context.Background())
	assert.Len(t, items, 1)

	_, err = LoadChecklistFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStaticSourceDoesNotAlias(t *testing.T) {
	in := acmeItems()
	src := NewStaticItemSource(in)
	in[0].Title = "changed"
	items, _ := src.ActiveItems(context.Background())
	assert.Equal(t, "Caisse", items[0].Title)
	items[0].Title = "changed too"
	again, _ := src.ActiveItems(context.Background())
	assert.Equal(t, "Caisse", again[0].Title)
}

func TestDynamicSourceMutationsReload(t *testing.T) {
	f := acmeStore()
	src := NewDynamicItemSource(f)
	src.idGen = func() string { return "new" }
	ctx := context.Background()

	it, err := src.Add(ctx, " Éclairage ", "Les néons fonctionnent", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "Éclairage", it.Title)
	assert.Equal(t, "", it.Icon)

	items, err := src.ActiveItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "new", items[0].ID)

	require.NoError(t, src.Update(ctx, "caisse", ItemPatch{Active: boolPtr(false)}))
	items, _ = src.ActiveItems(ctx)
	assert.Len(t, items, 3)
	all, _ := src.All(ctx)
	assert.Len(t, all, 4)

	require.NoError(t, src.Remove(ctx, "coffre"))
	items, _ = src.ActiveItems(ctx)
	assert.Len(t, items, 2)
}

func TestDynamicSourceValidation(t *testing.T) {
	src := NewDynamicItemSource(acmeStore())
	ctx := context.Background()

	_, err := src.Add(ctx, "Titre", "  ", "", 1)
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorInvalid, se.Code)

	err = src.Update(ctx, "caisse", ItemPatch{Title: strPtr("")})
	se, _ = AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, ErrorInvalid, se.Code)

	err = src.Update(ctx, "ghost", ItemPatch{Order: new(int)})
	se, _ = AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, ErrorNotFound, se.Code)

	err = src.Remove(ctx, "ghost")
	se, _ = AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, ErrorNotFound, se.Code)
}

func TestDynamicSourceReloadsAfterFailedMutation(t *testing.T) {
	f := acmeStore()
	src := NewDynamicItemSource(f)
	ctx := context.Background()
	require.NoError(t, src.Reload(ctx))

	// Written by someone else; the failed add still triggers a reload.
	f.items = append(f.items, ItemDefinition{ID: "ext", Title: "Ext", Description: "x", Order: 9})
	f.errAddItem = errBoom
	_, err := src.Add(ctx, "T", "D", "", 1)
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorUnavailable, se.Code)

	all, err := src.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestDynamicSourceReloadFailureKeepsList(t *testing.T) {
	f := acmeStore()
	src := NewDynamicItemSource(f)
	ctx := context.Background()
	require.NoError(t, src.Reload(ctx))

	f.errListItems = errBoom
	_, err := src.ActiveItems(ctx)
	require.Error(t, err)
	all, err := src.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
