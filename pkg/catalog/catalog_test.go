package catalog_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filevault/filevault/pkg/catalog"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	c, err := catalog.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newEntry(owner, name, hash string) *catalog.Entry {
	return &catalog.Entry{
		ID:         uuid.New().String(),
		Owner:      owner,
		Name:       name,
		StorageKey: owner + "/" + name,
		Category:   "Documents",
		Hash:       hash,
		Size:       5,
		UploadedAt: time.Now().UTC(),
	}
}

func TestInsertAndLookups(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	entry := newEntry("u1", "a.txt", "h1")
	require.NoError(t, c.Insert(ctx, entry))

	byHash, err := c.GetByHash(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, byHash.ID)

	byName, err := c.GetByName(ctx, "u1", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, byName.ID)

	byID, err := c.GetByID(ctx, "u1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", byID.Name)
}

func TestLookupsAreOwnerScoped(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	entry := newEntry("u1", "a.txt", "h1")
	require.NoError(t, c.Insert(ctx, entry))

	_, err := c.GetByHash(ctx, "u2", "h1")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = c.GetByName(ctx, "u2", "a.txt")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = c.GetByID(ctx, "u2", entry.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestInsertDuplicateName(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, newEntry("u1", "a.txt", "h1")))

	err := c.Insert(ctx, newEntry("u1", "a.txt", "h2"))
	assert.ErrorIs(t, err, catalog.ErrDuplicateName)

	// Same name is fine for a different owner.
	require.NoError(t, c.Insert(ctx, newEntry("u2", "a.txt", "h1")))
}

func TestListByOwnerOrdersByRecency(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	older := newEntry("u1", "old.txt", "h1")
	older.UploadedAt = time.Now().UTC().Add(-time.Hour)
	newer := newEntry("u1", "new.txt", "h2")

	require.NoError(t, c.Insert(ctx, older))
	require.NoError(t, c.Insert(ctx, newer))
	require.NoError(t, c.Insert(ctx, newEntry("u2", "other.txt", "h3")))

	entries, err := c.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new.txt", entries[0].Name)
	assert.Equal(t, "old.txt", entries[1].Name)
}

func TestListByOwnerEmpty(t *testing.T) {
	c := newTestCatalog(t)

	entries, err := c.ListByOwner(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdate(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	entry := newEntry("u1", "a.txt", "h1")
	require.NoError(t, c.Insert(ctx, entry))

	entry.Name = "b.txt"
	entry.Hash = "h2"
	entry.Size = 99
	entry.Category = "Code"
	require.NoError(t, c.Update(ctx, entry))

	updated, err := c.GetByID(ctx, "u1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", updated.Name)
	assert.Equal(t, "h2", updated.Hash)
	assert.Equal(t, int64(99), updated.Size)
	assert.Equal(t, entry.StorageKey, updated.StorageKey)
}

func TestUpdateRenameOntoExistingName(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, newEntry("u1", "a.txt", "h1")))
	other := newEntry("u1", "b.txt", "h2")
	require.NoError(t, c.Insert(ctx, other))

	other.Name = "a.txt"
	assert.ErrorIs(t, c.Update(ctx, other), catalog.ErrDuplicateName)
}

func TestUpdateMissingEntry(t *testing.T) {
	c := newTestCatalog(t)

	err := c.Update(context.Background(), newEntry("u1", "ghost.txt", "h1"))
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDelete(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	entry := newEntry("u1", "a.txt", "h1")
	require.NoError(t, c.Insert(ctx, entry))
	require.NoError(t, c.Delete(ctx, entry.ID))

	_, err := c.GetByID(ctx, "u1", entry.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	assert.ErrorIs(t, c.Delete(ctx, entry.ID), catalog.ErrNotFound)
}
