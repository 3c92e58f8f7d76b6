package objectstore_test

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filevault/filevault/pkg/objectstore"
)

func newLocalStore(t *testing.T) *objectstore.LocalStore {
	t.Helper()
	store, err := objectstore.NewLocalStore(afero.NewMemMapFs(), "/blobs",
		"http://localhost:5000", []byte("test-secret"))
	require.NoError(t, err)
	return store
}

func TestLocalPutGet(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "u1/a.txt", []byte("hello")))

	data, err := store.Get(ctx, "u1/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestLocalPutOverwrites(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "u1/a.txt", []byte("hello")))
	require.NoError(t, store.Put(ctx, "u1/a.txt", []byte("world")))

	data, err := store.Get(ctx, "u1/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), data)
}

func TestLocalGetMissing(t *testing.T) {
	store := newLocalStore(t)

	_, err := store.Get(context.Background(), "u1/ghost.txt")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestLocalDeleteIsIdempotent(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "u1/a.txt", []byte("hello")))
	require.NoError(t, store.Delete(ctx, "u1/a.txt"))
	require.NoError(t, store.Delete(ctx, "u1/a.txt"))

	_, err := store.Get(ctx, "u1/a.txt")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestLocalPresign(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "u1/a.txt", []byte("hello")))

	signed, err := store.Presign(ctx, "u1/a.txt", time.Hour)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/api/blob/u1/a.txt", parsed.Path)

	expires, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	require.NoError(t, err)
	sig := parsed.Query().Get("signature")

	assert.True(t, store.Verify("u1/a.txt", expires, sig))
	assert.False(t, store.Verify("u1/b.txt", expires, sig), "signature is key-bound")
	assert.False(t, store.Verify("u1/a.txt", expires, "bogus"))
}

func TestLocalPresignEscapesKey(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	// Display names may carry spaces and URL metacharacters; the link must
	// keep them inside the path so the signed key survives client parsing.
	key := "u1/report a?b#c%d.txt"
	require.NoError(t, store.Put(ctx, key, []byte("hello")))

	signed, err := store.Presign(ctx, key, time.Hour)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/api/blob/"+key, parsed.Path, "path decodes back to the raw key")
	assert.NotContains(t, parsed.RawPath, "?")
	assert.NotContains(t, parsed.RawPath, "#")

	expires, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	require.NoError(t, err)
	assert.True(t, store.Verify(key, expires, parsed.Query().Get("signature")))
}

func TestLocalPresignExpiry(t *testing.T) {
	store := newLocalStore(t)

	expired := time.Now().Add(-time.Minute).Unix()
	assert.False(t, store.Verify("u1/a.txt", expired, "anything"))
}
