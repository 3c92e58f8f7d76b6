package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// LocalStore is a filesystem-backed Store for single-node deployments and
// tests. Presigned URLs are HMAC-signed links that the gateway's blob route
// validates with the same secret.
type LocalStore struct {
	fs      afero.Fs
	root    string
	baseURL string
	secret  []byte
}

// NewLocalStore creates a Store rooted at dir on fs. baseURL is the external
// address presigned links are built against; secret signs them.
func NewLocalStore(fs afero.Fs, dir, baseURL string, secret []byte) (*LocalStore, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &LocalStore{fs: fs, root: dir, baseURL: baseURL, secret: secret}, nil
}

func (s *LocalStore) blobPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data at key, overwriting any existing blob.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	target := s.blobPath(key)
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, target, data, 0o640); err != nil {
		return fmt.Errorf("failed to write blob %q: %w", key, err)
	}
	return nil
}

// Get returns the blob stored at key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.blobPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob at key. A missing key is treated as success.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := s.fs.Remove(s.blobPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
	return nil
}

// Presign returns a signed, expiring URL under the gateway's blob route.
// Key segments are path-escaped so names with spaces or URL metacharacters
// survive the round trip; the server's path decoding restores the raw key
// before Verify runs.
func (s *LocalStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	expires := time.Now().Add(ttl).Unix()
	sig := s.sign(key, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", sig)

	return s.baseURL + "/api/blob/" + escapeKey(key) + "?" + q.Encode(), nil
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// Verify reports whether sig is a valid, unexpired signature for key.
func (s *LocalStore) Verify(key string, expires int64, sig string) bool {
	if time.Now().Unix() > expires {
		return false
	}
	expected := s.sign(key, expires)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (s *LocalStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
