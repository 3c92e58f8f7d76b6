package gateway_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filevault/filevault/pkg/analytics"
	"github.com/filevault/filevault/pkg/catalog"
	"github.com/filevault/filevault/pkg/classifier"
	"github.com/filevault/filevault/pkg/gateway"
	"github.com/filevault/filevault/pkg/logging"
	"github.com/filevault/filevault/pkg/objectstore"
	"github.com/filevault/filevault/pkg/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	cat, err := catalog.New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	local, err := objectstore.NewLocalStore(afero.NewMemMapFs(), "/blobs",
		"http://localhost:5000", []byte("test-secret"))
	require.NoError(t, err)

	logger := logging.NewTestLogger()
	p := pipeline.New(pipeline.Config{
		Store:      local,
		Catalog:    cat,
		Classifier: classifier.New(nil, 0, logger),
		Logger:     logger,
	})

	verifier, err := gateway.NewStaticVerifier("tok1:u1,tok2:u2")
	require.NoError(t, err)

	server := gateway.New(gateway.Config{
		Pipeline:   p,
		Analytics:  analytics.New(analytics.Config{Catalog: cat}),
		Verifier:   verifier,
		LocalStore: local,
		Logger:     logger,
	})
	return server.Handler()
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(t *testing.T, handler http.Handler, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func uploadFile(t *testing.T, handler http.Handler, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, data, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	return do(t, handler, req, token)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := do(t, handler, req, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rec := do(t, handler, req, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, handler, httptest.NewRequest(http.MethodGet, "/api/files", nil), "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpload(t *testing.T) {
	handler := newTestServer(t)

	rec := uploadFile(t, handler, "tok1", "a.txt", []byte("hello"))
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode(t, rec)
	file := result["file"].(map[string]any)
	assert.Equal(t, "a.txt", file["fileName"])
	assert.Equal(t, "u1", file["owner"])
	assert.Equal(t, "u1/a.txt", file["filePath"])
	assert.NotEmpty(t, result["category"])
}

func TestUploadWithoutFile(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(""))
	rec := do(t, handler, req, "tok1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadHashConflict(t *testing.T) {
	handler := newTestServer(t)

	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "a.txt", []byte("hello")).Code)

	rec := uploadFile(t, handler, "tok1", "b.txt", []byte("hello"))
	require.Equal(t, http.StatusConflict, rec.Code)

	result := decode(t, rec)
	assert.Equal(t, "hash", result["duplicateType"])
	assert.Equal(t, true, result["canReplace"])
	file := result["file"].(map[string]any)
	assert.Equal(t, "a.txt", file["fileName"])
}

func TestUploadNameConflict(t *testing.T) {
	handler := newTestServer(t)

	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "a.txt", []byte("hello")).Code)

	rec := uploadFile(t, handler, "tok1", "a.txt", []byte("world"))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "filename", decode(t, rec)["duplicateType"])
}

func TestUploadOwnersAreIsolated(t *testing.T) {
	handler := newTestServer(t)

	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "a.txt", []byte("hello")).Code)
	assert.Equal(t, http.StatusOK, uploadFile(t, handler, "tok2", "a.txt", []byte("hello")).Code)
}

func TestReplace(t *testing.T) {
	handler := newTestServer(t)

	rec := uploadFile(t, handler, "tok1", "a.txt", []byte("hello"))
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode(t, rec)["file"].(map[string]any)

	body, contentType := multipartUpload(t, "a.txt", []byte("world"),
		map[string]string{"existingFileId": created["id"].(string)})
	req := httptest.NewRequest(http.MethodPost, "/api/uploads/replace", body)
	req.Header.Set("Content-Type", contentType)
	rec = do(t, handler, req, "tok1")
	require.Equal(t, http.StatusOK, rec.Code)

	replaced := decode(t, rec)["file"].(map[string]any)
	assert.Equal(t, created["id"], replaced["id"])
	assert.Equal(t, created["filePath"], replaced["filePath"])
	assert.NotEqual(t, created["hash"], replaced["hash"])
}

func TestReplaceRequiresExistingFileID(t *testing.T) {
	handler := newTestServer(t)

	body, contentType := multipartUpload(t, "a.txt", []byte("world"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads/replace", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(t, handler, req, "tok1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaceMissingEntry(t *testing.T) {
	handler := newTestServer(t)

	body, contentType := multipartUpload(t, "a.txt", []byte("world"),
		map[string]string{"existingFileId": "no-such-id"})
	req := httptest.NewRequest(http.MethodPost, "/api/uploads/replace", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(t, handler, req, "tok1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListWithPresignedURLs(t *testing.T) {
	handler := newTestServer(t)

	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "a.txt", []byte("hello")).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rec := do(t, handler, req, "tok1")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Contains(t, listed[0]["url"], "/api/blob/u1/a.txt")
}

func TestSignedBlobRoundTrip(t *testing.T) {
	handler := newTestServer(t)

	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "a.txt", []byte("hello")).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rec := do(t, handler, req, "tok1")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	signed, err := url.Parse(listed[0]["url"].(string))
	require.NoError(t, err)

	// The presigned link works without any bearer token.
	blobReq := httptest.NewRequest(http.MethodGet, signed.Path+"?"+signed.RawQuery, nil)
	blobRec := do(t, handler, blobReq, "")
	require.Equal(t, http.StatusOK, blobRec.Code)
	assert.Equal(t, "hello", blobRec.Body.String())

	// Tampering with the signature is rejected.
	tampered := do(t, handler,
		httptest.NewRequest(http.MethodGet, signed.Path+"?expires=9999999999&signature=bogus", nil), "")
	assert.Equal(t, http.StatusForbidden, tampered.Code)
}

func TestSignedBlobRoundTripSpecialName(t *testing.T) {
	handler := newTestServer(t)

	// A name with a space and URL metacharacters must not truncate or
	// corrupt the presigned link.
	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "report a?b.txt", []byte("hello")).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rec := do(t, handler, req, "tok1")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	signed, err := url.Parse(listed[0]["url"].(string))
	require.NoError(t, err)
	require.NotEmpty(t, signed.Query().Get("signature"), "key metacharacters must not eat the query")
	assert.Equal(t, "/api/blob/u1/report a?b.txt", signed.Path)

	blobReq := httptest.NewRequest(http.MethodGet, signed.RequestURI(), nil)
	blobRec := do(t, handler, blobReq, "")
	require.Equal(t, http.StatusOK, blobRec.Code)
	assert.Equal(t, "hello", blobRec.Body.String())
}

func TestDownload(t *testing.T) {
	handler := newTestServer(t)

	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "a.txt", []byte("hello")).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/files/download?name=a.txt", nil)
	rec := do(t, handler, req, "tok1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "a.txt")

	rec = do(t, handler, httptest.NewRequest(http.MethodGet, "/api/files/download?name=ghost.txt", nil), "tok1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete(t *testing.T) {
	handler := newTestServer(t)

	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "a.txt", []byte("hello")).Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/files",
		strings.NewReader(`{"fileName":"a.txt"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := do(t, handler, req, "tok1")
	require.Equal(t, http.StatusOK, rec.Code)

	// Deleting again reports not found.
	req = httptest.NewRequest(http.MethodDelete, "/api/files",
		strings.NewReader(`{"fileName":"a.txt"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = do(t, handler, req, "tok1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRequiresFileName(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/files", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := do(t, handler, req, "tok1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalytics(t *testing.T) {
	handler := newTestServer(t)

	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "a.txt", []byte("hello")).Code)
	require.Equal(t, http.StatusOK, uploadFile(t, handler, "tok1", "b.go", []byte("package main")).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	rec := do(t, handler, req, "tok1")
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode(t, rec)
	assert.Equal(t, float64(2), result["fileCount"])
	assert.Equal(t, float64(17), result["totalSize"])
	assert.NotEmpty(t, result["categories"])
}

func TestAnalyticsEmptyOwner(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	rec := do(t, handler, req, "tok2")
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode(t, rec)
	assert.Equal(t, float64(0), result["fileCount"])
	assert.Equal(t, float64(0), result["totalSize"])
}
