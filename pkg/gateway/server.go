// Package gateway exposes the upload pipeline and analytics aggregator over
// HTTP. Every route except the health and signed-blob endpoints requires a
// verified bearer token; the resolved owner scopes all core calls.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/filevault/filevault/pkg/analytics"
	"github.com/filevault/filevault/pkg/dedup"
	"github.com/filevault/filevault/pkg/logging"
	"github.com/filevault/filevault/pkg/objectstore"
	"github.com/filevault/filevault/pkg/pipeline"
)

const ownerContextKey = "owner"

// Server is the HTTP front of the storage gateway.
type Server struct {
	engine    *gin.Engine
	pipeline  *pipeline.Pipeline
	analytics *analytics.Aggregator
	verifier  Verifier
	local     *objectstore.LocalStore
	logger    *logging.Logger
}

// Config carries the server's injected dependencies. LocalStore is optional;
// when set, the signed /api/blob route serves its presigned links.
type Config struct {
	Pipeline   *pipeline.Pipeline
	Analytics  *analytics.Aggregator
	Verifier   Verifier
	LocalStore *objectstore.LocalStore
	Logger     *logging.Logger
}

// New builds the Server and its route table.
func New(cfg Config) *Server {
	s := &Server{
		pipeline:  cfg.Pipeline,
		analytics: cfg.Analytics,
		verifier:  cfg.Verifier,
		local:     cfg.LocalStore,
		logger:    cfg.Logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	s.setupRoutes(router)
	s.engine = router
	return s
}

func (s *Server) setupRoutes(router *gin.Engine) {
	api := router.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Server is running!"})
	})

	if s.local != nil {
		api.GET("/blob/*key", s.handleSignedBlob)
	}

	authed := api.Group("", s.requireOwner)
	authed.POST("/uploads", s.handleUpload)
	authed.POST("/uploads/replace", s.handleReplace)
	authed.GET("/files", s.handleList)
	authed.GET("/files/download", s.handleDownload)
	authed.DELETE("/files", s.handleDelete)
	authed.GET("/analytics", s.handleAnalytics)
}

// Handler returns the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requireOwner verifies the bearer token and stores the resolved owner in
// the request context. The core never sees unauthenticated requests.
func (s *Server) requireOwner(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	owner, err := s.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			s.logger.Error("token verification failed", "error", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	c.Set(ownerContextKey, owner)
	c.Next()
}

func owner(c *gin.Context) string {
	return c.GetString(ownerContextKey)
}

func readUpload(c *gin.Context) (pipeline.UploadRequest, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return pipeline.UploadRequest{}, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to open file"})
		return pipeline.UploadRequest{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file content"})
		return pipeline.UploadRequest{}, false
	}

	return pipeline.UploadRequest{
		Owner:    owner(c),
		Name:     fileHeader.Filename,
		MIMEType: fileHeader.Header.Get("Content-Type"),
		Data:     data,
	}, true
}

func (s *Server) handleUpload(c *gin.Context) {
	req, ok := readUpload(c)
	if !ok {
		return
	}

	entry, err := s.pipeline.Upload(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "File uploaded successfully",
		"file":     entry,
		"category": entry.Category,
	})
}

func (s *Server) handleReplace(c *gin.Context) {
	req, ok := readUpload(c)
	if !ok {
		return
	}

	existingID := c.PostForm("existingFileId")
	if existingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "existingFileId is required"})
		return
	}

	entry, err := s.pipeline.Replace(c.Request.Context(), owner(c), existingID, req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "File replaced successfully",
		"file":     entry,
		"category": entry.Category,
	})
}

func (s *Server) handleList(c *gin.Context) {
	listed, err := s.pipeline.List(c.Request.Context(), owner(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listed)
}

func (s *Server) handleDownload(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name query parameter is required"})
		return
	}

	entry, data, err := s.pipeline.Download(c.Request.Context(), owner(c), name)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+entry.Name+`"`)
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) handleDelete(c *gin.Context) {
	var body struct {
		FileName string `json:"fileName"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.FileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName is required in body"})
		return
	}

	if err := s.pipeline.Delete(c.Request.Context(), owner(c), body.FileName); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully"})
}

func (s *Server) handleAnalytics(c *gin.Context) {
	report, err := s.analytics.Summarize(c.Request.Context(), owner(c))
	if err != nil {
		s.logger.Error("failed to build analytics report", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get storage analytics"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleSignedBlob serves local-store presigned links after checking their
// signature and expiry.
func (s *Server) handleSignedBlob(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired link"})
		return
	}

	if !s.local.Verify(key, expires, c.Query("signature")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired link"})
		return
	}

	data, err := s.local.Get(c.Request.Context(), key)
	if errors.Is(err, objectstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// writeError maps pipeline error kinds to HTTP outcomes. Conflicts carry the
// existing entry so the caller can offer a replace action.
func (s *Server) writeError(c *gin.Context, err error) {
	var conflict *pipeline.ConflictError
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &conflict):
		message := "File with same name already exists."
		if conflict.Kind == dedup.KindHash {
			message = "File already exists."
		}
		c.JSON(http.StatusConflict, gin.H{
			"message":       message,
			"file":          conflict.Existing,
			"duplicateType": conflict.Kind,
			"canReplace":    true,
		})
	case errors.Is(err, pipeline.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
	default:
		requestID := uuid.New().String()
		s.logger.Error("request failed", "requestID", requestID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})
	}
}
