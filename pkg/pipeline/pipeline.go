// Package pipeline orchestrates file intake: hash, duplicate resolution,
// classification, blob write, catalog write — in that order, so duplicate
// detection always happens strictly before any mutation.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filevault/filevault/pkg/catalog"
	"github.com/filevault/filevault/pkg/dedup"
	"github.com/filevault/filevault/pkg/hasher"
	"github.com/filevault/filevault/pkg/logging"
	"github.com/filevault/filevault/pkg/objectstore"
)

const (
	// DefaultPresignTTL bounds how long listing URLs stay valid.
	DefaultPresignTTL = time.Hour

	// DefaultOpTimeout bounds each catalog and object store call so a hung
	// backend cannot pin a request forever.
	DefaultOpTimeout = 30 * time.Second
)

// Catalog is the slice of the metadata store the pipeline depends on.
type Catalog interface {
	dedup.Lookup
	Insert(ctx context.Context, entry *catalog.Entry) error
	GetByID(ctx context.Context, owner, id string) (*catalog.Entry, error)
	ListByOwner(ctx context.Context, owner string) ([]catalog.Entry, error)
	Update(ctx context.Context, entry *catalog.Entry) error
	Delete(ctx context.Context, id string) error
}

// Classifier assigns a category to a file. Implementations never fail; they
// fall back to a heuristic label instead.
type Classifier interface {
	Classify(ctx context.Context, name, mimeType string, content []byte) string
}

// Pipeline composes the hasher, duplicate resolver, classifier, object store
// and catalog into the intake contract.
type Pipeline struct {
	store      objectstore.Store
	catalog    Catalog
	classifier Classifier
	resolver   *dedup.Resolver
	logger     *logging.Logger
	presignTTL time.Duration
	opTimeout  time.Duration
	now        func() time.Time
}

// Config carries the pipeline's injected dependencies.
type Config struct {
	Store      objectstore.Store
	Catalog    Catalog
	Classifier Classifier
	Logger     *logging.Logger
	PresignTTL time.Duration
	OpTimeout  time.Duration
	Now        func() time.Time
}

// New creates a Pipeline from explicitly constructed dependencies.
func New(cfg Config) *Pipeline {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		store:      cfg.Store,
		catalog:    cfg.Catalog,
		classifier: cfg.Classifier,
		resolver:   dedup.New(cfg.Catalog),
		logger:     cfg.Logger,
		presignTTL: cfg.PresignTTL,
		opTimeout:  cfg.OpTimeout,
		now:        cfg.Now,
	}
}

// UploadRequest carries one incoming file. Owner is already authenticated by
// the gateway; the pipeline trusts it.
type UploadRequest struct {
	Owner    string
	Name     string
	MIMEType string
	Data     []byte
}

// StorageKey derives the blob key for an owner and display name. It is
// deterministic and stable across content replacement.
func StorageKey(owner, name string) string {
	return owner + "/" + name
}

// validName reports whether name is a plain file name. Separators and dot
// segments are rejected so a display name can never address a key outside
// the owner's prefix.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// bound caps a single catalog or object store call.
func (p *Pipeline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.opTimeout)
}

// Upload runs the initial intake flow and returns the committed entry.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (*catalog.Entry, error) {
	if len(req.Data) == 0 || !validName(req.Name) {
		return nil, ErrInvalidInput
	}

	hash := hasher.Sum(req.Data)

	rctx, cancel := p.bound(ctx)
	resolution, err := p.resolver.Resolve(rctx, req.Owner, req.Name, hash)
	cancel()
	if err != nil {
		return nil, &CatalogError{Op: "duplicate check", Err: err}
	}
	if resolution.Conflict() {
		p.logger.Info("upload blocked by duplicate",
			"owner", req.Owner, "file", req.Name, "kind", resolution.Kind)
		return nil, &ConflictError{Kind: resolution.Kind, Existing: resolution.Existing}
	}

	category := p.classifier.Classify(ctx, req.Name, req.MIMEType, req.Data)

	key := StorageKey(req.Owner, req.Name)
	pctx, cancel := p.bound(ctx)
	err = p.store.Put(pctx, key, req.Data)
	cancel()
	if err != nil {
		return nil, &StorageError{Op: "put", Err: err}
	}

	entry := &catalog.Entry{
		ID:         uuid.New().String(),
		Owner:      req.Owner,
		Name:       req.Name,
		StorageKey: key,
		Category:   category,
		Hash:       hash,
		Size:       int64(len(req.Data)),
		UploadedAt: p.now().UTC(),
	}

	ictx, cancel := p.bound(ctx)
	err = p.catalog.Insert(ictx, entry)
	cancel()
	if err != nil {
		if errors.Is(err, catalog.ErrDuplicateName) {
			// A concurrent upload won the race between the duplicate check
			// and the insert. The constraint converts that into a conflict
			// instead of a second row.
			existing, lookupErr := p.catalog.GetByName(ctx, req.Owner, req.Name)
			if lookupErr != nil {
				existing = nil
			}
			return nil, &ConflictError{Kind: dedup.KindName, Existing: existing}
		}
		// The blob is written but the row is not: an orphaned blob the next
		// successful upload of this key overwrites.
		p.logger.Error("catalog insert failed after blob write",
			"owner", req.Owner, "key", key, "error", err)
		return nil, &CatalogError{Op: "insert", Err: err}
	}

	p.logger.Info("file uploaded",
		"owner", req.Owner, "file", req.Name, "category", category, "size", entry.Size)
	return entry, nil
}

// Replace overwrites the content and metadata of an existing entry, keeping
// its id, owner and storage key.
func (p *Pipeline) Replace(ctx context.Context, owner, id string, req UploadRequest) (*catalog.Entry, error) {
	if len(req.Data) == 0 || !validName(req.Name) {
		return nil, ErrInvalidInput
	}

	gctx, cancel := p.bound(ctx)
	entry, err := p.catalog.GetByID(gctx, owner, id)
	cancel()
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &CatalogError{Op: "lookup", Err: err}
	}

	hash := hasher.Sum(req.Data)
	category := p.classifier.Classify(ctx, req.Name, req.MIMEType, req.Data)

	// The blob is overwritten at the existing key; replace never moves it.
	pctx, cancel := p.bound(ctx)
	err = p.store.Put(pctx, entry.StorageKey, req.Data)
	cancel()
	if err != nil {
		return nil, &StorageError{Op: "put", Err: err}
	}

	entry.Name = req.Name
	entry.Category = category
	entry.Hash = hash
	entry.Size = int64(len(req.Data))
	entry.UploadedAt = p.now().UTC()

	uctx, cancel := p.bound(ctx)
	err = p.catalog.Update(uctx, entry)
	cancel()
	if err != nil {
		if errors.Is(err, catalog.ErrDuplicateName) {
			existing, lookupErr := p.catalog.GetByName(ctx, owner, req.Name)
			if lookupErr != nil {
				existing = nil
			}
			return nil, &ConflictError{Kind: dedup.KindName, Existing: existing}
		}
		// The stored bytes are newer than the row: stale metadata until the
		// next successful replace of this entry.
		p.logger.Error("catalog update failed after blob overwrite",
			"owner", owner, "key", entry.StorageKey, "error", err)
		return nil, &CatalogError{Op: "update", Err: err}
	}

	p.logger.Info("file replaced",
		"owner", owner, "file", entry.Name, "category", category, "size", entry.Size)
	return entry, nil
}

// Delete removes the entry known to the owner as name, blob first so an
// interrupted delete cannot leak an unreferenced blob.
func (p *Pipeline) Delete(ctx context.Context, owner, name string) error {
	gctx, cancel := p.bound(ctx)
	entry, err := p.catalog.GetByName(gctx, owner, name)
	cancel()
	if errors.Is(err, catalog.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return &CatalogError{Op: "lookup", Err: err}
	}

	sctx, cancel := p.bound(ctx)
	err = p.store.Delete(sctx, entry.StorageKey)
	cancel()
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}

	dctx, cancel := p.bound(ctx)
	err = p.catalog.Delete(dctx, entry.ID)
	cancel()
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return &CatalogError{Op: "delete", Err: err}
	}

	p.logger.Info("file deleted", "owner", owner, "file", name)
	return nil
}

// Download returns the entry and its stored bytes.
func (p *Pipeline) Download(ctx context.Context, owner, name string) (*catalog.Entry, []byte, error) {
	gctx, cancel := p.bound(ctx)
	entry, err := p.catalog.GetByName(gctx, owner, name)
	cancel()
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, &CatalogError{Op: "lookup", Err: err}
	}

	sctx, cancel := p.bound(ctx)
	data, err := p.store.Get(sctx, entry.StorageKey)
	cancel()
	if err != nil {
		// Covers a row left pointing at a missing blob by an interrupted
		// delete; it surfaces here as an access error, not silently.
		return nil, nil, &StorageError{Op: "get", Err: err}
	}
	return entry, data, nil
}

// ListedEntry is a catalog entry decorated with a presigned download URL.
// URLError marks entries whose URL could not be generated.
type ListedEntry struct {
	catalog.Entry
	URL      string `json:"url,omitempty"`
	URLError string `json:"error,omitempty"`
}

// List returns the owner's entries, most recent first, each with a presigned
// URL. Presigning fans out concurrently and a failure for one entry degrades
// only that entry.
func (p *Pipeline) List(ctx context.Context, owner string) ([]ListedEntry, error) {
	lctx, cancel := p.bound(ctx)
	entries, err := p.catalog.ListByOwner(lctx, owner)
	cancel()
	if err != nil {
		return nil, &CatalogError{Op: "list", Err: err}
	}

	// One bound covers the whole presign fan-out.
	pctx, cancel := p.bound(ctx)
	defer cancel()

	listed := make([]ListedEntry, len(entries))
	var wg sync.WaitGroup
	for i := range entries {
		listed[i].Entry = entries[i]

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url, err := p.store.Presign(pctx, entries[i].StorageKey, p.presignTTL)
			if err != nil {
				p.logger.Error("failed to presign entry",
					"owner", owner, "file", entries[i].Name, "error", err)
				listed[i].URLError = "Failed to generate download URL"
				return
			}
			listed[i].URL = url
		}(i)
	}
	wg.Wait()

	return listed, nil
}
