package pipeline

import (
	"errors"
	"fmt"

	"github.com/filevault/filevault/pkg/catalog"
	"github.com/filevault/filevault/pkg/dedup"
)

var (
	// ErrInvalidInput rejects empty payloads and names that are not a plain
	// file name before any side effect.
	ErrInvalidInput = errors.New("pipeline: file content must not be empty and name must be a plain file name")

	// ErrNotFound is returned by replace, delete and download when no entry
	// matches.
	ErrNotFound = errors.New("pipeline: file not found")
)

// ConflictError blocks an upload that collides with an existing entry. It is
// raised before any blob or catalog write, and carries enough of the existing
// entry for the caller to offer a replace action.
type ConflictError struct {
	Kind     dedup.Kind
	Existing *catalog.Entry
}

func (e *ConflictError) Error() string {
	if e.Kind == dedup.KindHash {
		return "pipeline: file with identical content already exists"
	}
	return "pipeline: file with the same name already exists"
}

// StorageError reports an object store failure. No catalog state was written,
// so retrying the whole operation is safe.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("pipeline: object store %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CatalogError reports a metadata catalog failure. When it follows a
// successful blob write the blob is orphaned until the next successful write
// to the same key overwrites it.
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("pipeline: catalog %s failed: %v", e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }
