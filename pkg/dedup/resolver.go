// Package dedup decides whether an incoming upload collides with an existing
// catalog entry, and by which criterion.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/filevault/filevault/pkg/catalog"
)

// Kind names the criterion an upload collided on. The values double as the
// duplicateType field in conflict responses.
type Kind string

const (
	KindNone Kind = ""
	KindHash Kind = "hash"
	KindName Kind = "filename"
)

// Resolution is the outcome of a duplicate check.
type Resolution struct {
	Kind     Kind
	Existing *catalog.Entry
}

// Conflict reports whether the upload collides with an existing entry.
func (r Resolution) Conflict() bool {
	return r.Kind != KindNone
}

// Lookup is the slice of the catalog the resolver needs.
type Lookup interface {
	GetByHash(ctx context.Context, owner, hash string) (*catalog.Entry, error)
	GetByName(ctx context.Context, owner, name string) (*catalog.Entry, error)
}

// Resolver checks uploads against the catalog.
type Resolver struct {
	catalog Lookup
}

// New creates a Resolver over the given catalog.
func New(lookup Lookup) *Resolver {
	return &Resolver{catalog: lookup}
}

// Resolve checks the owner's entries for a collision. The content-hash check
// runs strictly before the name check: identical content under a different
// name is the more specific duplicate, and the conflict message differs even
// though the remedy (offer replace) is the same.
func (r *Resolver) Resolve(ctx context.Context, owner, name, hash string) (Resolution, error) {
	existing, err := r.catalog.GetByHash(ctx, owner, hash)
	if err == nil {
		return Resolution{Kind: KindHash, Existing: existing}, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return Resolution{}, fmt.Errorf("hash lookup failed: %w", err)
	}

	existing, err = r.catalog.GetByName(ctx, owner, name)
	if err == nil {
		return Resolution{Kind: KindName, Existing: existing}, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return Resolution{}, fmt.Errorf("name lookup failed: %w", err)
	}

	return Resolution{}, nil
}
