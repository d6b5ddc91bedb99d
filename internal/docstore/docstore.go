// Package docstore exposes the canonical document store through generic
// find/insert/replace/delete primitives, one Collection per logical
// collection. The pipeline never issues richer queries than equality
// filters, so the contract stays narrow on purpose.
package docstore

import (
	"context"
	"encoding/json"
)

// Collection names. Constructed once at process start and passed by
// reference into the components that own them.
const (
	ColMirror       = "mirror"
	ColDecisions    = "decisions"
	ColAffaires     = "affaires"
	ColLifecycle    = "lifecycle"
	ColTaxonomy     = "taxonomy"
	ColZoningErrors = "zoning_errors"
)

// Filter is an equality match on top-level document fields. The "_id" key
// matches the document key directly.
type Filter map[string]any

// Cursor is a lazy, restartable iterator over a bulk scan. Callers own the
// lifetime: every opened cursor must be closed.
type Cursor interface {
	// Next advances the cursor. It returns false at the end of the result
	// set or on error; check Err after the loop.
	Next(ctx context.Context) bool
	// Decode unmarshals the current document into v.
	Decode(v any) error
	Err() error
	Close() error
}

// Collection is one logical collection of JSON documents keyed by "_id".
//
// Writes are rejected with sentinel.ErrReadOnly (and logged) when the store
// is configured read-only. All writes are idempotent upserts or deletes by
// key, which is what makes mid-batch crashes safe to replay.
type Collection interface {
	// FindOne returns the first matching document or sentinel.ErrNotFound.
	FindOne(ctx context.Context, filter Filter) (json.RawMessage, error)
	// InsertOne stores a new document; sentinel.ErrConflict when the key
	// already exists.
	InsertOne(ctx context.Context, doc any) error
	// ReplaceOne upserts the document matching the key filter.
	ReplaceOne(ctx context.Context, filter Filter, doc any) error
	// DeleteOne removes the matching document; missing documents are not
	// an error.
	DeleteOne(ctx context.Context, filter Filter) error
	// Find opens a cursor over every matching document.
	Find(ctx context.Context, filter Filter) (Cursor, error)
}

// Store hands out collections.
type Store interface {
	Collection(name string) Collection
	Health(ctx context.Context) error
	Close() error
}

// DocumentID extracts the "_id" field from a marshaled document.
func DocumentID(doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	var envelope struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", err
	}
	return envelope.ID, nil
}
