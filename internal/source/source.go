// Package source is the narrow read/write contract against the two upstream
// case-management databases. Rows are decoded into domain.SourceRecord
// exactly once, here; legacy-encoding handling never leaks past this
// boundary.
package source

import (
	"context"

	"jurisync/internal/domain"
)

// Order is the source-local id ordering of a batch fetch.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Reader is the upstream contract. Connectivity errors are returned as-is
// (not retried locally); the orchestrator wraps them as transient and aborts
// the batch.
type Reader interface {
	// FetchBatch returns up to limit records ordered by source-local id.
	FetchBatch(ctx context.Context, offset, limit int64, order Order) ([]domain.SourceRecord, error)
	// FetchNew returns records not yet marked processed by upstream
	// bookkeeping.
	FetchNew(ctx context.Context) ([]domain.SourceRecord, error)
	// MarkProcessed flags the row as consumed in upstream bookkeeping.
	MarkProcessed(ctx context.Context, id int64) error
	// MarkErroneous flags the row as failed in upstream bookkeeping.
	MarkErroneous(ctx context.Context, id int64) error
	// Source names the upstream this reader serves.
	Source() domain.Source
}
