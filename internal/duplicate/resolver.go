// Package duplicate detects decisions present in both upstream sources
// under a shared Portalis id and a date-proximity window.
package duplicate

import (
	"context"
	"log/slog"

	"jurisync/internal/docstore"
	"jurisync/internal/domain"
	"jurisync/internal/normalize"
)

// Status distinguishes a confirmed match from the absence of data and
// from a lookup that could not complete.
type Status int

const (
	// StatusNone means the record carries no Portalis id, or no
	// counterpart document matched. Callers treat the record as original.
	StatusNone Status = iota
	// StatusResolved means a counterpart document matched.
	StatusResolved
	// StatusUnknown means the lookup itself failed. Callers must not
	// conclude "not a duplicate" from this.
	StatusUnknown
)

// Resolution is the resolver outcome. Key is set only for StatusResolved,
// Err only for StatusUnknown.
type Resolution struct {
	Status Status
	Key    string
	Err    error
}

func (r Resolution) Found() bool { return r.Status == StatusResolved }

func noDuplicate() Resolution           { return Resolution{Status: StatusNone} }
func duplicateOf(key string) Resolution { return Resolution{Status: StatusResolved, Key: key} }
func unknown(err error) Resolution      { return Resolution{Status: StatusUnknown, Err: err} }

// Resolver scans the mirror for cross-source duplicates.
type Resolver struct {
	mirror docstore.Collection
	logger *slog.Logger
}

func NewResolver(mirror docstore.Collection, logger *slog.Logger) *Resolver {
	return &Resolver{mirror: mirror, logger: logger}
}

// Resolve looks for a counterpart of an appellate record among the mirrored
// supreme-court documents sharing its Portalis id, accepting the first one
// whose decision date falls within one day of the record's own date. The
// first match under the mirror's iteration order wins; ordering beyond that
// is a known non-determinism of the matching heuristic.
func (r *Resolver) Resolve(ctx context.Context, record domain.SourceRecord) Resolution {
	if record.Source != domain.SourceJurica || record.PortalisID == "" {
		return noDuplicate()
	}
	date := normalize.AssembleDate(record.DecisionDate)
	if date == nil {
		return noDuplicate()
	}
	lo := date.AddDate(0, 0, -1)
	hi := date.AddDate(0, 0, 1)

	cursor, err := r.mirror.Find(ctx, docstore.Filter{"source": record.Source.Counterpart()})
	if err != nil {
		return unknown(domain.Transient("duplicate scan", err))
	}
	defer cursor.Close()

	for cursor.Next(ctx) {
		var doc domain.MirroredDocument
		if err := cursor.Decode(&doc); err != nil {
			r.logger.Warn("duplicate scan: undecodable mirror document skipped", "err", err)
			continue
		}
		if doc.Record.PortalisID != record.PortalisID {
			continue
		}
		other := normalize.AssembleDate(doc.Record.DecisionDate)
		if other == nil {
			continue
		}
		if !other.Before(lo) && !other.After(hi) {
			return duplicateOf(doc.Key)
		}
	}
	if err := cursor.Err(); err != nil {
		return unknown(domain.Transient("duplicate scan", err))
	}
	return noDuplicate()
}
