// Package mirror maintains the verbatim local copy of each upstream record,
// gated by a content hash so unchanged rows cost no writes.
package mirror

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"jurisync/internal/docstore"
	"jurisync/internal/domain"
	"jurisync/pkg/platform/sentinel"
)

// Outcome classifies one sync call.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Changed reports whether the mirror was written.
func (o Outcome) Changed() bool {
	return o == OutcomeCreated || o == OutcomeUpdated
}

// Service owns the mirror collection. One instance per upstream source is
// constructed at process start; nothing else writes that collection.
type Service struct {
	col    docstore.Collection
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a mirror service over the mirror collection.
func New(col docstore.Collection, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{col: col, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ContentHash computes the stable hash over the record's full normalized
// field set. The JSON encoding of SourceRecord has a fixed field order, so
// equal records always hash equal.
func ContentHash(record domain.SourceRecord) (string, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("hash record %s: %w", record.Key(), err)
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Sync upserts the record into the mirror. knownHash is the hash persisted
// by the previous completed run ("" when unknown); when it is empty the
// stored mirror document is consulted instead, so a hand-reset hash file
// only costs one extra read per record.
//
// The returned hash is always the record's current content hash, regardless
// of outcome.
func (s *Service) Sync(ctx context.Context, record domain.SourceRecord, knownHash string) (Outcome, string, error) {
	hash, err := ContentHash(record)
	if err != nil {
		return "", "", err
	}

	key := record.Key()
	previous := knownHash
	exists := previous != ""

	if previous == "" {
		stored, err := s.fetch(ctx, key)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			// first sighting
		case err != nil:
			return "", "", domain.Transient("mirror read", err)
		default:
			previous = stored.Hash
			exists = true
		}
	}

	if exists && previous == hash {
		return OutcomeUnchanged, hash, nil
	}

	now := s.now()
	doc := domain.MirroredDocument{
		Key:      key,
		Source:   record.Source,
		SourceID: record.ID,
		Hash:     hash,
		Record:   record,
		Updated:  true,
		LastSeen: now,
	}

	if !exists {
		doc.FirstSeen = now
		if err := s.col.InsertOne(ctx, doc); err != nil {
			if errors.Is(err, sentinel.ErrReadOnly) {
				return OutcomeCreated, hash, err
			}
			return "", "", domain.Transient("mirror insert", err)
		}
		return OutcomeCreated, hash, nil
	}

	if stored, err := s.fetch(ctx, key); err == nil {
		doc.FirstSeen = stored.FirstSeen
	} else {
		doc.FirstSeen = now
	}
	if err := s.col.ReplaceOne(ctx, docstore.Filter{"_id": key}, doc); err != nil {
		if errors.Is(err, sentinel.ErrReadOnly) {
			return OutcomeUpdated, hash, err
		}
		return "", "", domain.Transient("mirror replace", err)
	}
	return OutcomeUpdated, hash, nil
}

// Get loads one mirrored document.
func (s *Service) Get(ctx context.Context, source domain.Source, id int64) (*domain.MirroredDocument, error) {
	return s.fetch(ctx, domain.Key(source, id))
}

// ClearUpdated marks the mirrored document as consumed by normalization.
func (s *Service) ClearUpdated(ctx context.Context, key string) error {
	doc, err := s.fetch(ctx, key)
	if err != nil {
		return err
	}
	if !doc.Updated {
		return nil
	}
	doc.Updated = false
	if err := s.col.ReplaceOne(ctx, docstore.Filter{"_id": key}, doc); err != nil {
		if errors.Is(err, sentinel.ErrReadOnly) {
			return err
		}
		return domain.Transient("mirror clear updated", err)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, key string) (*domain.MirroredDocument, error) {
	raw, err := s.col.FindOne(ctx, docstore.Filter{"_id": key})
	if err != nil {
		return nil, err
	}
	var doc domain.MirroredDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode mirror %s: %w", key, err)
	}
	return &doc, nil
}
