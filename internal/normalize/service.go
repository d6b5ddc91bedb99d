// Package normalize builds and maintains the canonical decision records.
package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jurisync/internal/docstore"
	"jurisync/internal/domain"
	"jurisync/internal/zoning"
	"jurisync/pkg/platform/sentinel"
)

// Service owns the decisions collection and the per-source zoning error log.
type Service struct {
	decisions docstore.Collection
	zoneErrs  docstore.Collection
	zoner     zoning.Client
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds the normalization service.
func New(decisions, zoneErrs docstore.Collection, zoner zoning.Client, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		decisions: decisions,
		zoneErrs:  zoneErrs,
		zoner:     zoner,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// zoningErrorDoc is one entry of the per-source zoning error log, keyed by
// the document key so the sweep can find and clear it.
type zoningErrorDoc struct {
	ID       string        `json:"_id"`
	Source   domain.Source `json:"source"`
	SourceID int64         `json:"sourceId"`
	Message  string        `json:"message"`
	Date     time.Time     `json:"date"`
}

// Previous loads the stored canonical version, or nil on first sight.
func (s *Service) Previous(ctx context.Context, source domain.Source, id int64) (*domain.NormalizedDecision, error) {
	raw, err := s.decisions.FindOne(ctx, docstore.Filter{"_id": domain.Key(source, id)})
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("decision read", err)
	}
	var decision domain.NormalizedDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &decision, nil
}

// Normalize runs the transform, attaches zoning, stamps the publicity
// verdict, and persists the result.
//
// A locked previous version is returned untouched with no write: the
// pipeline must not replace a locked decision's substantive fields.
// Zoning failure is non-fatal: the decision is persisted without the zone
// map and the failure is recorded for the dedicated sweep.
func (s *Service) Normalize(ctx context.Context, mirrored *domain.MirroredDocument, previous *domain.NormalizedDecision, verdict domain.PublicityVerdict, opts Options) (*domain.NormalizedDecision, error) {
	if previous != nil && previous.Locked {
		return previous, nil
	}

	decision, err := Build(mirrored, previous, opts, s.now())
	if err != nil {
		return nil, err
	}
	decision.Publicity = verdict

	if decision.PseudoText != "" && decision.Zoning == nil {
		s.attachZoning(ctx, decision)
	}

	if err := s.persist(ctx, decision, previous); err != nil {
		return nil, err
	}
	return decision, nil
}

func (s *Service) attachZoning(ctx context.Context, decision *domain.NormalizedDecision) {
	zones, err := s.zoner.Zone(ctx, decision.SourceID, decision.Source, decision.PseudoText)
	if err != nil {
		s.recordZoningFailure(ctx, decision, err)
		return
	}
	decision.Zoning = zones
	s.clearZoningFailure(ctx, decision.Key())
}

func (s *Service) recordZoningFailure(ctx context.Context, decision *domain.NormalizedDecision, cause error) {
	s.logger.Warn("zoning failed, decision kept without zones",
		"key", decision.Key(), "err", cause)

	doc := zoningErrorDoc{
		ID:       decision.Key(),
		Source:   decision.Source,
		SourceID: decision.SourceID,
		Message:  cause.Error(),
		Date:     s.now(),
	}
	if err := s.zoneErrs.ReplaceOne(ctx, docstore.Filter{"_id": doc.ID}, doc); err != nil &&
		!errors.Is(err, sentinel.ErrReadOnly) {
		s.logger.Error("failed to record zoning failure", "key", doc.ID, "err", err)
	}
}

func (s *Service) clearZoningFailure(ctx context.Context, key string) {
	if err := s.zoneErrs.DeleteOne(ctx, docstore.Filter{"_id": key}); err != nil &&
		!errors.Is(err, sentinel.ErrReadOnly) {
		s.logger.Error("failed to clear zoning error entry", "key", key, "err", err)
	}
}

func (s *Service) persist(ctx context.Context, decision *domain.NormalizedDecision, previous *domain.NormalizedDecision) error {
	var err error
	if previous == nil {
		err = s.decisions.InsertOne(ctx, decision)
	} else {
		err = s.decisions.ReplaceOne(ctx, docstore.Filter{"_id": decision.ID}, decision)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrReadOnly) {
			return err
		}
		return domain.Transient("decision write", err)
	}
	return nil
}

// RemovePublic removes the public projection of a decision that failed a
// publicity check after having been public. The mirror is kept; only the
// canonical record disappears.
func (s *Service) RemovePublic(ctx context.Context, source domain.Source, id int64) error {
	err := s.decisions.DeleteOne(ctx, docstore.Filter{"_id": domain.Key(source, id)})
	if err != nil {
		if errors.Is(err, sentinel.ErrReadOnly) {
			return err
		}
		return domain.Transient("decision delete", err)
	}
	return nil
}

// SweepZoning re-attempts zoning for decisions that have pseudonymized text
// but no zone map. The repair updates the stored decision in place without
// advancing its revision: zoning is an annotation, not a content change.
// Returns (repaired, attempted).
func (s *Service) SweepZoning(ctx context.Context) (int, int, error) {
	cursor, err := s.decisions.Find(ctx, nil)
	if err != nil {
		return 0, 0, domain.Transient("zoning sweep scan", err)
	}
	defer cursor.Close()

	repaired, attempted := 0, 0
	for cursor.Next(ctx) {
		var decision domain.NormalizedDecision
		if err := cursor.Decode(&decision); err != nil {
			s.logger.Error("zoning sweep: undecodable decision skipped", "err", err)
			continue
		}
		if decision.Locked || decision.PseudoText == "" || decision.Zoning != nil {
			continue
		}

		attempted++
		zones, err := s.zoner.Zone(ctx, decision.SourceID, decision.Source, decision.PseudoText)
		if err != nil {
			s.recordZoningFailure(ctx, &decision, err)
			continue
		}
		decision.Zoning = zones
		decision.UpdatedAt = s.now()
		if err := s.decisions.ReplaceOne(ctx, docstore.Filter{"_id": decision.ID}, decision); err != nil {
			if errors.Is(err, sentinel.ErrReadOnly) {
				continue
			}
			return repaired, attempted, domain.Transient("zoning sweep write", err)
		}
		s.clearZoningFailure(ctx, decision.ID)
		repaired++
	}
	if err := cursor.Err(); err != nil {
		return repaired, attempted, domain.Transient("zoning sweep cursor", err)
	}
	return repaired, attempted, nil
}
