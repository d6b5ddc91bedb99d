// Package orchestrator drives batches of source records through the
// mirror, clustering, normalization and lifecycle stages, and owns the
// cross-run offset bookkeeping.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"jurisync/internal/affaire"
	"jurisync/internal/domain"
	"jurisync/internal/duplicate"
	"jurisync/internal/lifecycle"
	"jurisync/internal/mirror"
	"jurisync/internal/normalize"
	"jurisync/internal/platform/metrics"
	"jurisync/internal/publicity"
	"jurisync/internal/reviewqueue"
	"jurisync/internal/runstate"
	"jurisync/internal/source"
	"jurisync/pkg/platform/sentinel"
)

// Params collects the orchestrator's collaborators. One orchestrator per
// upstream source; the scheduler must not run two for the same source
// concurrently.
type Params struct {
	Reader     source.Reader
	Mirror     *mirror.Service
	Duplicates *duplicate.Resolver
	Clusterer  *affaire.Clusterer
	Normalizer *normalize.Service
	Taxonomy   publicity.TaxonomySource
	Lifecycle  *lifecycle.Index
	Review     reviewqueue.Client
	State      *runstate.Store
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	BatchSize           int64
	EmptyRoundThreshold int
	OffsetCeiling       int64
}

// Summary is one batch's counters, logged as a single structured line.
type Summary struct {
	Fetched        int
	New            int
	Updated        int
	Unchanged      int
	Skipped        int
	Normalized     int
	Contradictions int
	Reviewed       int
	Removed        int
}

func (s Summary) productive() bool {
	return s.New+s.Updated+s.Normalized > 0
}

type Service struct {
	p Params
}

func New(p Params) *Service {
	return &Service{p: p}
}

// RunBatch processes one batch for the orchestrator's source. Records are
// fetched descending so recent activity is seen first even under resume,
// then replayed ascending so offsets remain meaningful. Transient errors
// abort the batch with no state persisted; the next scheduled run
// reprocesses the tail (at-least-once, idempotent writes).
func (s *Service) RunBatch(ctx context.Context) (Summary, error) {
	src := s.p.Reader.Source()
	label := string(src)

	state, err := s.p.State.Load(src)
	if err != nil {
		s.p.Metrics.BatchesAborted.WithLabelValues(label).Inc()
		return Summary{}, domain.Transient("run state load", err)
	}

	ctx, span := otel.Tracer("jurisync").Start(ctx, "sync.batch",
		trace.WithAttributes(
			attribute.String("source", label),
			attribute.Int64("offset", state.Offset),
		),
	)
	defer span.End()

	records, err := s.p.Reader.FetchBatch(ctx, state.Offset, s.p.BatchSize, source.OrderDesc)
	if err != nil {
		s.p.Metrics.BatchesAborted.WithLabelValues(label).Inc()
		return Summary{}, domain.Transient("batch fetch", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	var summary Summary
	summary.Fetched = len(records)
	s.p.Metrics.RecordsFetched.WithLabelValues(label).Add(float64(len(records)))

	start := time.Now()
	for _, record := range records {
		if _, err := s.processRecord(ctx, record, &state, &summary); err != nil {
			s.p.Metrics.BatchesAborted.WithLabelValues(label).Inc()
			span.RecordError(err)
			return summary, err
		}
		// The offset is a row-skip count into the id-ordered upstream
		// table, advanced per record and persisted only on completion.
		state.Offset++
	}

	if summary.productive() {
		state.EmptyRounds = 0
	} else {
		state.EmptyRounds++
	}
	if state.EmptyRounds > s.p.EmptyRoundThreshold || state.Offset > s.p.OffsetCeiling {
		s.p.Logger.Info("cursor exhausted, restarting loop",
			"source", label, "offset", state.Offset, "emptyRounds", state.EmptyRounds)
		state.Offset = 0
		state.EmptyRounds = 0
	}

	if err := s.p.State.Store(src, state); err != nil {
		s.p.Metrics.BatchesAborted.WithLabelValues(label).Inc()
		return summary, domain.Transient("run state store", err)
	}

	s.p.Metrics.BatchesCompleted.WithLabelValues(label).Inc()
	s.p.Logger.Info("batch complete",
		"source", label,
		"fetched", summary.Fetched,
		"new", summary.New,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"skipped", summary.Skipped,
		"normalized", summary.Normalized,
		"contradictions", summary.Contradictions,
		"reviewed", summary.Reviewed,
		"removed", summary.Removed,
		"offset", state.Offset,
		"emptyRounds", state.EmptyRounds,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return summary, nil
}

// SyncNew processes the rows upstream bookkeeping marks as new, outside the
// offset cursor, and acknowledges them once mirrored.
func (s *Service) SyncNew(ctx context.Context) (Summary, error) {
	src := s.p.Reader.Source()
	label := string(src)

	state, err := s.p.State.Load(src)
	if err != nil {
		return Summary{}, domain.Transient("run state load", err)
	}

	records, err := s.p.Reader.FetchNew(ctx)
	if err != nil {
		return Summary{}, domain.Transient("new rows fetch", err)
	}

	var summary Summary
	summary.Fetched = len(records)
	s.p.Metrics.RecordsFetched.WithLabelValues(label).Add(float64(len(records)))

	for _, record := range records {
		skipped, err := s.processRecord(ctx, record, &state, &summary)
		if err != nil {
			return summary, err
		}
		if skipped {
			// The row was flagged erroneous; acknowledging it would
			// reset that flag upstream.
			continue
		}
		if err := s.p.Reader.MarkProcessed(ctx, record.ID); err != nil {
			return summary, domain.Transient("mark processed", err)
		}
	}

	if err := s.p.State.Store(src, state); err != nil {
		return summary, domain.Transient("run state store", err)
	}
	return summary, nil
}

// processRecord runs one record through the full stage chain. Only
// transient errors are returned; integrity errors skip the record (reported
// through the skipped result) and service errors degrade the produced
// document.
func (s *Service) processRecord(ctx context.Context, record domain.SourceRecord, state *runstate.State, summary *Summary) (bool, error) {
	src := record.Source
	label := string(src)
	key := record.Key()

	outcome, hash, err := s.p.Mirror.Sync(ctx, record, state.Hashes[key])
	switch {
	case s.droppedWrite(err, label):
		// The hash must not be recorded: a later writable run has to see
		// the record as unseen, or the mirror stays missing forever.
	case domain.IsTransient(err):
		return false, err
	case err != nil:
		return false, domain.Transient("mirror sync", err)
	default:
		state.Hashes[key] = hash
	}

	doc, err := s.mirroredDoc(ctx, record, hash)
	if err != nil {
		return false, err
	}

	previous, err := s.p.Normalizer.Previous(ctx, src, record.ID)
	if err != nil {
		return false, err
	}

	if !outcome.Changed() && !normalize.NeedsNormalization(doc, previous) {
		summary.Unchanged++
		s.p.Metrics.RecordsUnchanged.WithLabelValues(label).Inc()
		return false, nil
	}

	touch := lifecycle.Touch{}

	if res := s.p.Duplicates.Resolve(ctx, record); res.Found() {
		touch.DuplicateKey = res.Key
	} else if res.Status == duplicate.StatusUnknown {
		// Lookup failure must not be read as "original"; leave the link
		// for a later run and record the failure.
		s.p.Logger.Warn("duplicate lookup failed", "key", key, "err", res.Err)
		touch.Err = res.Err
	}

	affaireOutcome, err := s.p.Clusterer.IndexAffaire(ctx, record)
	switch {
	case s.droppedWrite(err, label):
	case err != nil:
		return false, err
	default:
		touch.Message = "affaire indexing: " + string(affaireOutcome)
	}

	switch outcome {
	case mirror.OutcomeCreated:
		summary.New++
		s.p.Metrics.RecordsNew.WithLabelValues(label).Inc()
		if err := s.p.Lifecycle.RecordSighting(ctx, doc, touch); err != nil && !s.droppedWrite(err, label) {
			return false, err
		}
	case mirror.OutcomeUpdated:
		summary.Updated++
		s.p.Metrics.RecordsUpdated.WithLabelValues(label).Inc()
		if err := s.p.Lifecycle.RecordUpdate(ctx, doc, touch); err != nil && !s.droppedWrite(err, label) {
			return false, err
		}
	default:
		// Unchanged mirror but stale schema or missing zoning.
		if err := s.p.Lifecycle.RecordUpdate(ctx, doc, touch); err != nil && !s.droppedWrite(err, label) {
			return false, err
		}
	}

	verdict, err := s.classify(ctx, record, summary)
	if err != nil {
		return false, err
	}

	if verdict.Rejected && previous != nil && previous.Publicity == domain.VerdictPublic {
		return false, s.removePublic(ctx, record, doc, summary)
	}

	opts := normalize.Options{}
	if previous != nil && previous.Version != domain.SchemaVersion {
		// Sticky carry would keep the stale schema stamp, so the rebuilt
		// decision would look stale again on every batch.
		opts.ForceRederive = true
	}

	decision, err := s.p.Normalizer.Normalize(ctx, doc, previous, verdict.Outcome(), opts)
	switch {
	case domain.IsIntegrity(err):
		summary.Skipped++
		s.p.Metrics.RecordsSkipped.WithLabelValues(label).Inc()
		s.p.Logger.Warn("document skipped", "key", key, "err", err)
		if lErr := s.p.Lifecycle.RecordUpdate(ctx, doc, lifecycle.Touch{Err: err}); lErr != nil && !s.droppedWrite(lErr, label) {
			return false, lErr
		}
		if mErr := s.p.Reader.MarkErroneous(ctx, record.ID); mErr != nil {
			return false, domain.Transient("mark erroneous", mErr)
		}
		return true, nil
	case errors.Is(err, sentinel.ErrReadOnly):
		s.p.Metrics.DroppedWrites.WithLabelValues(label).Inc()
		return false, nil
	case err != nil:
		return false, err
	}

	summary.Normalized++
	s.p.Metrics.DecisionsNormalized.WithLabelValues(label).Inc()
	if decision.Zoning == nil && decision.PseudoText != "" {
		s.p.Metrics.ZoningFailures.WithLabelValues(label).Inc()
	}

	public := verdict.Outcome() == domain.VerdictPublic
	linkTouch := lifecycle.Touch{
		DuplicateKey: touch.DuplicateKey,
		Public:       &public,
		Message:      "decision normalized",
	}
	if decision.DecattID != "" {
		linkTouch.DecattID = decision.DecattID
	}
	if err := s.p.Lifecycle.RecordDecisionLinked(ctx, decision, linkTouch); err != nil && !s.droppedWrite(err, label) {
		return false, err
	}

	if verdict.Review {
		s.submitForReview(ctx, record, summary)
	}

	if err := s.p.Mirror.ClearUpdated(ctx, key); err != nil &&
		!errors.Is(err, sentinel.ErrReadOnly) && !errors.Is(err, sentinel.ErrNotFound) {
		return false, err
	}
	return false, nil
}

// droppedWrite absorbs a read-only write rejection and counts it.
func (s *Service) droppedWrite(err error, label string) bool {
	if errors.Is(err, sentinel.ErrReadOnly) {
		s.p.Metrics.DroppedWrites.WithLabelValues(label).Inc()
		return true
	}
	return false
}

// removePublic retracts the canonical record of a decision that fails the
// publicity check after having been public. The mirror copy is kept.
func (s *Service) removePublic(ctx context.Context, record domain.SourceRecord, doc *domain.MirroredDocument, summary *Summary) error {
	label := string(record.Source)

	err := s.p.Normalizer.RemovePublic(ctx, record.Source, record.ID)
	switch {
	case errors.Is(err, sentinel.ErrReadOnly):
		s.p.Metrics.DroppedWrites.WithLabelValues(label).Inc()
		return nil
	case err != nil:
		return err
	}

	summary.Removed++
	s.p.Logger.Info("public projection removed", "key", record.Key())

	public := false
	touch := lifecycle.Touch{Public: &public, Message: "public projection removed"}
	if err := s.p.Lifecycle.RecordUpdate(ctx, doc, touch); err != nil {
		return err
	}

	if err := s.p.Mirror.ClearUpdated(ctx, record.Key()); err != nil &&
		!errors.Is(err, sentinel.ErrReadOnly) && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	return nil
}

// classify loads the taxonomy tables fresh on every record; they may be
// refreshed between invocations and predicates are never cached.
func (s *Service) classify(ctx context.Context, record domain.SourceRecord, summary *Summary) (publicity.Verdict, error) {
	tables, err := s.p.Taxonomy.Tables(ctx)
	if err != nil {
		return publicity.Verdict{}, domain.Transient("taxonomy load", err)
	}

	verdict, err := publicity.Classify(tables, record.NACCode, record.NACSubCode, (*int)(record.PublicityFlag))
	if domain.IsContradiction(err) {
		summary.Contradictions++
		s.p.Metrics.Contradictions.WithLabelValues(string(record.Source)).Inc()
		s.p.Logger.Warn("publicity contradiction, sending to review",
			"key", record.Key(), "err", err)
		return verdict, nil
	}
	if err != nil {
		return publicity.Verdict{}, err
	}
	return verdict, nil
}

func (s *Service) submitForReview(ctx context.Context, record domain.SourceRecord, summary *Summary) {
	item := reviewqueue.Item{
		SourceID:              record.ID,
		SourceDB:              record.Source,
		JurisdictionName:      record.Jurisdiction,
		FieldCode:             record.NACCode,
		PublicityClerkRequest: clerkRequest(record.PublicityFlag),
	}
	if date := normalize.AssembleDate(record.DecisionDate); date != nil {
		item.DecisionDate = date.Format(time.DateOnly)
	}

	if err := s.p.Review.Submit(ctx, []reviewqueue.Item{item}); err != nil {
		s.p.Logger.Warn("review queue submission failed", "key", record.Key(), "err", err)
		if lErr := s.p.Lifecycle.RecordUpdate(ctx, s.touchDocFor(record), lifecycle.Touch{Err: err}); lErr != nil {
			s.p.Logger.Error("lifecycle error annotation failed", "key", record.Key(), "err", lErr)
		}
		return
	}
	summary.Reviewed++
	s.p.Metrics.ReviewSubmissions.WithLabelValues(string(record.Source)).Inc()
}

// clerkRequest renders the manual flag for the review-queue contract.
func clerkRequest(flag domain.Flag) string {
	switch {
	case flag == nil:
		return "unspecified"
	case *flag == 1:
		return "public"
	default:
		return "notPublic"
	}
}

// mirroredDoc loads the persisted mirror copy, falling back to an in-memory
// projection when the store is read-only and holds nothing.
func (s *Service) mirroredDoc(ctx context.Context, record domain.SourceRecord, hash string) (*domain.MirroredDocument, error) {
	doc, err := s.p.Mirror.Get(ctx, record.Source, record.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &domain.MirroredDocument{
			Key:      record.Key(),
			Source:   record.Source,
			SourceID: record.ID,
			Hash:     hash,
			Record:   record,
			Updated:  true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) touchDocFor(record domain.SourceRecord) *domain.MirroredDocument {
	return &domain.MirroredDocument{
		Key:      record.Key(),
		Source:   record.Source,
		SourceID: record.ID,
		Record:   record,
	}
}
