// Package lifecycle maintains the per-document audit trail and current-state
// snapshot, and emits one event per pipeline touch.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"jurisync/internal/docstore"
	"jurisync/internal/domain"
	"jurisync/pkg/platform/sentinel"
	pstrings "jurisync/pkg/platform/strings"
)

// Publisher is the event sink. The docstore copy is the durable record;
// publish failures are logged and never fatal.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Touch carries the optional annotations of one pipeline touch.
type Touch struct {
	DuplicateKey string
	DecattID     string
	Message      string
	Public       *bool
	Err          error
}

// Index owns the lifecycle collection.
type Index struct {
	col       docstore.Collection
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the index.
type Option func(*Index)

// WithPublisher attaches an event sink. Without one, touches are stored
// but not emitted.
func WithPublisher(p Publisher) Option {
	return func(i *Index) { i.publisher = p }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(i *Index) { i.now = now }
}

func New(col docstore.Collection, logger *slog.Logger, opts ...Option) *Index {
	i := &Index{col: col, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// event is the wire shape published per touch.
type event struct {
	ID          string        `json:"id"`
	Source      domain.Source `json:"source"`
	SourceID    int64         `json:"sourceId"`
	Action      string        `json:"action"`
	DuplicateID string        `json:"duplicateId,omitempty"`
	Message     string        `json:"message,omitempty"`
	Error       string        `json:"error,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// RecordSighting creates or refreshes the entry for a newly mirrored
// document.
func (i *Index) RecordSighting(ctx context.Context, doc *domain.MirroredDocument, touch Touch) error {
	return i.record(ctx, projectRecord(doc.Record), touch, "sighting")
}

// RecordUpdate refreshes the entry after a mirror replacement.
func (i *Index) RecordUpdate(ctx context.Context, doc *domain.MirroredDocument, touch Touch) error {
	return i.record(ctx, projectRecord(doc.Record), touch, "update")
}

// RecordDecisionLinked attaches the canonical record's store id to the
// entry matching its source document.
func (i *Index) RecordDecisionLinked(ctx context.Context, decision *domain.NormalizedDecision, touch Touch) error {
	projection := domain.LifecycleEntry{
		Key:          decision.Key(),
		Source:       decision.Source,
		SourceID:     decision.SourceID,
		References:   []string{decision.RegisterNumber},
		Jurisdiction: decision.Jurisdiction,
		DecisionID:   decision.ID,
	}
	return i.record(ctx, projection, touch, "decision-linked")
}

// MarkDeleted flips the deletion flag. The entry itself is never removed.
func (i *Index) MarkDeleted(ctx context.Context, key string, touch Touch) error {
	entry, err := i.load(ctx, key)
	if err != nil {
		return err
	}
	if entry == nil {
		return sentinel.ErrNotFound
	}
	entry.Deleted = true
	i.annotate(entry, touch)
	if err := i.persist(ctx, entry); err != nil {
		return err
	}
	i.emit(ctx, entry, "deleted", touch)
	return nil
}

// Entry loads the current snapshot, or nil when the document was never
// sighted.
func (i *Index) Entry(ctx context.Context, key string) (*domain.LifecycleEntry, error) {
	return i.load(ctx, key)
}

func projectRecord(record domain.SourceRecord) domain.LifecycleEntry {
	references := []string{record.RegisterNumber}
	if record.PortalisID != "" {
		references = append(references, record.PortalisID)
	}
	return domain.LifecycleEntry{
		Key:          record.Key(),
		Source:       record.Source,
		SourceID:     record.ID,
		References:   references,
		Jurisdiction: record.Jurisdiction,
	}
}

func (i *Index) record(ctx context.Context, projection domain.LifecycleEntry, touch Touch, action string) error {
	now := i.now()

	entry, err := i.load(ctx, projection.Key)
	if err != nil {
		return err
	}
	if entry == nil {
		entry = &projection
		entry.CreatedAt = now
	} else {
		entry.MergeFrom(projection)
	}
	entry.UpdatedAt = now

	if touch.DuplicateKey != "" {
		entry.DuplicateKeys = pstrings.Union(entry.DuplicateKeys, []string{touch.DuplicateKey})
	}
	if touch.DecattID != "" {
		entry.DecattIDs = pstrings.Union(entry.DecattIDs, []string{touch.DecattID})
	}
	i.annotate(entry, touch)

	if err := i.persist(ctx, entry); err != nil {
		return err
	}
	i.emit(ctx, entry, action, touch)
	return nil
}

func (i *Index) annotate(entry *domain.LifecycleEntry, touch Touch) {
	entry.Prepend(i.now(), touch.Message)
	if touch.Public != nil {
		entry.Public = touch.Public
	}
	if touch.Err != nil {
		entry.LastError = touch.Err.Error()
	}
}

func (i *Index) load(ctx context.Context, key string) (*domain.LifecycleEntry, error) {
	raw, err := i.col.FindOne(ctx, docstore.Filter{"_id": key})
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("lifecycle read", err)
	}
	var entry domain.LifecycleEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, domain.Transient("lifecycle decode", err)
	}
	return &entry, nil
}

func (i *Index) persist(ctx context.Context, entry *domain.LifecycleEntry) error {
	err := i.col.ReplaceOne(ctx, docstore.Filter{"_id": entry.Key}, entry)
	if err != nil {
		if errors.Is(err, sentinel.ErrReadOnly) {
			return err
		}
		return domain.Transient("lifecycle write", err)
	}
	return nil
}

func (i *Index) emit(ctx context.Context, entry *domain.LifecycleEntry, action string, touch Touch) {
	if i.publisher == nil {
		return
	}
	evt := event{
		ID:          entry.Key,
		Source:      entry.Source,
		SourceID:    entry.SourceID,
		Action:      action,
		DuplicateID: touch.DuplicateKey,
		Message:     touch.Message,
		Timestamp:   i.now(),
	}
	if touch.Err != nil {
		evt.Error = touch.Err.Error()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		i.logger.Error("lifecycle event encode failed", "key", entry.Key, "err", err)
		return
	}
	if err := i.publisher.Publish(ctx, entry.Key, payload); err != nil {
		i.logger.Warn("lifecycle event publish failed", "key", entry.Key, "action", action, "err", err)
	}
}
