package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jurisync/internal/docstore"
	"jurisync/internal/domain"
	"jurisync/pkg/platform/sentinel"
)

type recordingPublisher struct {
	keys     []string
	payloads []json.RawMessage
	fail     bool
}

func (p *recordingPublisher) Publish(_ context.Context, key string, value []byte) error {
	if p.fail {
		return errors.New("broker unreachable")
	}
	p.keys = append(p.keys, key)
	p.payloads = append(p.payloads, append(json.RawMessage(nil), value...))
	return nil
}

func mirroredDoc(id int64) *domain.MirroredDocument {
	record := domain.SourceRecord{
		ID:             id,
		Source:         domain.SourceJurica,
		Text:           "texte",
		RegisterNumber: "21/04567",
		Jurisdiction:   "Cour d'appel de Lyon",
		PortalisID:     "IJ00-W-B7D-ABCDE",
	}
	return &domain.MirroredDocument{
		Key:      record.Key(),
		Source:   record.Source,
		SourceID: record.ID,
		Record:   record,
	}
}

func newIndex(t *testing.T, opts ...Option) (*Index, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store.Collection(docstore.ColLifecycle), logger, opts...), store
}

func TestRecordSightingCreatesEntry(t *testing.T) {
	idx, store := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.RecordSighting(ctx, mirroredDoc(7), Touch{Message: "première importation"}))
	assert.Equal(t, 1, store.Count(docstore.ColLifecycle))

	entry, err := idx.Entry(ctx, "jurica:7")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.SourceJurica, entry.Source)
	assert.ElementsMatch(t, []string{"21/04567", "IJ00-W-B7D-ABCDE"}, entry.References)
	assert.Equal(t, "Cour d'appel de Lyon", entry.Jurisdiction)
	require.Len(t, entry.Log, 1)
	assert.Equal(t, "première importation", entry.Log[0].Message)
	assert.False(t, entry.Deleted)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestRecordUpdateMergesAndPrependsLog(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.RecordSighting(ctx, mirroredDoc(7), Touch{Message: "première importation"}))
	require.NoError(t, idx.RecordUpdate(ctx, mirroredDoc(7), Touch{
		Message:      "contenu modifié",
		DuplicateKey: "jurinet:404",
	}))

	entry, err := idx.Entry(ctx, "jurica:7")
	require.NoError(t, err)
	require.Len(t, entry.Log, 2)
	// Newest first.
	assert.Equal(t, "contenu modifié", entry.Log[0].Message)
	assert.Equal(t, []string{"jurinet:404"}, entry.DuplicateKeys)
	assert.True(t, !entry.UpdatedAt.Before(entry.CreatedAt))
}

func TestRecordUpdateUnionsDuplicatesWithoutRepetition(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()

	doc := mirroredDoc(7)
	require.NoError(t, idx.RecordSighting(ctx, doc, Touch{DuplicateKey: "jurinet:404"}))
	require.NoError(t, idx.RecordUpdate(ctx, doc, Touch{DuplicateKey: "jurinet:404"}))
	require.NoError(t, idx.RecordUpdate(ctx, doc, Touch{DuplicateKey: "jurinet:405"}))

	entry, err := idx.Entry(ctx, "jurica:7")
	require.NoError(t, err)
	assert.Equal(t, []string{"jurinet:404", "jurinet:405"}, entry.DuplicateKeys)
}

func TestRecordUpdateOverwritesLastError(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()

	doc := mirroredDoc(7)
	require.NoError(t, idx.RecordSighting(ctx, doc, Touch{Err: errors.New("zonage indisponible")}))
	entry, err := idx.Entry(ctx, "jurica:7")
	require.NoError(t, err)
	assert.Equal(t, "zonage indisponible", entry.LastError)

	require.NoError(t, idx.RecordUpdate(ctx, doc, Touch{Err: errors.New("file de relecture indisponible")}))
	entry, err = idx.Entry(ctx, "jurica:7")
	require.NoError(t, err)
	assert.Equal(t, "file de relecture indisponible", entry.LastError)
}

func TestRecordDecisionLinked(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.RecordSighting(ctx, mirroredDoc(7), Touch{}))

	public := true
	decision := &domain.NormalizedDecision{
		ID:             "jurica:7",
		Source:         domain.SourceJurica,
		SourceID:       7,
		RegisterNumber: "21/04567",
		Jurisdiction:   "Cour d'appel de Lyon",
	}
	require.NoError(t, idx.RecordDecisionLinked(ctx, decision, Touch{
		Message: "décision normalisée",
		Public:  &public,
	}))

	entry, err := idx.Entry(ctx, "jurica:7")
	require.NoError(t, err)
	assert.Equal(t, "jurica:7", entry.DecisionID)
	require.NotNil(t, entry.Public)
	assert.True(t, *entry.Public)
}

func TestMarkDeletedFlipsFlagOnly(t *testing.T) {
	idx, store := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.RecordSighting(ctx, mirroredDoc(7), Touch{}))
	require.NoError(t, idx.MarkDeleted(ctx, "jurica:7", Touch{Message: "supprimée en amont"}))

	// The entry survives the deletion flag.
	assert.Equal(t, 1, store.Count(docstore.ColLifecycle))
	entry, err := idx.Entry(ctx, "jurica:7")
	require.NoError(t, err)
	assert.True(t, entry.Deleted)
}

func TestMarkDeletedUnknownKey(t *testing.T) {
	idx, _ := newIndex(t)
	err := idx.MarkDeleted(context.Background(), "jurica:999", Touch{})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestEventsAreEmittedPerTouch(t *testing.T) {
	pub := &recordingPublisher{}
	fixed := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	idx, _ := newIndex(t, WithPublisher(pub), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	require.NoError(t, idx.RecordSighting(ctx, mirroredDoc(7), Touch{Message: "première importation"}))
	require.NoError(t, idx.RecordUpdate(ctx, mirroredDoc(7), Touch{DuplicateKey: "jurinet:404"}))

	require.Len(t, pub.keys, 2)
	assert.Equal(t, []string{"jurica:7", "jurica:7"}, pub.keys)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &evt))
	assert.Equal(t, "sighting", evt["action"])
	assert.Equal(t, "première importation", evt["message"])
	require.NoError(t, json.Unmarshal(pub.payloads[1], &evt))
	assert.Equal(t, "update", evt["action"])
	assert.Equal(t, "jurinet:404", evt["duplicateId"])
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	idx, store := newIndex(t, WithPublisher(&recordingPublisher{fail: true}))

	require.NoError(t, idx.RecordSighting(context.Background(), mirroredDoc(7), Touch{}))
	assert.Equal(t, 1, store.Count(docstore.ColLifecycle))
}
