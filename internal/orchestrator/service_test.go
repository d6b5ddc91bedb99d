package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"jurisync/internal/affaire"
	"jurisync/internal/docstore"
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
	"jurisync/internal/zoning"
	"jurisync/internal/zoning/mock"
)

type fakeReview struct {
	submitted []reviewqueue.Item
}

func (f *fakeReview) Submit(_ context.Context, items []reviewqueue.Item) error {
	f.submitted = append(f.submitted, items...)
	return nil
}

func (f *fakeReview) PollReleasable(context.Context) ([]reviewqueue.Item, error) { return nil, nil }
func (f *fakeReview) PollNonPublic(context.Context) ([]reviewqueue.Item, error)  { return nil, nil }
func (f *fakeReview) Delete(context.Context, string) error                       { return nil }

type env struct {
	svc    *Service
	reader *source.MemoryReader
	store  *docstore.MemoryStore
	review *fakeReview
	state  *runstate.Store
}

func newEnv(t *testing.T, src domain.Source) env {
	t.Helper()
	return newEnvWithStore(t, src, docstore.NewMemoryStore())
}

func newEnvWithStore(t *testing.T, src domain.Source, store *docstore.MemoryStore) env {
	t.Helper()
	ctrl := gomock.NewController(t)
	zoner := mock.NewMockClient(ctrl)
	zoner.EXPECT().
		Zone(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.ZoneMap{"introduction": "..."}, nil).
		AnyTimes()
	zoner.EXPECT().
		Citations(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]zoning.Citation(nil), nil).
		AnyTimes()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stateStore, err := runstate.NewStore(t.TempDir())
	require.NoError(t, err)

	reader := source.NewMemoryReader(src)
	review := &fakeReview{}

	svc := New(Params{
		Reader: reader,
		Mirror: mirror.New(store.Collection(docstore.ColMirror), logger),
		Duplicates: duplicate.NewResolver(
			store.Collection(docstore.ColMirror), logger),
		Clusterer: affaire.NewClusterer(
			affaire.NewStore(store.Collection(docstore.ColAffaires)),
			store.Collection(docstore.ColMirror),
			zoner,
			affaire.NewMemoryCaseRegistry(),
			logger,
		),
		Normalizer: normalize.New(
			store.Collection(docstore.ColDecisions),
			store.Collection(docstore.ColZoningErrors),
			zoner,
			logger,
		),
		Taxonomy: publicity.StaticTables{
			T: publicity.NewTables([]string{"22A"}, []string{"33B"}, []string{"44C"}),
		},
		Lifecycle: lifecycle.New(store.Collection(docstore.ColLifecycle), logger),
		Review:    review,
		State:     stateStore,
		Metrics:   metrics.NewWith(prometheus.NewRegistry()),
		Logger:    logger,

		BatchSize:           100,
		EmptyRoundThreshold: 3,
		OffsetCeiling:       1_000_000,
	})
	return env{svc: svc, reader: reader, store: store, review: review, state: stateStore}
}

func juricaRecord(id int64) domain.SourceRecord {
	return domain.SourceRecord{
		ID:             id,
		Source:         domain.SourceJurica,
		Text:           "<p>DEBUT DE LA DECISION</p> La cour statue. FIN DE LA DECISION",
		NACCode:        "55X",
		RegisterNumber: "21/04567",
		Jurisdiction:   "Cour d'appel de Lyon",
		DecisionDate:   domain.DateParts{Year: "2024", Month: "3", Day: "14"},
	}
}

// First sight of a valid appellate record: one mirror copy, one canonical
// decision at revision zero, one lifecycle entry, and a cluster with no
// resolvable citation.
func TestRunBatchFirstSighting(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	e.reader.Add(juricaRecord(7))

	summary, err := e.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 1, summary.Normalized)
	assert.Zero(t, summary.Skipped)

	assert.Equal(t, 1, e.store.Count(docstore.ColMirror))
	assert.Equal(t, 1, e.store.Count(docstore.ColDecisions))
	assert.Equal(t, 1, e.store.Count(docstore.ColLifecycle))
	assert.Equal(t, 1, e.store.Count(docstore.ColAffaires))

	raw, err := e.store.Collection(docstore.ColDecisions).FindOne(context.Background(), docstore.Filter{"_id": "jurica:7"})
	require.NoError(t, err)
	var decision domain.NormalizedDecision
	require.NoError(t, json.Unmarshal(raw, &decision))
	assert.Equal(t, 0, decision.Rev)
	assert.Equal(t, domain.SchemaVersion, decision.Version)
	assert.Equal(t, domain.VerdictPublic, decision.Publicity)
}

func TestRunBatchIsIdempotent(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	e.reader.Add(juricaRecord(7))
	ctx := context.Background()

	_, err := e.svc.RunBatch(ctx)
	require.NoError(t, err)

	// Rewind the cursor so the same row is replayed; hashes are kept.
	state, err := e.state.Load(domain.SourceJurica)
	require.NoError(t, err)
	state.Offset = 0
	require.NoError(t, e.state.Store(domain.SourceJurica, state))

	second, err := e.svc.RunBatch(ctx)
	require.NoError(t, err)

	assert.Zero(t, second.New)
	assert.Zero(t, second.Updated)
	assert.Equal(t, 1, second.Unchanged)

	raw, err := e.store.Collection(docstore.ColDecisions).FindOne(ctx, docstore.Filter{"_id": "jurica:7"})
	require.NoError(t, err)
	var decision domain.NormalizedDecision
	require.NoError(t, json.Unmarshal(raw, &decision))
	assert.Equal(t, 0, decision.Rev)
}

func TestRunBatchAdvancesOffsetAndEmptyRounds(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	e.reader.Add(juricaRecord(7))
	e.reader.Add(juricaRecord(9))
	ctx := context.Background()

	_, err := e.svc.RunBatch(ctx)
	require.NoError(t, err)
	state, err := e.state.Load(domain.SourceJurica)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.Offset)
	assert.Equal(t, 0, state.EmptyRounds)

	// An exhausted cursor yields an empty round.
	_, err = e.svc.RunBatch(ctx)
	require.NoError(t, err)
	state, err = e.state.Load(domain.SourceJurica)
	require.NoError(t, err)
	assert.Equal(t, 1, state.EmptyRounds)
}

func TestRunBatchResetsExhaustedCursor(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	e.reader.Add(juricaRecord(7))
	ctx := context.Background()

	// Threshold is 3: productive round, then four empty rounds.
	for i := 0; i < 5; i++ {
		_, err := e.svc.RunBatch(ctx)
		require.NoError(t, err)
	}

	state, err := e.state.Load(domain.SourceJurica)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.Offset)
	assert.Equal(t, 0, state.EmptyRounds)
}

func TestRunBatchEmptyTextSkipsDocument(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	record := juricaRecord(7)
	record.Text = "<p>  </p>"
	e.reader.Add(record)

	summary, err := e.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Normalized)
	assert.Equal(t, 0, e.store.Count(docstore.ColDecisions))
	// The mirror keeps the copy and upstream bookkeeping is flagged.
	assert.Equal(t, 1, e.store.Count(docstore.ColMirror))
	assert.True(t, e.reader.Erroneous(7))
}

func TestRunBatchContradictionGoesToReview(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	record := juricaRecord(7)
	record.NACCode = "22A"
	record.PublicityFlag = domain.FlagOf(1)
	e.reader.Add(record)

	summary, err := e.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Contradictions)
	assert.Equal(t, 1, summary.Reviewed)
	require.Len(t, e.review.submitted, 1)
	assert.Equal(t, "22A", e.review.submitted[0].FieldCode)
	assert.Equal(t, "public", e.review.submitted[0].PublicityClerkRequest)

	raw, err := e.store.Collection(docstore.ColDecisions).FindOne(context.Background(), docstore.Filter{"_id": "jurica:7"})
	require.NoError(t, err)
	var decision domain.NormalizedDecision
	require.NoError(t, json.Unmarshal(raw, &decision))
	assert.Equal(t, domain.VerdictReview, decision.Publicity)
}

func TestRunBatchDuplicateLinkRecorded(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	ctx := context.Background()

	// Counterpart supreme-court record mirrored beforehand.
	counterpart := domain.SourceRecord{
		ID:             3,
		Source:         domain.SourceJurinet,
		Text:           "texte cassation",
		RegisterNumber: "C1800001",
		PortalisID:     "IJ00-W-B7D-ABCDE",
		DecisionDate:   domain.DateParts{Year: "2024", Month: "3", Day: "14"},
	}
	require.NoError(t, e.store.Collection(docstore.ColMirror).InsertOne(ctx, domain.MirroredDocument{
		Key:      counterpart.Key(),
		Source:   counterpart.Source,
		SourceID: counterpart.ID,
		Record:   counterpart,
	}))

	record := juricaRecord(7)
	record.PortalisID = "IJ00-W-B7D-ABCDE"
	e.reader.Add(record)

	_, err := e.svc.RunBatch(ctx)
	require.NoError(t, err)

	raw, err := e.store.Collection(docstore.ColLifecycle).FindOne(ctx, docstore.Filter{"_id": "jurica:7"})
	require.NoError(t, err)
	var entry domain.LifecycleEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, []string{"jurinet:3"}, entry.DuplicateKeys)
}

func TestRunBatchRemovesPublicProjectionOnRejection(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	e.reader.Add(juricaRecord(7))
	ctx := context.Background()

	_, err := e.svc.RunBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, e.store.Count(docstore.ColDecisions))

	// The record comes back reclassified under an unconditionally
	// non-public code after having been published.
	record := juricaRecord(7)
	record.NACCode = "22A"
	record.Text += " Rectificatif."
	e.reader.Add(record)

	state, err := e.state.Load(domain.SourceJurica)
	require.NoError(t, err)
	state.Offset = 0
	require.NoError(t, e.state.Store(domain.SourceJurica, state))

	summary, err := e.svc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Removed)
	assert.Zero(t, summary.Normalized)

	// The canonical record is gone; the mirror copy stays.
	assert.Equal(t, 0, e.store.Count(docstore.ColDecisions))
	assert.Equal(t, 1, e.store.Count(docstore.ColMirror))

	raw, err := e.store.Collection(docstore.ColLifecycle).FindOne(ctx, docstore.Filter{"_id": "jurica:7"})
	require.NoError(t, err)
	var entry domain.LifecycleEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	require.NotNil(t, entry.Public)
	assert.False(t, *entry.Public)
}

// A decision stored under an older schema stamp is rebuilt exactly once:
// the repair re-stamps the version, and the next run sees it as current
// instead of replacing it again on every batch.
func TestRunBatchRepairsStaleSchemaOnce(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	e.reader.Add(juricaRecord(7))
	ctx := context.Background()

	_, err := e.svc.RunBatch(ctx)
	require.NoError(t, err)

	col := e.store.Collection(docstore.ColDecisions)
	raw, err := col.FindOne(ctx, docstore.Filter{"_id": "jurica:7"})
	require.NoError(t, err)
	var decision domain.NormalizedDecision
	require.NoError(t, json.Unmarshal(raw, &decision))
	decision.Version = "0.9"
	require.NoError(t, col.ReplaceOne(ctx, docstore.Filter{"_id": "jurica:7"}, decision))

	rewindOffset(t, e)
	second, err := e.svc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Normalized)

	raw, err = col.FindOne(ctx, docstore.Filter{"_id": "jurica:7"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decision))
	assert.Equal(t, domain.SchemaVersion, decision.Version)
	assert.Equal(t, 1, decision.Rev)

	rewindOffset(t, e)
	third, err := e.svc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, third.Normalized)
	assert.Equal(t, 1, third.Unchanged)

	raw, err = col.FindOne(ctx, docstore.Filter{"_id": "jurica:7"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decision))
	assert.Equal(t, 1, decision.Rev)
}

// With a read-only store the mirror write is dropped, so the content hash
// must not be remembered either: a later writable run has to process the
// record as unseen.
func TestRunBatchReadOnlyRecordsNoHashes(t *testing.T) {
	e := newEnvWithStore(t, domain.SourceJurica, docstore.NewReadOnlyMemoryStore())
	e.reader.Add(juricaRecord(7))

	summary, err := e.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 0, e.store.Count(docstore.ColMirror))
	assert.Equal(t, 0, e.store.Count(docstore.ColDecisions))

	state, err := e.state.Load(domain.SourceJurica)
	require.NoError(t, err)
	_, known := state.Hashes["jurica:7"]
	assert.False(t, known)
}

func rewindOffset(t *testing.T, e env) {
	t.Helper()
	state, err := e.state.Load(domain.SourceJurica)
	require.NoError(t, err)
	state.Offset = 0
	require.NoError(t, e.state.Store(domain.SourceJurica, state))
}

func TestSyncNewAcknowledgesUpstream(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	e.reader.Add(juricaRecord(7))

	summary, err := e.svc.SyncNew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)

	// Acknowledged rows are no longer new.
	again, err := e.svc.SyncNew(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Fetched)
}

// An integrity-skipped row must stay flagged erroneous and unacknowledged;
// marking it processed would reset the flag upstream in the same pass.
func TestSyncNewKeepsErroneousFlag(t *testing.T) {
	e := newEnv(t, domain.SourceJurica)
	record := juricaRecord(7)
	record.Text = "<p>  </p>"
	e.reader.Add(record)
	ctx := context.Background()

	summary, err := e.svc.SyncNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, e.reader.Erroneous(7))

	// The row is retried, not consumed.
	again, err := e.svc.SyncNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Fetched)
	assert.Equal(t, 1, again.Skipped)
	assert.True(t, e.reader.Erroneous(7))
}
