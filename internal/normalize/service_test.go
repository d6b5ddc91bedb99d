package normalize

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"jurisync/internal/docstore"
	"jurisync/internal/domain"
	"jurisync/internal/zoning/mock"
)

type fixture struct {
	svc   *Service
	store *docstore.MemoryStore
	zoner *mock.MockClient
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	zoner := mock.NewMockClient(ctrl)
	store := docstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(
		store.Collection(docstore.ColDecisions),
		store.Collection(docstore.ColZoningErrors),
		zoner,
		logger,
	)
	return fixture{svc: svc, store: store, zoner: zoner}
}

func pseudoMirrored(id int64) *domain.MirroredDocument {
	doc := mirrored(id, "corps de la décision")
	doc.Record.PseudoText = "corps pseudonymisé"
	return doc
}

func TestNormalizePersistsFirstVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.zoner.EXPECT().
		Zone(gomock.Any(), int64(1), domain.SourceJurica, gomock.Any()).
		Return(domain.ZoneMap{"introduction": "..."}, nil)

	decision, err := f.svc.Normalize(ctx, pseudoMirrored(1), nil, domain.VerdictPublic, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, decision.Rev)
	assert.Equal(t, domain.VerdictPublic, decision.Publicity)
	assert.NotNil(t, decision.Zoning)
	assert.Equal(t, 1, f.store.Count(docstore.ColDecisions))
	assert.Equal(t, 0, f.store.Count(docstore.ColZoningErrors))

	stored, err := f.svc.Previous(ctx, domain.SourceJurica, 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, decision.ID, stored.ID)
}

func TestNormalizeZoningFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.zoner.EXPECT().
		Zone(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &domain.ServiceError{Service: "zoning", Err: assert.AnError})

	decision, err := f.svc.Normalize(ctx, pseudoMirrored(1), nil, domain.VerdictPublic, Options{})
	require.NoError(t, err)
	assert.Nil(t, decision.Zoning)
	// Decision is persisted, failure is recorded for the sweep.
	assert.Equal(t, 1, f.store.Count(docstore.ColDecisions))
	assert.Equal(t, 1, f.store.Count(docstore.ColZoningErrors))
}

func TestNormalizeLockedDecisionIsUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	locked := &domain.NormalizedDecision{
		ID:           "jurica:1",
		Rev:          5,
		Source:       domain.SourceJurica,
		SourceID:     1,
		OriginalText: "version verrouillée",
		Locked:       true,
	}

	decision, err := f.svc.Normalize(ctx, pseudoMirrored(1), locked, domain.VerdictPublic, Options{})
	require.NoError(t, err)
	assert.Equal(t, locked, decision)
	assert.Equal(t, 5, decision.Rev)
	// No write happened.
	assert.Equal(t, 0, f.store.Count(docstore.ColDecisions))
}

func TestNormalizeRevisionAdvancesOnReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Normalize(ctx, mirrored(1, "version une"), nil, domain.VerdictPublic, Options{})
	require.NoError(t, err)

	second, err := f.svc.Normalize(ctx, mirrored(1, "version deux"), first, domain.VerdictPublic, Options{})
	require.NoError(t, err)
	assert.Equal(t, first.Rev+1, second.Rev)
}

func TestRemovePublic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Normalize(ctx, mirrored(1, "corps"), nil, domain.VerdictPublic, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Count(docstore.ColDecisions))

	require.NoError(t, f.svc.RemovePublic(ctx, domain.SourceJurica, 1))
	assert.Equal(t, 0, f.store.Count(docstore.ColDecisions))

	// Deleting an absent projection is not an error.
	assert.NoError(t, f.svc.RemovePublic(ctx, domain.SourceJurica, 1))
}

func TestSweepZoningRepairsWithoutBumpingRev(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// First pass fails zoning.
	f.zoner.EXPECT().
		Zone(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &domain.ServiceError{Service: "zoning", Err: assert.AnError})
	decision, err := f.svc.Normalize(ctx, pseudoMirrored(1), nil, domain.VerdictPublic, Options{})
	require.NoError(t, err)
	require.Nil(t, decision.Zoning)

	// The sweep succeeds.
	f.zoner.EXPECT().
		Zone(gomock.Any(), int64(1), domain.SourceJurica, gomock.Any()).
		Return(domain.ZoneMap{"dispositif": "..."}, nil)

	repaired, attempted, err := f.svc.SweepZoning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Equal(t, 1, repaired)

	stored, err := f.svc.Previous(ctx, domain.SourceJurica, 1)
	require.NoError(t, err)
	assert.NotNil(t, stored.Zoning)
	assert.Equal(t, decision.Rev, stored.Rev)
	assert.Equal(t, 0, f.store.Count(docstore.ColZoningErrors))
}

func TestSweepZoningSkipsHealthyDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.zoner.EXPECT().
		Zone(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.ZoneMap{"introduction": "..."}, nil)
	_, err := f.svc.Normalize(ctx, pseudoMirrored(1), nil, domain.VerdictPublic, Options{})
	require.NoError(t, err)

	repaired, attempted, err := f.svc.SweepZoning(ctx)
	require.NoError(t, err)
	assert.Zero(t, attempted)
	assert.Zero(t, repaired)
}
