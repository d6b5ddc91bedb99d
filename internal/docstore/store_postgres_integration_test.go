//go:build integration

package docstore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jurisync/pkg/platform/sentinel"
	"jurisync/pkg/testutil/containers"
)

type probe struct {
	ID    string `json:"_id"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

func openStore(t *testing.T, readOnly bool) *PostgresStore {
	t.Helper()
	pg := containers.NewPostgresContainer(t)
	return openStoreAt(t, pg.DSN, readOnly)
}

func openStoreAt(t *testing.T, dsn string, readOnly bool) *PostgresStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := OpenPostgres(context.Background(), dsn, readOnly, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresCollectionRoundtrip(t *testing.T) {
	store := openStore(t, false)
	ctx := context.Background()
	col := store.Collection(ColMirror)

	require.NoError(t, col.InsertOne(ctx, probe{ID: "jurica:1", Label: "a", Count: 1}))

	// Duplicate insert conflicts.
	err := col.InsertOne(ctx, probe{ID: "jurica:1", Label: "b"})
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	raw, err := col.FindOne(ctx, Filter{"_id": "jurica:1"})
	require.NoError(t, err)
	var got probe
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "a", got.Label)

	require.NoError(t, col.ReplaceOne(ctx, Filter{"_id": "jurica:1"}, probe{ID: "jurica:1", Label: "c", Count: 2}))
	raw, err = col.FindOne(ctx, Filter{"_id": "jurica:1"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "c", got.Label)

	// Upsert path for a key never inserted.
	require.NoError(t, col.ReplaceOne(ctx, Filter{"_id": "jurica:2"}, probe{ID: "jurica:2", Label: "d"}))

	require.NoError(t, col.DeleteOne(ctx, Filter{"_id": "jurica:1"}))
	_, err = col.FindOne(ctx, Filter{"_id": "jurica:1"})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresFindByContainment(t *testing.T) {
	store := openStore(t, false)
	ctx := context.Background()
	col := store.Collection(ColDecisions)

	require.NoError(t, col.InsertOne(ctx, probe{ID: "jurica:1", Label: "keep", Count: 1}))
	require.NoError(t, col.InsertOne(ctx, probe{ID: "jurica:2", Label: "keep", Count: 2}))
	require.NoError(t, col.InsertOne(ctx, probe{ID: "jurinet:1", Label: "drop", Count: 3}))

	cursor, err := col.Find(ctx, Filter{"label": "keep"})
	require.NoError(t, err)
	defer cursor.Close()

	var ids []string
	for cursor.Next(ctx) {
		var got probe
		require.NoError(t, cursor.Decode(&got))
		ids = append(ids, got.ID)
	}
	require.NoError(t, cursor.Err())
	assert.Equal(t, []string{"jurica:1", "jurica:2"}, ids)
}

func TestPostgresReadOnlyDropsWrites(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	// A writable open creates the schema the read-only store reads from.
	openStoreAt(t, pg.DSN, false)
	store := openStoreAt(t, pg.DSN, true)
	ctx := context.Background()
	col := store.Collection(ColMirror)

	assert.ErrorIs(t, col.InsertOne(ctx, probe{ID: "jurica:1"}), sentinel.ErrReadOnly)
	assert.ErrorIs(t, col.ReplaceOne(ctx, Filter{"_id": "jurica:1"}, probe{ID: "jurica:1"}), sentinel.ErrReadOnly)
	assert.ErrorIs(t, col.DeleteOne(ctx, Filter{"_id": "jurica:1"}), sentinel.ErrReadOnly)

	_, err := col.FindOne(ctx, Filter{"_id": "jurica:1"})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresHealth(t *testing.T) {
	store := openStore(t, false)
	assert.NoError(t, store.Health(context.Background()))
}
