package docstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jurisync/pkg/platform/sentinel"
)

type memProbe struct {
	ID    string `json:"_id"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

func TestMemoryStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	col := NewMemoryStore().Collection(ColMirror)

	require.NoError(t, col.InsertOne(ctx, memProbe{ID: "jurinet:1", Label: "keep", Count: 1}))
	assert.ErrorIs(t, col.InsertOne(ctx, memProbe{ID: "jurinet:1", Label: "dup"}), sentinel.ErrConflict)

	raw, err := col.FindOne(ctx, Filter{"_id": "jurinet:1"})
	require.NoError(t, err)
	var got memProbe
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "keep", got.Label)

	require.NoError(t, col.ReplaceOne(ctx, Filter{"_id": "jurinet:1"}, memProbe{ID: "jurinet:1", Label: "kept", Count: 2}))
	raw, err = col.FindOne(ctx, Filter{"_id": "jurinet:1"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 2, got.Count)

	// ReplaceOne upserts when the key is absent.
	require.NoError(t, col.ReplaceOne(ctx, Filter{"_id": "jurica:7"}, memProbe{ID: "jurica:7", Label: "new"}))
	_, err = col.FindOne(ctx, Filter{"_id": "jurica:7"})
	assert.NoError(t, err)

	require.NoError(t, col.DeleteOne(ctx, Filter{"_id": "jurica:7"}))
	_, err = col.FindOne(ctx, Filter{"_id": "jurica:7"})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// Deleting an absent document is not an error.
	assert.NoError(t, col.DeleteOne(ctx, Filter{"_id": "jurica:7"}))
}

func TestMemoryStoreFindFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	col := NewMemoryStore().Collection(ColMirror)

	for _, p := range []memProbe{
		{ID: "jurinet:9", Label: "keep"},
		{ID: "jurinet:12", Label: "keep"},
		{ID: "jurica:3", Label: "drop"},
	} {
		require.NoError(t, col.InsertOne(ctx, p))
	}

	cur, err := col.Find(ctx, Filter{"label": "keep"})
	require.NoError(t, err)
	defer cur.Close()

	var ids []string
	for cur.Next(ctx) {
		var p memProbe
		require.NoError(t, cur.Decode(&p))
		ids = append(ids, p.ID)
	}
	require.NoError(t, cur.Err())

	// Iteration order is lexicographic on the key, not numeric.
	assert.Equal(t, []string{"jurinet:12", "jurinet:9"}, ids)
}

func TestMemoryStoreFilterNormalizesNumbers(t *testing.T) {
	ctx := context.Background()
	col := NewMemoryStore().Collection(ColMirror)
	require.NoError(t, col.InsertOne(ctx, memProbe{ID: "jurinet:1", Label: "keep", Count: 5}))

	// An int filter value must match the float64 JSON decodes numbers to.
	_, err := col.FindOne(ctx, Filter{"count": 5})
	assert.NoError(t, err)
	_, err = col.FindOne(ctx, Filter{"count": 6})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestReadOnlyMemoryStoreDropsWrites(t *testing.T) {
	ctx := context.Background()
	col := NewReadOnlyMemoryStore().Collection(ColMirror)

	assert.ErrorIs(t, col.InsertOne(ctx, memProbe{ID: "jurinet:1"}), sentinel.ErrReadOnly)
	assert.ErrorIs(t, col.ReplaceOne(ctx, Filter{"_id": "jurinet:1"}, memProbe{ID: "jurinet:1"}), sentinel.ErrReadOnly)
	assert.ErrorIs(t, col.DeleteOne(ctx, Filter{"_id": "jurinet:1"}), sentinel.ErrReadOnly)

	_, err := col.FindOne(ctx, Filter{"_id": "jurinet:1"})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDocumentID(t *testing.T) {
	id, err := DocumentID(memProbe{ID: "jurinet:4", Label: "x"})
	require.NoError(t, err)
	assert.Equal(t, "jurinet:4", id)
}
