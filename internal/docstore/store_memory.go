package docstore

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"jurisync/pkg/platform/sentinel"
)

// MemoryStore is the in-memory twin of the Postgres store, used by unit
// tests and the end-to-end pipeline test. Same contract, same read-only
// gating.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
	readOnly    bool
}

// NewMemoryStore returns an empty writable store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]json.RawMessage)}
}

// NewReadOnlyMemoryStore returns a store whose writes are dropped.
func NewReadOnlyMemoryStore() *MemoryStore {
	s := NewMemoryStore()
	s.readOnly = true
	return s
}

func (s *MemoryStore) Collection(name string) Collection {
	return &memCollection{store: s, name: name}
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Count reports the number of documents in a collection. Test helper.
func (s *MemoryStore) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[name])
}

type memCollection struct {
	store *MemoryStore
	name  string
}

// docs returns the backing map, which may be nil before the first write.
// Callers must hold the store lock.
func (c *memCollection) docs() map[string]json.RawMessage {
	return c.store.collections[c.name]
}

// ensure creates the backing map. Callers must hold the write lock.
func (c *memCollection) ensure() map[string]json.RawMessage {
	docs, ok := c.store.collections[c.name]
	if !ok {
		docs = make(map[string]json.RawMessage)
		c.store.collections[c.name] = docs
	}
	return docs
}

func matches(doc json.RawMessage, filter Filter) bool {
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false
	}
	for key, want := range filter {
		// Normalize through JSON so int/float64 and typed strings compare.
		wantNorm, err := normalize(want)
		if err != nil {
			return false
		}
		haveNorm, err := normalize(fields[key])
		if err != nil || !reflect.DeepEqual(wantNorm, haveNorm) {
			return false
		}
	}
	return true
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}

func (c *memCollection) FindOne(_ context.Context, filter Filter) (json.RawMessage, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	if id, ok := filter["_id"].(string); ok && len(filter) == 1 {
		if doc, ok := c.docs()[id]; ok {
			return append(json.RawMessage(nil), doc...), nil
		}
		return nil, sentinel.ErrNotFound
	}
	for _, id := range c.sortedIDs() {
		doc := c.docs()[id]
		if matches(doc, filter) {
			return append(json.RawMessage(nil), doc...), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (c *memCollection) InsertOne(_ context.Context, doc any) error {
	if c.store.readOnly {
		return sentinel.ErrReadOnly
	}
	id, raw, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs := c.ensure()
	if _, exists := docs[id]; exists {
		return sentinel.ErrConflict
	}
	docs[id] = raw
	return nil
}

func (c *memCollection) ReplaceOne(_ context.Context, filter Filter, doc any) error {
	if c.store.readOnly {
		return sentinel.ErrReadOnly
	}
	id, ok := filter["_id"].(string)
	if !ok {
		return sentinel.ErrInvalidState
	}
	_, raw, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.ensure()[id] = raw
	return nil
}

func (c *memCollection) DeleteOne(_ context.Context, filter Filter) error {
	if c.store.readOnly {
		return sentinel.ErrReadOnly
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	for _, id := range c.sortedIDs() {
		if matches(c.docs()[id], filter) {
			delete(c.docs(), id)
			return nil
		}
	}
	return nil
}

func (c *memCollection) Find(_ context.Context, filter Filter) (Cursor, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var snapshot []json.RawMessage
	for _, id := range c.sortedIDs() {
		doc := c.docs()[id]
		if len(filter) == 0 || matches(doc, filter) {
			snapshot = append(snapshot, append(json.RawMessage(nil), doc...))
		}
	}
	return &memCursor{docs: snapshot, pos: -1}, nil
}

// sortedIDs keeps iteration order deterministic; callers must hold the lock.
func (c *memCollection) sortedIDs() []string {
	ids := make([]string, 0, len(c.docs()))
	for id := range c.docs() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type memCursor struct {
	docs   []json.RawMessage
	pos    int
	closed bool
}

func (c *memCursor) Next(ctx context.Context) bool {
	if c.closed || ctx.Err() != nil {
		return false
	}
	c.pos++
	return c.pos < len(c.docs)
}

func (c *memCursor) Decode(v any) error {
	return json.Unmarshal(c.docs[c.pos], v)
}

func (c *memCursor) Err() error { return nil }

func (c *memCursor) Close() error {
	c.closed = true
	return nil
}
