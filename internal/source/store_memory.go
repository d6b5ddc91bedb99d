package source

import (
	"context"
	"sort"
	"sync"

	"jurisync/internal/domain"
)

// MemoryReader is an in-memory Reader used by unit tests and the end-to-end
// pipeline test.
type MemoryReader struct {
	mu        sync.RWMutex
	source    domain.Source
	records   map[int64]domain.SourceRecord
	processed map[int64]bool
	erroneous map[int64]bool
}

// NewMemoryReader returns an empty reader for the given source.
func NewMemoryReader(src domain.Source) *MemoryReader {
	return &MemoryReader{
		source:    src,
		records:   make(map[int64]domain.SourceRecord),
		processed: make(map[int64]bool),
		erroneous: make(map[int64]bool),
	}
}

// Add seeds a record.
func (r *MemoryReader) Add(record domain.SourceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.Source = r.source
	r.records[record.ID] = record
}

func (r *MemoryReader) Source() domain.Source { return r.source }

func (r *MemoryReader) sortedIDs(order Order) []int64 {
	ids := make([]int64, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if order == OrderDesc {
			return ids[i] > ids[j]
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (r *MemoryReader) FetchBatch(_ context.Context, offset, limit int64, order Order) ([]domain.SourceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.sortedIDs(order)
	if offset >= int64(len(ids)) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit < int64(len(ids)) {
		ids = ids[:limit]
	}

	records := make([]domain.SourceRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, r.records[id])
	}
	return records, nil
}

func (r *MemoryReader) FetchNew(_ context.Context) ([]domain.SourceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []domain.SourceRecord
	for _, id := range r.sortedIDs(OrderAsc) {
		if !r.processed[id] {
			records = append(records, r.records[id])
		}
	}
	return records, nil
}

func (r *MemoryReader) MarkProcessed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[id] = true
	delete(r.erroneous, id)
	return nil
}

func (r *MemoryReader) MarkErroneous(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.erroneous[id] = true
	return nil
}

// Erroneous reports whether id was flagged. Test helper.
func (r *MemoryReader) Erroneous(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.erroneous[id]
}
