package publicity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"jurisync/internal/docstore"
	"jurisync/internal/platform/redis"
	"jurisync/pkg/platform/sentinel"
)

// TaxonomySource loads the rule tables. Implementations must return fresh
// tables (or a bounded-staleness cached copy); the classifier never caches.
type TaxonomySource interface {
	Tables(ctx context.Context) (Tables, error)
}

const cacheKey = "jurisync:taxonomy"

// TaxonomyStore reads the three rule tables from the taxonomy collection,
// with an optional Redis cache in front. The cache TTL bounds how stale a
// refreshed table can look to a running batch.
type TaxonomyStore struct {
	col    docstore.Collection
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewTaxonomyStore builds the store. cache may be nil (cache disabled).
func NewTaxonomyStore(col docstore.Collection, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *TaxonomyStore {
	return &TaxonomyStore{col: col, cache: cache, ttl: ttl, logger: logger}
}

// taxonomyDoc is the persisted shape of one table.
type taxonomyDoc struct {
	ID    string   `json:"_id"`
	Codes []string `json:"codes"`
}

// Document ids of the three tables in the taxonomy collection.
const (
	tableNonPublic            = "nonPublic"
	tableConditionalNonPublic = "conditionallyNonPublic"
	tablePartiallyPublic      = "partiallyPublic"
)

type cachedTables struct {
	NonPublic              []string `json:"nonPublic"`
	ConditionallyNonPublic []string `json:"conditionallyNonPublic"`
	PartiallyPublic        []string `json:"partiallyPublic"`
}

// Tables loads the rule tables, preferring the cache.
func (s *TaxonomyStore) Tables(ctx context.Context) (Tables, error) {
	if tables, ok := s.fromCache(ctx); ok {
		return tables, nil
	}

	nonPublic, err := s.loadTable(ctx, tableNonPublic)
	if err != nil {
		return Tables{}, err
	}
	conditional, err := s.loadTable(ctx, tableConditionalNonPublic)
	if err != nil {
		return Tables{}, err
	}
	partial, err := s.loadTable(ctx, tablePartiallyPublic)
	if err != nil {
		return Tables{}, err
	}

	s.toCache(ctx, cachedTables{
		NonPublic:              nonPublic,
		ConditionallyNonPublic: conditional,
		PartiallyPublic:        partial,
	})

	return Tables{
		NonPublic:              toSet(nonPublic),
		ConditionallyNonPublic: toSet(conditional),
		PartiallyPublic:        toSet(partial),
	}, nil
}

func (s *TaxonomyStore) loadTable(ctx context.Context, id string) ([]string, error) {
	raw, err := s.col.FindOne(ctx, docstore.Filter{"_id": id})
	if errors.Is(err, sentinel.ErrNotFound) {
		// A missing table means "no codes", not a failure; deployments
		// seed only the tables their jurisdiction uses.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load taxonomy table %s: %w", id, err)
	}
	var doc taxonomyDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode taxonomy table %s: %w", id, err)
	}
	return doc.Codes, nil
}

func (s *TaxonomyStore) fromCache(ctx context.Context) (Tables, bool) {
	if s.cache == nil {
		return Tables{}, false
	}
	raw, err := s.cache.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Tables{}, false
	}
	if err != nil {
		s.logger.Warn("taxonomy cache read failed", "err", err)
		return Tables{}, false
	}
	var cached cachedTables
	if err := json.Unmarshal(raw, &cached); err != nil {
		return Tables{}, false
	}
	return Tables{
		NonPublic:              toSet(cached.NonPublic),
		ConditionallyNonPublic: toSet(cached.ConditionallyNonPublic),
		PartiallyPublic:        toSet(cached.PartiallyPublic),
	}, true
}

func (s *TaxonomyStore) toCache(ctx context.Context, cached cachedTables) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("taxonomy cache write failed", "err", err)
	}
}

func toSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c != "" {
			set[c] = true
		}
	}
	return set
}

// StaticTables is a fixed TaxonomySource for tests and one-off tooling.
type StaticTables struct {
	T Tables
}

func (s StaticTables) Tables(context.Context) (Tables, error) {
	return s.T, nil
}

// NewTables builds Tables from plain code lists.
func NewTables(nonPublic, conditional, partial []string) Tables {
	return Tables{
		NonPublic:              toSet(nonPublic),
		ConditionallyNonPublic: toSet(conditional),
		PartiallyPublic:        toSet(partial),
	}
}
