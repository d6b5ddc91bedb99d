package affaire

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"jurisync/internal/domain"
)

// CaseRegistry resolves a legal-matter id from a pourvoi number and the
// cited decision date. An unresolvable pair is not an error; the lookup
// returns an empty id.
type CaseRegistry interface {
	DecattID(ctx context.Context, pourvoi, date string) (string, error)
}

// SQLCaseRegistry queries the supreme-court case registry.
type SQLCaseRegistry struct {
	db *sql.DB
}

func NewSQLCaseRegistry(db *sql.DB) *SQLCaseRegistry {
	return &SQLCaseRegistry{db: db}
}

func (r *SQLCaseRegistry) DecattID(ctx context.Context, pourvoi, date string) (string, error) {
	const query = `SELECT decision_id FROM case_registry
		WHERE pourvoi_number = $1 AND decision_date = $2`

	var id string
	err := r.db.QueryRowContext(ctx, query, pourvoi, date).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", domain.Transient("case registry lookup", err)
	}
	return id, nil
}

// MemoryCaseRegistry is the in-memory twin used by tests.
type MemoryCaseRegistry struct {
	mu      sync.RWMutex
	entries map[[2]string]string
}

func NewMemoryCaseRegistry() *MemoryCaseRegistry {
	return &MemoryCaseRegistry{entries: make(map[[2]string]string)}
}

func (r *MemoryCaseRegistry) Add(pourvoi, date, decisionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[[2]string{pourvoi, date}] = decisionID
}

func (r *MemoryCaseRegistry) DecattID(_ context.Context, pourvoi, date string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[[2]string{pourvoi, date}], nil
}
