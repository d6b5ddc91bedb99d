// Package affaire clusters decisions belonging to the same legal matter
// across instances, merging partial knowledge over repeated runs.
package affaire

import (
	"context"
	"errors"

	"jurisync/internal/docstore"
	"jurisync/internal/domain"
	"jurisync/pkg/platform/sentinel"
)

// Store persists clusters in the affaires collection. Lookup is by
// membership, not by cluster id: a decision belongs to at most one cluster
// at any time.
type Store struct {
	col docstore.Collection
}

func NewStore(col docstore.Collection) *Store {
	return &Store{col: col}
}

// ByMember returns the cluster containing the given decision key, or nil
// when the decision is not clustered yet.
func (s *Store) ByMember(ctx context.Context, key string) (*domain.AffaireCluster, error) {
	cursor, err := s.col.Find(ctx, nil)
	if err != nil {
		return nil, domain.Transient("affaire scan", err)
	}
	defer cursor.Close()

	for cursor.Next(ctx) {
		var cluster domain.AffaireCluster
		if err := cursor.Decode(&cluster); err != nil {
			return nil, domain.Transient("affaire decode", err)
		}
		if cluster.HasMember(key) {
			return &cluster, nil
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, domain.Transient("affaire scan", err)
	}
	return nil, nil
}

// Save upserts the cluster under its id.
func (s *Store) Save(ctx context.Context, cluster *domain.AffaireCluster) error {
	err := s.col.ReplaceOne(ctx, docstore.Filter{"_id": cluster.ID}, cluster)
	if err != nil {
		if errors.Is(err, sentinel.ErrReadOnly) {
			return err
		}
		return domain.Transient("affaire write", err)
	}
	return nil
}

// Delete removes an absorbed cluster after a merge.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.col.DeleteOne(ctx, docstore.Filter{"_id": id})
	if err != nil {
		if errors.Is(err, sentinel.ErrReadOnly) {
			return err
		}
		return domain.Transient("affaire delete", err)
	}
	return nil
}
