package affaire

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"jurisync/internal/docstore"
	"jurisync/internal/domain"
	"jurisync/internal/normalize"
	"jurisync/internal/zoning"
)

// Outcome summarizes one clustering pass over a single record.
type Outcome string

const (
	// OutcomeNoData means the record lacks text, a legal number, or a
	// parseable date and cannot be clustered.
	OutcomeNoData Outcome = "no-data"
	// OutcomeDecattFound means at least one citation resolved to a
	// counterpart decision.
	OutcomeDecattFound Outcome = "decatt-found"
	// OutcomeNoDecatt means the record is clustered but no citation
	// resolved.
	OutcomeNoDecatt Outcome = "no-decatt"
	// OutcomeDecattNotFound means the record names counterpart decisions
	// explicitly but none of them could be resolved.
	OutcomeDecattNotFound Outcome = "decatt-not-found"
)

// Clusterer builds and merges affaire clusters from record identifiers,
// citation data extracted by the zoning service, and directly-known appeal
// links. Merging is set union throughout, so re-running the clusterer over
// the same records, in any order, converges to the same final membership.
type Clusterer struct {
	clusters *Store
	mirror   docstore.Collection
	zoner    zoning.Client
	registry CaseRegistry
	logger   *slog.Logger
	newID    func() string
}

// Option configures the clusterer.
type Option func(*Clusterer)

// WithIDGenerator overrides cluster id generation. Test hook.
func WithIDGenerator(newID func() string) Option {
	return func(c *Clusterer) { c.newID = newID }
}

func NewClusterer(clusters *Store, mirror docstore.Collection, zoner zoning.Client, registry CaseRegistry, logger *slog.Logger, opts ...Option) *Clusterer {
	c := &Clusterer{
		clusters: clusters,
		mirror:   mirror,
		zoner:    zoner,
		registry: registry,
		logger:   logger,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IndexAffaire records one decision into its cluster and follows its
// citations into the counterpart source, merging clusters as matches are
// found.
func (c *Clusterer) IndexAffaire(ctx context.Context, record domain.SourceRecord) (Outcome, error) {
	date := normalize.AssembleDate(record.DecisionDate)
	if record.Text == "" || record.RegisterNumber == "" || date == nil {
		return OutcomeNoData, nil
	}
	dateISO := date.Format(time.DateOnly)
	key := record.Key()

	cluster, err := c.clusters.ByMember(ctx, key)
	if err != nil {
		return "", err
	}
	created := cluster == nil
	if created {
		cluster = domain.NewAffaireCluster(c.newID())
	}
	cluster.AddMember(key, record.RegisterNumber, dateISO, record.Jurisdiction)

	citations := c.collectCitations(ctx, record)

	resolved := false
	consumed := make(map[string]bool)
	for _, citation := range citations {
		match, err := c.findCounterpart(ctx, record.Source.Counterpart(), citation, consumed)
		if err != nil {
			return "", err
		}
		if match == nil {
			continue
		}
		resolved = true

		matchDate := normalize.AssembleDate(match.Record.DecisionDate)
		matchISO := ""
		if matchDate != nil {
			matchISO = matchDate.Format(time.DateOnly)
			consumed[matchISO] = true
		}

		cluster, err = c.absorb(ctx, cluster, created, match.Key)
		if err != nil {
			return "", err
		}
		created = false
		cluster.AddMember(match.Key, match.Record.RegisterNumber, matchISO, match.Record.Jurisdiction)

		if citation.Pourvoi && cluster.DecattID == "" {
			decatt, err := c.registry.DecattID(ctx, citation.Number, citation.Date)
			if err != nil {
				return "", err
			}
			cluster.DecattID = decatt
		}
	}

	if err := c.clusters.Save(ctx, cluster); err != nil {
		return "", err
	}

	switch {
	case resolved:
		return OutcomeDecattFound, nil
	case record.Source == domain.SourceJurinet && len(record.AppealDecisionNumbers) > 0:
		return OutcomeDecattNotFound, nil
	default:
		return OutcomeNoDecatt, nil
	}
}

// collectCitations merges the citations extracted by the zoning service
// with the record's directly-known appeal links. A zoning failure degrades
// to the explicit links alone; citation extraction is an optional
// derivation, never fatal.
func (c *Clusterer) collectCitations(ctx context.Context, record domain.SourceRecord) []zoning.Citation {
	citations, err := c.zoner.Citations(ctx, record.ID, record.Source, record.Text)
	if err != nil {
		c.logger.Warn("citation extraction failed, falling back to explicit links",
			"key", record.Key(), "err", err)
		citations = nil
	}
	for _, number := range record.AppealDecisionNumbers {
		citations = append(citations, zoning.Citation{Number: number})
	}
	return citations
}

// findCounterpart scans the counterpart source's mirror for a record whose
// register number matches the citation, and whose date matches when the
// citation carries one. A date already consumed by an earlier citation of
// the same record is not reused.
func (c *Clusterer) findCounterpart(ctx context.Context, source domain.Source, citation zoning.Citation, consumed map[string]bool) (*domain.MirroredDocument, error) {
	if citation.Number == "" {
		return nil, nil
	}
	cursor, err := c.mirror.Find(ctx, docstore.Filter{"source": source})
	if err != nil {
		return nil, domain.Transient("counterpart scan", err)
	}
	defer cursor.Close()

	for cursor.Next(ctx) {
		var doc domain.MirroredDocument
		if err := cursor.Decode(&doc); err != nil {
			c.logger.Warn("counterpart scan: undecodable mirror document skipped", "err", err)
			continue
		}
		if doc.Record.RegisterNumber != citation.Number {
			continue
		}
		docISO := ""
		if docDate := normalize.AssembleDate(doc.Record.DecisionDate); docDate != nil {
			docISO = docDate.Format(time.DateOnly)
		}
		if consumed[docISO] {
			continue
		}
		if citation.Date != "" && citation.Date != docISO {
			continue
		}
		return &doc, nil
	}
	if err := cursor.Err(); err != nil {
		return nil, domain.Transient("counterpart scan", err)
	}
	return nil, nil
}

// absorb merges the matched counterpart's existing cluster with the current
// one. The pre-existing cluster keeps its id: a cluster freshly created for
// this record is folded into the counterpart's, otherwise the counterpart's
// is folded into the current one and its document removed.
func (c *Clusterer) absorb(ctx context.Context, cluster *domain.AffaireCluster, created bool, counterpartKey string) (*domain.AffaireCluster, error) {
	other, err := c.clusters.ByMember(ctx, counterpartKey)
	if err != nil {
		return nil, err
	}
	if other == nil || other.ID == cluster.ID {
		return cluster, nil
	}

	if created {
		other.Merge(cluster)
		return other, nil
	}
	cluster.Merge(other)
	if err := c.clusters.Delete(ctx, other.ID); err != nil {
		return nil, err
	}
	return cluster, nil
}
