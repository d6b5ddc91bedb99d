package normalize

import (
	"time"

	"jurisync/internal/domain"
	"jurisync/internal/redaction"
)

// Options steers how a previous canonical version is treated.
type Options struct {
	// IgnorePrevious builds the decision as if none existed before; only
	// the revision counter still advances from the previous version.
	IgnorePrevious bool
	// ForceRederive re-derives the sticky fields (pseudonymized text and
	// status, label workflow state, schema stamp) instead of carrying them
	// forward. Set when the stored schema version is stale.
	ForceRederive bool
}

// Build derives the canonical decision from a mirrored record and,
// optionally, its previous canonical version. Pure: no I/O. Zoning and the
// publicity verdict are attached by the Service.
//
// Returns *domain.IntegrityError when the original text is empty after
// cleaning; that is fatal to this document, not to the batch.
func Build(mirrored *domain.MirroredDocument, previous *domain.NormalizedDecision, opts Options, now time.Time) (*domain.NormalizedDecision, error) {
	record := mirrored.Record

	original := CleanText(record.Text)
	if original == "" {
		return nil, &domain.IntegrityError{
			Source: record.Source,
			ID:     record.ID,
			Reason: "original text empty after cleaning",
		}
	}

	decision := &domain.NormalizedDecision{
		ID:       mirrored.Key,
		Rev:      0,
		Version:  domain.SchemaVersion,
		Source:   record.Source,
		SourceID: record.ID,

		OriginalText: original,
		PseudoText:   CleanText(record.PseudoText),

		Redaction: redaction.Classify(redaction.FromRecord(record)),

		DecisionDate:   AssembleDate(record.DecisionDate),
		RegisterNumber: record.RegisterNumber,
		Jurisdiction:   record.Jurisdiction,
		ChamberID:      record.ChamberID,
		NACCode:        record.NACCode,

		CreatedAt: now,
		UpdatedAt: now,
	}

	if previous != nil {
		decision.Rev = previous.Rev + 1
		decision.CreatedAt = previous.CreatedAt

		if !opts.IgnorePrevious {
			decision.DecattID = previous.DecattID
			decision.AppealLinks = previous.AppealLinks
			decision.Zoning = previous.Zoning
		}

		if !opts.IgnorePrevious && !opts.ForceRederive {
			// Sticky fields: downstream annotation work survives
			// re-normalization of the source material.
			if previous.PseudoText != "" {
				decision.PseudoText = previous.PseudoText
			}
			decision.PseudoStatus = previous.PseudoStatus
			decision.LabelStatus = previous.LabelStatus
			decision.Version = previous.Version
		}
	}

	return decision, nil
}

// NeedsNormalization decides whether a mirrored record must be (re)run
// through the transform. Re-normalization is skipped unless the mirror
// changed since the last pass, the stored schema version is stale, or
// zoning is missing for a decision that has pseudonymized text.
func NeedsNormalization(mirrored *domain.MirroredDocument, previous *domain.NormalizedDecision) bool {
	if previous == nil {
		return true
	}
	if mirrored.Updated {
		return true
	}
	if previous.Version != domain.SchemaVersion {
		return true
	}
	if previous.PseudoText != "" && previous.Zoning == nil {
		return true
	}
	return false
}
