package domain

import "time"

// SchemaVersion stamps every canonical decision. Bump it when the normalized
// shape changes; the orchestrator re-normalizes any decision carrying a stale
// stamp.
const SchemaVersion = "2.1"

// Category is one personal-data category that can be omitted from published
// text.
type Category string

const (
	CategoryDateNaissance                  Category = "dateNaissance"
	CategoryDateMariage                    Category = "dateMariage"
	CategoryDateDeces                      Category = "dateDeces"
	CategoryPersonneMorale                 Category = "personneMorale"
	CategoryNumeroSiretSiren               Category = "numeroSiretSiren"
	CategoryAdresse                        Category = "adresse"
	CategoryLocalite                       Category = "localite"
	CategoryEtablissement                  Category = "etablissement"
	CategoryPlaqueImmatriculation          Category = "plaqueImmatriculation"
	CategoryCadastre                       Category = "cadastre"
	CategoryCoordonneeElectronique         Category = "coordonneeElectronique"
	CategoryCompteBancaire                 Category = "compteBancaire"
	CategoryProfessionnelMagistratGreffier Category = "professionnelMagistratGreffier"
	CategoryProfessionnelAvocat            Category = "professionnelAvocat"
	CategoryProfessionnelExpert            Category = "professionnelExpert"
)

// AllCategories is every known personal-data category, in stable order.
func AllCategories() []Category {
	return []Category{
		CategoryDateNaissance,
		CategoryDateMariage,
		CategoryDateDeces,
		CategoryPersonneMorale,
		CategoryNumeroSiretSiren,
		CategoryAdresse,
		CategoryLocalite,
		CategoryEtablissement,
		CategoryPlaqueImmatriculation,
		CategoryCadastre,
		CategoryCoordonneeElectronique,
		CategoryCompteBancaire,
		CategoryProfessionnelMagistratGreffier,
		CategoryProfessionnelAvocat,
		CategoryProfessionnelExpert,
	}
}

// RedactionProfile is the derived redaction instruction set embedded in a
// normalized decision. It is never persisted on its own.
type RedactionProfile struct {
	CategoriesToOmit []Category `json:"categoriesToOmit"`
	AdditionalTerms  string     `json:"additionalTerms"`
}

// Omits reports whether the profile includes c.
func (p RedactionProfile) Omits(c Category) bool {
	for _, have := range p.CategoriesToOmit {
		if have == c {
			return true
		}
	}
	return false
}

// PublicityVerdict is the outcome of the publicity rule engine.
type PublicityVerdict string

const (
	VerdictPublic          PublicityVerdict = "public"
	VerdictNonPublic       PublicityVerdict = "nonPublic"
	VerdictPartiallyPublic PublicityVerdict = "partiallyPublic"
	VerdictRejected        PublicityVerdict = "rejected"
	VerdictReview          PublicityVerdict = "review"
)

// ZoneMap is the structural segmentation returned by the zoning service
// (introduction, motivations, dispositif, ...). Kept opaque: this system
// stores and forwards zones, it never interprets them beyond the
// introduction lookup done by the clusterer.
type ZoneMap map[string]any

// MirroredDocument is the verbatim local copy of the latest upstream row
// seen, gated by a content hash. Owned exclusively by the mirror.
type MirroredDocument struct {
	Key      string       `json:"_id"`
	Source   Source       `json:"source"`
	SourceID int64        `json:"sourceId"`
	Hash     string       `json:"hash"`
	Record   SourceRecord `json:"record"`

	// Updated is set by the mirror on insert and on hash-mismatch replace,
	// and cleared once the normalization pass has consumed the change.
	Updated bool `json:"updated"`

	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// NormalizedDecision is the canonical, versioned representation consumed by
// downstream publication tooling. Keyed by (sourceName, sourceId).
//
// Invariants: Rev starts at 0 and increases by exactly 1 per accepted
// replacement; Version tracks the schema stamp of the writer. Once Locked is
// true the pipeline must not replace substantive fields.
type NormalizedDecision struct {
	ID       string `json:"_id"`
	Rev      int    `json:"_rev"`
	Version  string `json:"_version"`
	Source   Source `json:"sourceName"`
	SourceID int64  `json:"sourceId"`

	OriginalText string `json:"originalText"`
	PseudoText   string `json:"pseudoText,omitempty"`
	PseudoStatus string `json:"pseudoStatus,omitempty"`
	LabelStatus  string `json:"labelStatus,omitempty"`

	Locked bool `json:"locked"`

	Redaction RedactionProfile `json:"redaction"`
	Publicity PublicityVerdict `json:"publicity"`

	DecisionDate   *time.Time `json:"decisionDate,omitempty"`
	RegisterNumber string     `json:"registerNumber,omitempty"`
	Jurisdiction   string     `json:"jurisdiction,omitempty"`
	ChamberID      string     `json:"chamberId,omitempty"`
	NACCode        string     `json:"nacCode,omitempty"`

	Zoning ZoneMap `json:"zoning,omitempty"`

	// DecattID links the decision to its legal matter when a citation was
	// resolved through the case registry.
	DecattID    string   `json:"decattId,omitempty"`
	AppealLinks []string `json:"appealLinks,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the decision's canonical "source:id" key.
func (d NormalizedDecision) Key() string {
	return Key(d.Source, d.SourceID)
}
