package domain

import "fmt"

// Source identifies one of the two upstream case-management systems.
type Source string

const (
	// SourceJurinet holds supreme-court (cassation) records.
	SourceJurinet Source = "jurinet"
	// SourceJurica holds appellate-court records.
	SourceJurica Source = "jurica"
)

// Counterpart returns the other upstream source.
func (s Source) Counterpart() Source {
	if s == SourceJurinet {
		return SourceJurica
	}
	return SourceJurinet
}

// Valid reports whether s names a known source.
func (s Source) Valid() bool {
	return s == SourceJurinet || s == SourceJurica
}

// Key builds the canonical "source:id" key used by the mirror and the
// lifecycle index.
func Key(source Source, id int64) string {
	return fmt.Sprintf("%s:%d", source, id)
}

// DateParts carries the fragmented date components the upstream sources
// store instead of a single date column. Fields are kept as raw strings
// because upstream rows routinely hold garbage in them.
type DateParts struct {
	Year  string `json:"year"`
	Month string `json:"month"`
	Day   string `json:"day"`
}

// Flag is a tri-state upstream indicator column: nil when the clerk left it
// unset, otherwise 0 or 1.
type Flag *int

// FlagOf is a convenience constructor for literal indicator values.
func FlagOf(v int) Flag {
	return &v
}

// RedactionIndicators groups the eleven per-field redaction indicator
// columns. For the first eight, 0 means "occult" and 1 means "do not
// occult". The three professional-name indicators use the opposite
// polarity: 1 means "occult".
type RedactionIndicators struct {
	PersonneMorale         Flag `json:"indPersonneMorale"`
	Adresse                Flag `json:"indAdresse"`
	DateNaissance          Flag `json:"indDateNaissance"`
	DateMariage            Flag `json:"indDateMariage"`
	DateDeces              Flag `json:"indDateDeces"`
	Immatriculation        Flag `json:"indImmatriculation"`
	Cadastre               Flag `json:"indCadastre"`
	CoordonneeElectronique Flag `json:"indCoordonneeElectronique"`

	ProfessionnelMagistratGreffier Flag `json:"indProfessionnelMagistratGreffier"`
	ProfessionnelAvocat            Flag `json:"indProfessionnelAvocat"`
	ProfessionnelExpert            Flag `json:"indProfessionnelExpert"`
}

// SourceRecord is the typed projection of one upstream row. Rows are decoded
// exactly once, at the source boundary; everything downstream works on this
// struct. The record is immutable from this system's point of view.
type SourceRecord struct {
	ID     int64  `json:"id"`
	Source Source `json:"source"`

	// Text is the decision body, already decoded from the source's legacy
	// 8-bit encoding.
	Text       string `json:"text"`
	PseudoText string `json:"pseudoText,omitempty"`

	NACCode    string `json:"nacCode"`
	NACSubCode string `json:"nacSubCode,omitempty"`

	// PublicityFlag is the clerk's manual public/non-public flag:
	// nil unset, 0 non-public, 1 public.
	PublicityFlag Flag `json:"publicityFlag"`

	BlockCode       Flag   `json:"blockCode"`
	BlockCodeText   string `json:"blockCodeText,omitempty"`
	AdditionalTerms string `json:"additionalTerms,omitempty"`

	Indicators RedactionIndicators `json:"indicators"`

	RegisterNumber string    `json:"registerNumber"`
	Jurisdiction   string    `json:"jurisdiction"`
	ChamberID      string    `json:"chamberId,omitempty"`
	DecisionDate   DateParts `json:"decisionDate"`

	// PortalisID is the cross-source legal identifier. Populated for
	// appellate records only.
	PortalisID string `json:"portalisId,omitempty"`

	// AppealDecisionNumbers lists counterpart appellate decision numbers
	// known directly by the supreme-court source.
	AppealDecisionNumbers []string `json:"appealDecisionNumbers,omitempty"`
}

// Key returns the record's canonical "source:id" key.
func (r SourceRecord) Key() string {
	return Key(r.Source, r.ID)
}
