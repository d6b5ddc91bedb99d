// Package redaction computes which personal-data categories must be omitted
// from published text. Pure domain logic: no I/O, no side effects. The legal
// meaning of the categories is a given data contract, not derived here.
package redaction

import (
	"regexp"
	"strconv"

	"jurisync/internal/domain"
)

// Input is everything the classifier looks at: the block code (with its
// free-text override), the eleven indicator columns, and the clerk's
// free-text additional terms.
type Input struct {
	BlockCode *int
	// BlockCodeText is the free-form column some jurisdictions use instead
	// of the numeric block code. When it parses to an integer it takes
	// precedence over BlockCode.
	BlockCodeText   string
	Indicators      domain.RedactionIndicators
	AdditionalTerms string
}

// FromRecord builds the classifier input from a raw source record.
func FromRecord(record domain.SourceRecord) Input {
	return Input{
		BlockCode:       record.BlockCode,
		BlockCodeText:   record.BlockCodeText,
		Indicators:      record.Indicators,
		AdditionalTerms: record.AdditionalTerms,
	}
}

var blockCodeDigits = regexp.MustCompile(`\d+`)

// effectiveBlock resolves the block code, free text winning over the numeric
// column. Returns nil when neither carries a usable value.
func (in Input) effectiveBlock() *int {
	if m := blockCodeDigits.FindString(in.BlockCodeText); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			return &v
		}
	}
	return in.BlockCode
}

// Classify derives the redaction profile. The seed comes from the block
// code, then each indicator column adds or removes the category set it
// controls. Add/remove on a set is idempotent, so indicator order does not
// matter and the result equals applying each rule independently to the seed.
func Classify(in Input) domain.RedactionProfile {
	set := seed(in.effectiveBlock())

	apply := func(flag domain.Flag, invert bool, categories ...domain.Category) {
		if flag == nil {
			return
		}
		occult := *flag == 0
		if invert {
			occult = *flag == 1
		}
		for _, c := range categories {
			if occult {
				set[c] = true
			} else {
				delete(set, c)
			}
		}
	}

	ind := in.Indicators
	apply(ind.PersonneMorale, false, domain.CategoryPersonneMorale, domain.CategoryNumeroSiretSiren)
	apply(ind.Adresse, false, domain.CategoryAdresse, domain.CategoryLocalite, domain.CategoryEtablissement)
	apply(ind.DateNaissance, false, domain.CategoryDateNaissance)
	apply(ind.DateMariage, false, domain.CategoryDateMariage)
	apply(ind.DateDeces, false, domain.CategoryDateDeces)
	apply(ind.Immatriculation, false, domain.CategoryPlaqueImmatriculation)
	apply(ind.Cadastre, false, domain.CategoryCadastre)
	apply(ind.CoordonneeElectronique, false, domain.CategoryCoordonneeElectronique)

	// The three professional-name indicators use the opposite polarity:
	// 1 means occult.
	apply(ind.ProfessionnelMagistratGreffier, true, domain.CategoryProfessionnelMagistratGreffier)
	apply(ind.ProfessionnelAvocat, true, domain.CategoryProfessionnelAvocat)
	apply(ind.ProfessionnelExpert, true, domain.CategoryProfessionnelExpert)

	// Stable output order.
	var categories []domain.Category
	for _, c := range domain.AllCategories() {
		if set[c] {
			categories = append(categories, c)
		}
	}

	return domain.RedactionProfile{
		CategoriesToOmit: categories,
		AdditionalTerms:  in.AdditionalTerms,
	}
}

// seed builds the starting category set for a block code:
//
//	0       every known category
//	1       magistrate/clerk names only
//	2       block 1 plus birth/marriage/death dates
//	3       block 1 plus legal-entity identifiers
//	4       blocks 2 and 3 combined
//	other   the conservative default: block 3
//
// Codes outside 0-4 fall through to the conservative default; upstream has
// never documented them.
func seed(block *int) map[domain.Category]bool {
	set := make(map[domain.Category]bool)

	if block != nil && *block == 0 {
		for _, c := range domain.AllCategories() {
			set[c] = true
		}
		return set
	}

	set[domain.CategoryProfessionnelMagistratGreffier] = true

	code := -1
	if block != nil {
		code = *block
	}
	switch code {
	case 1:
		// names only
	case 2:
		set[domain.CategoryDateNaissance] = true
		set[domain.CategoryDateMariage] = true
		set[domain.CategoryDateDeces] = true
	case 4:
		set[domain.CategoryDateNaissance] = true
		set[domain.CategoryDateMariage] = true
		set[domain.CategoryDateDeces] = true
		set[domain.CategoryPersonneMorale] = true
		set[domain.CategoryNumeroSiretSiren] = true
	default: // 3, unset, or out of range
		set[domain.CategoryPersonneMorale] = true
		set[domain.CategoryNumeroSiretSiren] = true
	}
	return set
}
