// Package publicity decides whether a decision may be published. The rules
// are a pure function of the subject-matter (NAC) code, an optional
// sub-code, the clerk's manual flag, and three external taxonomy tables.
package publicity

import (
	"jurisync/internal/domain"
)

// Tables are the three external taxonomy tables. They are a given data
// contract: this system reads them, it never derives them.
type Tables struct {
	// NonPublic lists codes that are unconditionally non-public.
	NonPublic map[string]bool
	// ConditionallyNonPublic lists codes that are non-public unless the
	// clerk explicitly flagged the decision public.
	ConditionallyNonPublic map[string]bool
	// PartiallyPublic lists codes whose decisions are published with parts
	// withheld.
	PartiallyPublic map[string]bool
}

func (t Tables) contains(table map[string]bool, code, subCode string) bool {
	if table[code] {
		return true
	}
	return subCode != "" && table[code+"-"+subCode]
}

// Verdict holds the five predicates. They are mutually consistent when the
// classifier returns a nil error.
type Verdict struct {
	NonPublic       bool
	PartiallyPublic bool
	Public          bool
	Rejected        bool
	Review          bool
}

// Outcome collapses the predicates into the stored verdict.
func (v Verdict) Outcome() domain.PublicityVerdict {
	switch {
	case v.Rejected:
		return domain.VerdictRejected
	case v.PartiallyPublic:
		return domain.VerdictPartiallyPublic
	case v.Review:
		return domain.VerdictReview
	case v.NonPublic:
		return domain.VerdictNonPublic
	default:
		return domain.VerdictPublic
	}
}

// Classify evaluates the five predicates in dependency order. Nothing is
// cached across calls: the taxonomy tables may be refreshed between
// invocations.
//
// On a *domain.ContradictionError the returned verdict already carries the
// conservative default (send to the review queue); callers log the error and
// proceed with that verdict.
func Classify(tables Tables, code, subCode string, manualFlag *int) (Verdict, error) {
	var v Verdict

	conservative := func(reason string) (Verdict, error) {
		v.Review = true
		return v, &domain.ContradictionError{NACCode: code, Reason: reason}
	}

	manualPublic := manualFlag != nil && *manualFlag == 1
	manualNonPublic := manualFlag != nil && *manualFlag == 0

	// 1. isNonPublic
	switch {
	case tables.contains(tables.NonPublic, code, subCode):
		if manualPublic {
			return conservative("code is unconditionally non-public but the manual flag says public")
		}
		v.NonPublic = true
	case tables.contains(tables.ConditionallyNonPublic, code, subCode):
		v.NonPublic = manualFlag == nil || manualNonPublic
	}

	// 2. isPartiallyPublic
	v.PartiallyPublic = tables.contains(tables.PartiallyPublic, code, subCode)

	// 3. isPublic
	v.Public = !v.NonPublic && !v.PartiallyPublic
	if v.Public && manualNonPublic {
		return conservative("rules compute public but the manual flag says non-public")
	}

	// 4. shouldBeRejected
	v.Rejected = code == "" ||
		(v.NonPublic && !v.Public && !v.PartiallyPublic)

	// 5. shouldBeSentToReviewQueue
	switch {
	case v.PartiallyPublic && (v.Public || v.NonPublic):
		return conservative("partially-public coincides with another publicity state")
	case v.PartiallyPublic:
		v.Review = true
	case v.Public == v.NonPublic:
		return conservative("public and non-public predicates agree")
	}

	return v, nil
}
