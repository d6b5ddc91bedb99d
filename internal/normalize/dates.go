package normalize

import (
	"strconv"
	"strings"
	"time"

	"jurisync/internal/domain"
)

// AssembleDate builds a date from the fragmented components the sources
// store. Unparseable input yields nil rather than an error: a missing or
// garbled date never blocks normalization.
func AssembleDate(parts domain.DateParts) *time.Time {
	year, ok := atoiStrict(parts.Year)
	if !ok || year < 1800 || year > 2200 {
		return nil
	}
	month, ok := atoiStrict(parts.Month)
	if !ok || month < 1 || month > 12 {
		return nil
	}
	day, ok := atoiStrict(parts.Day)
	if !ok || day < 1 || day > 31 {
		return nil
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 becomes Mar 2); reject it.
	if date.Day() != day || date.Month() != time.Month(month) {
		return nil
	}
	return &date
}

func atoiStrict(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
