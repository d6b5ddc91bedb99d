package normalize

import (
	"html"
	"regexp"
	"strings"
)

var (
	markupTags = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespace = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Document start/end markers the upstream capture tools embed around the
// body. Matched on their own line, case-insensitively.
var boundaryMarkers = []string{
	"DEBUT DE LA DECISION",
	"FIN DE LA DECISION",
}

// CleanText turns a raw upstream body into publishable plain text: markup
// stripped, entities decoded, whitespace collapsed, capture markers removed.
func CleanText(raw string) string {
	text := markupTags.ReplaceAllString(raw, " ")
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
		if isBoundaryMarker(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}

	text = strings.Join(cleaned, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func isBoundaryMarker(line string) bool {
	upper := strings.ToUpper(line)
	for _, marker := range boundaryMarkers {
		if upper == marker {
			return true
		}
	}
	return false
}
