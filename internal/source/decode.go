package source

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// decodeLegacyText converts a large-object column from the sources' legacy
// 8-bit encoding to UTF-8. Both upstreams store decision bodies in
// Windows-1252.
func decodeLegacyText(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode legacy text: %w", err)
	}
	return string(decoded), nil
}
