package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain passes text through untouched unless it contains invalid
// UTF-8, in which case the bad sequences become replacement characters.
func extractPlain(content []byte) (string, error) {
	text := string(content)
	if utf8.ValidString(text) {
		return text, nil
	}
	return strings.ToValidUTF8(text, "�"), nil
}
