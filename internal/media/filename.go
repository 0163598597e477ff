package media

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"session-marketplace/internal/model"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFilename strips directories, control and invisible characters
// and replaces characters the storage backend rejects.
func SanitizeFilename(name string) (string, error) {
	trimmed := strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if trimmed == "" || trimmed == "." || trimmed == "/" {
		return "", fmt.Errorf("%w: filename cannot be empty", model.ErrInvalidInput)
	}

	builder := strings.Builder{}
	builder.Grow(len(trimmed))
	for _, char := range trimmed {
		if unicode.IsControl(char) || unicode.Is(unicode.Cf, char) {
			continue
		}
		builder.WriteRune(char)
	}

	cleaned := strings.TrimSpace(invalidFilenameChars.ReplaceAllString(builder.String(), "_"))
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" {
		return "", fmt.Errorf("%w: filename %q is invalid after sanitization", model.ErrInvalidInput, name)
	}

	// Truncate by runes to avoid splitting multi-byte characters.
	runes := []rune(cleaned)
	if len(runes) > 200 {
		runes = runes[:200]
	}
	return string(runes), nil
}
