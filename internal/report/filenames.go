package report

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[|&;$%@"<>()+,/\\\s]`)
	repeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

const maxFilenameBase = 80

// sanitizeFilename makes a user-supplied name safe to embed in a storage path
// or archive entry. Shell and URL metacharacters, separators and whitespace
// become underscores and long phone-camera names are truncated.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	ext := filepath.Ext(name)
	if ext == "." || len(ext) > 10 || strings.ContainsAny(ext, " \t") {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	ext = unsafeFilenameChars.ReplaceAllString(ext, "_")

	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = repeatedUnderscores.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_.")

	if utf8.RuneCountInString(base) > maxFilenameBase {
		base = string([]rune(base)[:maxFilenameBase])
	}
	if base == "" {
		base = "arquivo"
	}
	return base + strings.ToLower(ext)
}

// fileLabel sanitizes a name used inside generated filenames, such as a store
func fileLabel(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = repeatedUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_.")
	if s == "" {
		return "SEM_NOME"
	}
	return s
}
