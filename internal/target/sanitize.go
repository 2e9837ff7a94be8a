package target

import (
	"path"
	"strings"
	"unicode"
)

const maxFilenameLength = 200

// SanitizeFilename replaces path separators, reserved and control characters
// so the same title always maps to the same target filename. ext, when given,
// is appended unless the name already ends with it.
func SanitizeFilename(title, ext string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case unicode.IsControl(r):
			b.WriteRune('_')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	name := strings.Trim(b.String(), ". ")
	if name == "" {
		name = "untitled"
	}
	if ext != "" && !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		if len(name)+len(ext) > maxFilenameLength {
			name = truncate(name, maxFilenameLength-len(ext))
		}
		return name + ext
	}
	if len(name) > maxFilenameLength {
		e := path.Ext(name)
		name = truncate(strings.TrimSuffix(name, e), maxFilenameLength-len(e)) + e
	}
	return name
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Disambiguate inserts the item id before the extension: "Intro (42).md"
func Disambiguate(filename, itemID string) string {
	ext := path.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return base + " (" + SanitizeFilename(itemID, "") + ")" + ext
}
