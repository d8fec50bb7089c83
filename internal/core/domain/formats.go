package domain

import (
	"sort"
	"strings"
)

// SupportedFormats is the backend's accepted-extension lists, fetched once per
// session and treated as immutable afterwards. Extensions are normalized to
// lowercase with a leading dot.
type SupportedFormats struct {
	Audio []string `json:"audio"`
	Image []string `json:"image"`
}

func (f SupportedFormats) Normalized() SupportedFormats {
	return SupportedFormats{
		Audio: normalizeExtensions(f.Audio),
		Image: normalizeExtensions(f.Image),
	}
}

// Allows reports whether ext (normalized form) is in the audio or image set.
func (f SupportedFormats) Allows(ext string) bool {
	ext = NormalizeExtension(ext)
	for _, candidate := range f.Audio {
		if NormalizeExtension(candidate) == ext {
			return true
		}
	}
	for _, candidate := range f.Image {
		if NormalizeExtension(candidate) == ext {
			return true
		}
	}
	return false
}

// All returns the union of both sets, sorted, for validation messages.
func (f SupportedFormats) All() []string {
	seen := make(map[string]struct{}, len(f.Audio)+len(f.Image))
	var out []string
	for _, ext := range append(normalizeExtensions(f.Audio), normalizeExtensions(f.Image)...) {
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// FileExtension extracts the substring after the final dot, lowercased and
// dot-prefixed. Returns "" for names without a dot.
func FileExtension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx:])
}

// NormalizeExtension lowercases and dot-prefixes a single extension.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		normalized := NormalizeExtension(ext)
		if normalized == "" {
			continue
		}
		out = append(out, normalized)
	}
	return out
}
