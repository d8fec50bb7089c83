package usecase

import (
	"fmt"
	"strings"

	"github.com/avolkov/fakelens/internal/core/domain"
)

// MaxUploadBytes is the hard upload ceiling (100 MiB).
const MaxUploadBytes int64 = 100 << 20

// ValidationResult is a value, never an error: the validator does not throw.
type ValidationResult struct {
	Valid  bool
	Reason string
}

func accepted() ValidationResult {
	return ValidationResult{Valid: true}
}

func rejected(reason string) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason}
}

// ValidateUpload checks a candidate file's extension and size against the
// backend's accepted formats. The extension is whatever follows the final dot,
// matched case-insensitively against the audio and image sets.
func ValidateUpload(filename string, size int64, formats domain.SupportedFormats) ValidationResult {
	ext := domain.FileExtension(filename)
	if ext == "" {
		return rejected("unsupported format")
	}
	if !formats.Allows(ext) {
		return rejected(fmt.Sprintf(
			"unsupported format %s, allowed formats: %s",
			ext, strings.Join(formats.All(), ", "),
		))
	}
	if size > MaxUploadBytes {
		return rejected(fmt.Sprintf(
			"file is %.2f MiB, limit is %d MiB",
			float64(size)/(1<<20), MaxUploadBytes>>20,
		))
	}
	return accepted()
}
