// Package source loads table images from disk or memory.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/observability"
)

// LargeFileSize triggers a warning; such files are still accepted.
const LargeFileSize = 20 * 1024 * 1024

// SupportedExtensions lists the image file types accepted from disk.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".gif", ".webp"}

// Validator provides input validation for image files
type Validator struct {
	logger *observability.Logger
}

// NewValidator creates a new validator instance
func NewValidator(logger *observability.Logger) *Validator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Validator{logger: logger}
}

// ValidateImagePath checks that path names a readable image file.
func (v *Validator) ValidateImagePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	if err := ValidateExtension(path); err != nil {
		return err
	}

	if info.Size() == 0 {
		return domain.ValidationError(fmt.Sprintf("file is empty: %s", path), nil)
	}
	if info.Size() > LargeFileSize {
		v.logger.Warn().
			Str("path", path).
			Int64("size_mb", info.Size()/(1024*1024)).
			Msg("Image file is very large, the model request may be slow")
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}

// ValidateExtension rejects file names without a supported image extension.
func ValidateExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, ok := range SupportedExtensions {
		if ext == ok {
			return nil
		}
	}
	return domain.ValidationError(
		fmt.Sprintf("unsupported image type %q (supported: %s)", ext, strings.Join(SupportedExtensions, ", ")),
		nil,
	)
}
