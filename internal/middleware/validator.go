package middleware

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Input validation and sanitization utilities

const (
	maxExtractionText  = 2 << 20
	maxExtractionPages = 2000
	maxEntityCount     = 500
)

var tenantPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateDocumentID checks the UUID form assigned at submission.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("document ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid document ID format")
	}
	return nil
}

// ValidateExtraction bounds the caller-supplied extraction payload.
func ValidateExtraction(ext document.Extraction) error {
	if len(ext.Text) > maxExtractionText {
		return fmt.Errorf("extraction text exceeds %d bytes", maxExtractionText)
	}
	if len(ext.Pages) > maxExtractionPages {
		return fmt.Errorf("extraction has more than %d pages", maxExtractionPages)
	}
	e := ext.Entities
	if len(e.Names) > maxEntityCount || len(e.Dates) > maxEntityCount || len(e.Amounts) > maxEntityCount {
		return fmt.Errorf("extraction has more than %d entities of one kind", maxEntityCount)
	}
	if q := ext.Quality; q != nil && (*q < 0 || *q > 100) {
		return fmt.Errorf("extraction quality must be within 0-100")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// SanitizeFilename keeps only the base name of an uploaded file.
func SanitizeFilename(name string) string {
	name = SanitizeString(strings.ReplaceAll(name, `\`, "/"))
	base := filepath.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 7 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}
