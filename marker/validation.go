package marker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidationResult contains the results of content validation
type ValidationResult struct {
	Name        string
	Valid       bool
	Issues      []string
	Suggestions []string
	Err         error // First sentinel matched, for errors.Is checks
}

// ValidationOptions configures content validation behavior
type ValidationOptions struct {
	MaxLength       int
	MinLength       int
	AllowEmpty      bool
	AllowWhitespace bool
	TrimWhitespace  bool
}

// DefaultValidationOptions returns sensible defaults for essay validation
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MaxLength:       DefaultMaxContentLength,
		MinLength:       MinContentLength,
		AllowEmpty:      false,
		AllowWhitespace: false,
		TrimWhitespace:  true,
	}
}

// ValidateContent validates a single essay's text. Lengths are counted in runes.
func ValidateContent(content string, opts ValidationOptions) ValidationResult {
	result := ValidationResult{Valid: true}

	// Check for empty content
	if content == "" {
		if !opts.AllowEmpty {
			result.fail(ErrContentTooShort, "content is empty", "provide the essay text")
		}
		return result
	}

	// Check for whitespace-only content
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		if !opts.AllowWhitespace {
			result.fail(ErrContentWhitespace, "content contains only whitespace", "provide non-whitespace content")
		}
		return result
	}

	checkContent := content
	if opts.TrimWhitespace {
		checkContent = trimmed
	}
	length := utf8.RuneCountInString(checkContent)

	if length < opts.MinLength {
		result.fail(ErrContentTooShort,
			fmt.Sprintf("content too short (%d chars, minimum %d)", length, opts.MinLength),
			"provide a longer essay")
	}

	if opts.MaxLength > 0 && length > opts.MaxLength {
		result.fail(ErrContentTooLong,
			fmt.Sprintf("content too long (%d chars, maximum %d)", length, opts.MaxLength),
			fmt.Sprintf("reduce the essay to under %d characters", opts.MaxLength))
	}

	return result
}

func (r *ValidationResult) fail(err error, issue, suggestion string) {
	r.Valid = false
	r.Issues = append(r.Issues, issue)
	r.Suggestions = append(r.Suggestions, suggestion)
	if r.Err == nil {
		r.Err = err
	}
}

// ValidateEssays validates a batch of essays. Results are returned even when
// validation fails so callers can report every problem at once.
func ValidateEssays(essays []Essay, opts ValidationOptions) ([]ValidationResult, error) {
	if len(essays) == 0 {
		return nil, ErrNoEssays
	}

	results := make([]ValidationResult, len(essays))
	seen := make(map[string]bool, len(essays))
	var errs []error

	for i, essay := range essays {
		name := strings.TrimSpace(essay.Name)
		if name == "" {
			results[i] = ValidationResult{
				Valid:       false,
				Issues:      []string{"essay name is empty"},
				Suggestions: []string{fmt.Sprintf("provide a unique name for the essay at index %d", i)},
				Err:         ErrUnnamedEssay,
			}
			errs = append(errs, fmt.Errorf("essay %d: %w", i, ErrUnnamedEssay))
			continue
		}

		results[i] = ValidateContent(essay.Text, opts)
		results[i].Name = essay.Name

		if seen[name] {
			results[i].fail(ErrDuplicateEssay, "essay name is duplicated", "rename one of the essays")
		}
		seen[name] = true

		if !results[i].Valid {
			errs = append(errs, fmt.Errorf("essay %q: %w", essay.Name, results[i].Err))
		}
	}

	if len(errs) > 0 {
		return results, fmt.Errorf("validation failed for one or more essays: %w", errors.Join(errs...))
	}

	return results, nil
}

// SanitizeContent cleans and normalizes text content
func SanitizeContent(content string) string {
	// Trim leading and trailing whitespace
	content = strings.TrimSpace(content)

	// Normalize whitespace (replace multiple spaces with single space)
	content = normalizeWhitespace(content)

	// Remove non-printable characters except newlines and tabs
	content = removeNonPrintable(content)

	return content
}

// SanitizeEssays sanitizes the text of every essay, keeping names as-is
func SanitizeEssays(essays []Essay) []Essay {
	sanitized := make([]Essay, len(essays))
	for i, essay := range essays {
		sanitized[i] = Essay{
			Name: essay.Name,
			Text: SanitizeContent(essay.Text),
		}
	}
	return sanitized
}

// normalizeWhitespace replaces multiple consecutive spaces with a single space
// but preserves newlines and tabs
func normalizeWhitespace(s string) string {
	var result strings.Builder
	wasSpace := false

	for _, r := range s {
		if r == '\n' || r == '\t' {
			result.WriteRune(r)
			wasSpace = false
		} else if unicode.IsSpace(r) {
			if !wasSpace {
				result.WriteRune(' ')
				wasSpace = true
			}
		} else {
			result.WriteRune(r)
			wasSpace = false
		}
	}

	return result.String()
}

// removeNonPrintable removes non-printable characters except newlines and tabs
func removeNonPrintable(s string) string {
	var result strings.Builder

	for _, r := range s {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// ValidateAndSanitize sanitizes essays and validates the sanitized text
func ValidateAndSanitize(essays []Essay, opts ValidationOptions) ([]Essay, []ValidationResult, error) {
	sanitized := SanitizeEssays(essays)
	results, err := ValidateEssays(sanitized, opts)
	return sanitized, results, err
}
