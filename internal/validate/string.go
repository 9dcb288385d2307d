// Package validate provides centralized input validation and sanitization
// for the Deckhand API: field length and charset constraints, basic SQL
// keyword screening, and HTML escaping for user-entered text.
package validate

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrSQLKeyword        = errors.New("string contains SQL keywords")
	ErrEmpty             = errors.New("string is empty")
)

// sqlKeywords is a screening list only; parameterized queries remain the
// actual injection defense.
var sqlKeywords = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "EXEC", "EXECUTE", "UNION", "JOIN", "WHERE", "FROM",
	"--", "/*", "*/", ";--", "xp_", "sp_",
}

// StringConstraints describes what a field accepts. Zero MinLength/MaxLength
// means unbounded on that side.
type StringConstraints struct {
	MinLength        int
	MaxLength        int
	AllowedPattern   *regexp.Regexp
	DisallowedWords  []string
	CheckSQLKeywords bool
	AllowEmpty       bool
	TrimSpace        bool
}

// String checks s against the constraints and returns the (optionally
// trimmed) value. Lengths are counted in runes, not bytes, so multibyte
// equipment names are not penalized.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if constraints.AllowEmpty {
			return s, nil
		}
		return "", ErrEmpty
	}

	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	upper := strings.ToUpper(s)
	if constraints.CheckSQLKeywords {
		for _, keyword := range sqlKeywords {
			if strings.Contains(upper, keyword) {
				return "", fmt.Errorf("%w: contains %q", ErrSQLKeyword, keyword)
			}
		}
	}
	for _, word := range constraints.DisallowedWords {
		if strings.Contains(upper, strings.ToUpper(word)) {
			return "", fmt.Errorf("string contains disallowed word: %q", word)
		}
	}

	return s, nil
}

// SanitizeHTML escapes HTML special characters. Apply to any user text that
// a dashboard will render.
func SanitizeHTML(s string) string {
	return html.EscapeString(s)
}

// SanitizeString validates then HTML-escapes in one step.
func SanitizeString(s string, constraints StringConstraints) (string, error) {
	validated, err := String(s, constraints)
	if err != nil {
		return "", err
	}
	return SanitizeHTML(validated), nil
}

var (
	equipmentNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _\-\./]+$`)
	partNumberPattern    = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)
)

// EquipmentName validates an equipment identifier: 2-120 chars of letters,
// digits, spaces, dash, underscore, period, or slash.
func EquipmentName(name string) (string, error) {
	return SanitizeString(name, StringConstraints{
		MinLength:        2,
		MaxLength:        120,
		AllowedPattern:   equipmentNamePattern,
		CheckSQLKeywords: true,
		TrimSpace:        true,
	})
}

// PartNumber validates a spare-part number: 2-80 chars of letters, digits,
// dash, underscore, or period.
func PartNumber(pn string) (string, error) {
	return SanitizeString(pn, StringConstraints{
		MinLength:        2,
		MaxLength:        80,
		AllowedPattern:   partNumberPattern,
		CheckSQLKeywords: true,
		TrimSpace:        true,
	})
}

// FreeText validates a required free-text field such as a fault description
// or handover summary, up to 5000 chars. SQL screening is off so prose like
// "select the bypass valve" is not rejected.
func FreeText(content string) (string, error) {
	return SanitizeString(content, StringConstraints{
		MinLength: 1,
		MaxLength: 5000,
		TrimSpace: true,
	})
}

// Note validates an optional note field, up to 5000 chars.
func Note(note string) (string, error) {
	return SanitizeString(note, StringConstraints{
		MaxLength:  5000,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}
