package domain

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Injection patterns — SQL/NoSQL/template fragments that should never appear
// in a user query.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),            // template injection
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`), // NoSQL operator injection
}

const (
	minQueryRunes = 1
	maxQueryRunes = 10000
	minTopK       = 1
	maxTopK       = 20
	maxCommentLen = 2000
)

// ValidateTenantID checks a tenant identifier (1..255 chars, opaque string).
func ValidateTenantID(tenantID string) error {
	n := utf8.RuneCountInString(tenantID)
	if n < 1 || n > 255 {
		return NewValidationError("tenant_id", tenantID, ErrInvalidTenant)
	}
	return nil
}

// ValidateQueryText validates a chat query's text before it enters the
// pipeline: length bounds and an injection-pattern screen.
func ValidateQueryText(text string) error {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n < minQueryRunes {
		return NewValidationError("query", trimmed, ErrQueryTooShort)
	}
	if n > maxQueryRunes {
		return NewValidationError("query", truncate(trimmed, 40), ErrQueryTooLong)
	}
	for _, pat := range injectionPatterns {
		if pat.MatchString(trimmed) {
			return NewValidationError("query", trimmed, ErrQueryInjection)
		}
	}
	return nil
}

// ValidateTopK checks the requested result count (1..20).
func ValidateTopK(topK int) error {
	if topK < minTopK || topK > maxTopK {
		return NewValidationError("top_k", strconv.Itoa(topK), ErrInvalidTopK)
	}
	return nil
}

// ValidateDocType checks a document type against the supported set.
func ValidateDocType(t DocType) error {
	if !ValidDocTypes[t] {
		return NewValidationError("type", string(t), ErrUnsupportedType)
	}
	return nil
}

// ValidateRating checks a feedback rating (1..5).
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return NewValidationError("rating", strconv.Itoa(rating), ErrInvalidRating)
	}
	return nil
}

// ValidateComment checks an optional feedback comment (<=2000 chars).
func ValidateComment(comment string) error {
	if utf8.RuneCountInString(comment) > maxCommentLen {
		return NewValidationError("comment", truncate(comment, 40), ErrCommentTooLong)
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
