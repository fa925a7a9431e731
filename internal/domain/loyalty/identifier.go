package loyalty

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// IdentifierKind is the shape of a free-text customer identifier
type IdentifierKind string

const (
	IdentifierKindEmail   IdentifierKind = "email"
	IdentifierKindPhone   IdentifierKind = "phone"
	IdentifierKindUnknown IdentifierKind = "unknown"
)

const (
	maxIdentifierLength = 255
	minPhoneDigits      = 8
	maxPhoneDigits      = 15
)

// NormalizeIdentifier turns free text into the key enrollments are stored
// under. Emails are case folded, phones are reduced to digits with an
// optional leading '+'. Anything else is kept as an opaque trimmed key.
func NormalizeIdentifier(raw string) (string, IdentifierKind, error) {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return "", IdentifierKindUnknown, ErrInvalidIdentifier.WithMessage("customer identifier is required")
	}
	if len(s) > maxIdentifierLength {
		return "", IdentifierKindUnknown, ErrInvalidIdentifier.WithMessage("customer identifier is too long")
	}

	if isEmailShaped(s) {
		return cases.Fold().String(s), IdentifierKindEmail, nil
	}
	if phone, ok := normalizePhone(s); ok {
		return phone, IdentifierKindPhone, nil
	}
	return s, IdentifierKindUnknown, nil
}

// ClassifyIdentifier reports the shape of raw without failing
func ClassifyIdentifier(raw string) IdentifierKind {
	_, kind, err := NormalizeIdentifier(raw)
	if err != nil {
		return IdentifierKindUnknown
	}
	return kind
}

// SupportsCredentialReset reports whether credential-reset style flows
// (magic links, password reset) can target this identifier.
func SupportsCredentialReset(raw string) bool {
	return ClassifyIdentifier(raw) == IdentifierKindEmail
}

func isEmailShaped(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at != strings.LastIndexByte(s, '@') {
		return false
	}
	domain := s[at+1:]
	if domain == "" || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") || !strings.Contains(domain, ".") {
		return false
	}
	return !strings.ContainsFunc(s, unicode.IsSpace)
}

func normalizePhone(s string) (string, bool) {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}
	out := b.String()
	digits := len(strings.TrimPrefix(out, "+"))
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", false
	}
	return out, true
}
