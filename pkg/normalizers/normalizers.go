// Package normalizers canonicalizes submitted emails and phone numbers before matching.
package normalizers

import (
	"fmt"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = map[string]Normalizer{
	"trim":              Trim,
	"lowercase":         Lowercase,
	"nemail":            NormalizeEmail,
	"nphone":            NormalizePhone,
	"digits_only":       DigitsOnly,
	"remove_whitespace": RemoveWhitespace,
}

// Chain is an ordered list of normalizers applied left to right.
type Chain []Normalizer

// NewChain resolves registered normalizer names. Unknown names are a configuration error.
func NewChain(names ...string) (Chain, error) {
	chain := make(Chain, 0, len(names))
	for _, name := range names {
		fn, ok := registry[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown normalizer %q", name)
		}
		chain = append(chain, fn)
	}
	return chain, nil
}

func (c Chain) Apply(value string) string {
	for _, fn := range c {
		value = fn(value)
	}
	return value
}

// Names lists the registered normalizers.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps digits and a single leading '+'.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var result strings.Builder
	for i, r := range s {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
