package phone

import (
	"regexp"
	"strings"
)

const DefaultCountryCode = "81"

var (
	separators = regexp.MustCompile(`[-+\s()]`)
	dialable   = regexp.MustCompile(`^\d{10,12}$`)
)

// Clean strips spaces, hyphens, parentheses and plus signs.
func Clean(raw string) string {
	return separators.ReplaceAllString(raw, "")
}

// IsValid reports whether raw is 10 to 12 digits once cleaned.
func IsValid(raw string) bool {
	return dialable.MatchString(Clean(raw))
}

// ToDialable cleans raw and swaps a leading trunk prefix for DefaultCountryCode.
func ToDialable(raw string) string {
	return Normalizer{CountryCode: DefaultCountryCode}.ToDialable(raw)
}

type Normalizer struct {
	CountryCode string
}

func (n Normalizer) ToDialable(raw string) string {
	cleaned := Clean(raw)
	if rest, ok := strings.CutPrefix(cleaned, "0"); ok {
		return n.CountryCode + rest
	}
	return cleaned
}

// Invalid returns the entries of numbers that fail IsValid, in order.
func Invalid(numbers []string) []string {
	var out []string
	for _, n := range numbers {
		if !IsValid(n) {
			out = append(out, n)
		}
	}
	return out
}
