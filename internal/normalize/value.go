package normalize

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ParsedValue is the outcome of parsing one raw value text.
type ParsedValue struct {
	Value       float64
	Negative    bool
	SignCertain bool // true when the sign was explicitly marked or unambiguous
}

// ParseValue parses a raw numeric string as it appears in extracted
// statement tables. Parenthesized numerals and trailing "CR"/minus markers
// normalize to negative; everything else is positive. Currency symbols,
// commas, and surrounding whitespace are tolerated. A value that cannot be
// parsed as a number is an error, never defaulted to zero.
func ParseValue(raw string) (ParsedValue, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedValue{}, eris.New("normalize: empty value text")
	}

	negative := false
	signCertain := true

	// Parenthesized numerals: (1,234) -> -1234.
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Trailing credit marker.
	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "CR") {
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	}

	// Explicit leading sign.
	switch {
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "−"): // ASCII or Unicode minus
		negative = true
		s = strings.TrimLeft(s, "-−")
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	// Strip currency symbols, commas, and inner whitespace.
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', ',', ' ', ' ':
			return -1
		}
		return r
	}, s)

	if s == "" || s == "-" {
		return ParsedValue{}, eris.Errorf("normalize: no digits in value %q", raw)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return ParsedValue{}, eris.Wrapf(err, "normalize: parse value %q", raw)
	}

	if negative {
		v = -v
	}
	return ParsedValue{Value: v, Negative: negative, SignCertain: signCertain}, nil
}
