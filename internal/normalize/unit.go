package normalize

import (
	"regexp"
	"strings"
)

// Scale declarations appear in footnotes and headers: "in thousands",
// "($ in millions)", "$M". Absent any declaration the multiplier defaults
// to 1 and is marked low-confidence.

var (
	thousandsRe = regexp.MustCompile(`(?i)\bin\s+thousands\b|\bthousands\b|\(000s?\)|\$\s*k\b|\$000s?\b`)
	millionsRe  = regexp.MustCompile(`(?i)\bin\s+millions\b|\bmillions\b|\$\s*mm?\b`)
)

const (
	scaleConfidenceDeclared = 1.0
	scaleConfidenceDefault  = 0.5
)

// DetectScale inspects a scale hint (footnote/header text) and returns the
// multiplier and a confidence. No declaration means multiplier 1 at low
// confidence, never an error.
func DetectScale(hint string) (float64, float64) {
	s := strings.TrimSpace(hint)
	if s == "" {
		return 1, scaleConfidenceDefault
	}
	if millionsRe.MatchString(s) {
		return 1e6, scaleConfidenceDeclared
	}
	if thousandsRe.MatchString(s) {
		return 1e3, scaleConfidenceDeclared
	}
	return 1, scaleConfidenceDefault
}
