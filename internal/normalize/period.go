package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/statement-mapper/internal/model"
)

// Period text arrives in free form: "FY24", "Q2'23", "Twelve Months Ended
// Dec 31, 2024". ParsePeriod reduces it to a canonical form; ambiguous or
// unparseable text is preserved as-is with zero confidence.

var (
	fyRe        = regexp.MustCompile(`(?i)^FY\s*'?(\d{2}|\d{4})$`)
	bareYearRe  = regexp.MustCompile(`^(19|20)\d{2}$`)
	quarterRe   = regexp.MustCompile(`(?i)^Q([1-4])\s*'?(\d{2}|\d{4})$`)
	yearQRe     = regexp.MustCompile(`(?i)^(\d{4})\s*Q([1-4])$`)
	endedRe     = regexp.MustCompile(`(?i)^(twelve|three|six|nine)\s+months\s+ended\s+(.+)$`)
	yearEndedRe = regexp.MustCompile(`(?i)^(?:fiscal\s+)?year\s+ended\s+(.+)$`)
)

// rangeSeparators are tried in order. Bare hyphens require surrounding
// spaces so ISO dates like 2024-01-01 are not split apart.
var rangeSeparators = []string{"..", " to ", " – ", " - "}

// dateLayouts are tried in order when parsing end dates and range bounds.
var dateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"01/02/2006",
	"2 January 2006",
}

// ParsePeriod converts free-form period text to a canonical Period and a
// confidence: 1.0 for a clean parse, 0 for text that had to be preserved raw.
func ParsePeriod(raw string) (model.Period, float64) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return model.Period{Kind: model.PeriodUnknown}, 0
	}

	if m := fyRe.FindStringSubmatch(s); m != nil {
		return model.Period{Kind: model.PeriodFiscalYear, Year: expandYear(m[1]), Raw: raw}, 1.0
	}
	if bareYearRe.MatchString(s) {
		y, _ := strconv.Atoi(s)
		return model.Period{Kind: model.PeriodFiscalYear, Year: y, Raw: raw}, 1.0
	}
	if m := quarterRe.FindStringSubmatch(s); m != nil {
		q, _ := strconv.Atoi(m[1])
		return model.Period{Kind: model.PeriodQuarter, Year: expandYear(m[2]), Quarter: q, Raw: raw}, 1.0
	}
	if m := yearQRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		q, _ := strconv.Atoi(m[2])
		return model.Period{Kind: model.PeriodQuarter, Year: y, Quarter: q, Raw: raw}, 1.0
	}

	// "Twelve Months Ended Dec 31, 2024" and friends.
	if m := endedRe.FindStringSubmatch(s); m != nil {
		end, ok := parseDate(m[2])
		if ok {
			switch strings.ToLower(m[1]) {
			case "twelve":
				return model.Period{Kind: model.PeriodFiscalYear, Year: end.Year(), Raw: raw}, 1.0
			case "three":
				return model.Period{
					Kind:    model.PeriodQuarter,
					Year:    end.Year(),
					Quarter: (int(end.Month())-1)/3 + 1,
					Raw:     raw,
				}, 1.0
			default:
				// Six/nine month stubs are genuine ranges, not quarters.
				start := end.AddDate(0, -monthSpan(m[1]), 0).AddDate(0, 0, 1)
				return model.Period{Kind: model.PeriodDateRange, Start: &start, End: &end, Raw: raw}, 1.0
			}
		}
	}
	if m := yearEndedRe.FindStringSubmatch(s); m != nil {
		if end, ok := parseDate(m[1]); ok {
			return model.Period{Kind: model.PeriodFiscalYear, Year: end.Year(), Raw: raw}, 1.0
		}
	}

	// Explicit date range.
	for _, sep := range rangeSeparators {
		parts := strings.SplitN(s, sep, 2)
		if len(parts) != 2 {
			continue
		}
		start, okS := parseDate(parts[0])
		end, okE := parseDate(parts[1])
		if okS && okE && !end.Before(start) {
			return model.Period{Kind: model.PeriodDateRange, Start: &start, End: &end, Raw: raw}, 1.0
		}
	}

	return model.Period{Kind: model.PeriodUnknown, Raw: raw}, 0
}

// expandYear turns a 2-digit year into a 4-digit one. Two-digit years are
// pivoted at 70: "69" -> 2069, "70" -> 1970, matching common filing ranges.
func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if y >= 100 {
		return y
	}
	if y < 70 {
		return 2000 + y
	}
	return 1900 + y
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.Trim(s, ".,"))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func monthSpan(word string) int {
	switch strings.ToLower(word) {
	case "three":
		return 3
	case "six":
		return 6
	case "nine":
		return 9
	default:
		return 12
	}
}
