package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue_Plain(t *testing.T) {
	pv, err := ParseValue("1234")
	require.NoError(t, err)
	assert.Equal(t, 1234.0, pv.Value)
	assert.False(t, pv.Negative)
}

func TestParseValue_Parenthesized(t *testing.T) {
	pv, err := ParseValue("(1,234)")
	require.NoError(t, err)
	assert.Equal(t, -1234.0, pv.Value)
	assert.True(t, pv.Negative)
}

func TestParseValue_CreditMarker(t *testing.T) {
	pv, err := ParseValue("500 CR")
	require.NoError(t, err)
	assert.Equal(t, -500.0, pv.Value)
}

func TestParseValue_CurrencyAndCommas(t *testing.T) {
	pv, err := ParseValue("$1,500,000.25")
	require.NoError(t, err)
	assert.Equal(t, 1500000.25, pv.Value)
}

func TestParseValue_LeadingMinus(t *testing.T) {
	pv, err := ParseValue("-42.5")
	require.NoError(t, err)
	assert.Equal(t, -42.5, pv.Value)
}

func TestParseValue_UnicodeMinus(t *testing.T) {
	pv, err := ParseValue("−7")
	require.NoError(t, err)
	assert.Equal(t, -7.0, pv.Value)
}

func TestParseValue_Errors(t *testing.T) {
	for _, raw := range []string{"", "   ", "n/a", "—", "abc", "$", "()"} {
		_, err := ParseValue(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestDetectScale(t *testing.T) {
	tests := []struct {
		hint  string
		scale float64
		conf  float64
	}{
		{"", 1, 0.5},
		{"in thousands", 1e3, 1.0},
		{"($ in thousands)", 1e3, 1.0},
		{"(000s)", 1e3, 1.0},
		{"in millions", 1e6, 1.0},
		{"$M", 1e6, 1.0},
		{"$MM", 1e6, 1.0},
		{"amounts as reported", 1, 0.5},
	}
	for _, tt := range tests {
		scale, conf := DetectScale(tt.hint)
		assert.Equal(t, tt.scale, scale, "hint=%q", tt.hint)
		assert.Equal(t, tt.conf, conf, "hint=%q", tt.hint)
	}
}
