package summary

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dyluth/tally/internal/countindex"
	"github.com/dyluth/tally/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatExpression(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		expected   string
	}{
		{name: "empty expression", expression: "", expected: "-"},
		{name: "short expression", expression: "5*10+3*20", expected: "5*10+3*20"},
		{name: "exactly 30 chars", expression: strings.Repeat("1", 30), expected: strings.Repeat("1", 30)},
		{name: "31 chars - should truncate", expression: strings.Repeat("1", 31), expected: strings.Repeat("1", 27) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatExpression(tt.expression))
		})
	}
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "a3f5b8c9", formatID("a3f5b8c9-1d2e-4f7a-9b1c-3d5e6f8a9b0c"))
	assert.Equal(t, "short", formatID("short"))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("jsonl")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSONL, f)

	f, err = ParseFormat("default")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatDefault, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}

func sampleTotals() []countindex.Totals {
	return []countindex.Totals{
		{
			ItemID:       "SKU-1",
			TotalCounted: 160,
			IsCounted:    true,
			ByLocation: []countindex.LocationTotal{
				{Location: "A1", Quantity: 100, Expression: "20*5"},
				{Location: "B2", Quantity: 60},
			},
		},
	}
}

func TestFormatTotals(t *testing.T) {
	t.Run("empty session", func(t *testing.T) {
		var buf bytes.Buffer
		n := FormatTotals(&buf, nil, "s1")
		assert.Equal(t, 0, n)
		assert.Contains(t, buf.String(), "No counts found for session 's1'")
	})

	t.Run("rows and totals", func(t *testing.T) {
		var buf bytes.Buffer
		n := FormatTotals(&buf, sampleTotals(), "s1")
		assert.Equal(t, 1, n)

		out := buf.String()
		assert.Contains(t, out, "ITEM")
		assert.Contains(t, out, "20*5")
		assert.Contains(t, out, "TOTAL")
		assert.Contains(t, out, "160")
		assert.Contains(t, out, "1 item counted")

		// B2 has no expression
		for _, line := range strings.Split(out, "\n") {
			if strings.Contains(line, "B2") {
				assert.True(t, strings.HasSuffix(line, "-"), "line %q", line)
			}
		}
	})
}

func TestFormatJSONL(t *testing.T) {
	totals := append(sampleTotals(), countindex.Totals{ItemID: "SKU-2", ByLocation: []countindex.LocationTotal{}})

	var buf bytes.Buffer
	require.NoError(t, FormatJSONL(&buf, totals))

	scanner := bufio.NewScanner(&buf)
	var decoded []countindex.Totals
	for scanner.Scan() {
		var tot countindex.Totals
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &tot))
		decoded = append(decoded, tot)
	}
	require.Len(t, decoded, 2)
	assert.Equal(t, int64(160), decoded[0].TotalCounted)
	assert.False(t, decoded[1].IsCounted)
}

func TestFormatLocations(t *testing.T) {
	t.Run("no locations", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Equal(t, 0, FormatLocations(&buf, nil, "prod"))
		assert.Contains(t, buf.String(), "No locations found in namespace 'prod'")
	})

	t.Run("active and inactive", func(t *testing.T) {
		locations := []*ledger.Location{
			{ID: "11111111-2222-4333-8444-555555555555", Name: "A1", IsActive: true},
			{ID: "66666666-7777-4888-9999-000000000000", Name: "OLD", IsActive: false},
		}

		var buf bytes.Buffer
		assert.Equal(t, 2, FormatLocations(&buf, locations, "prod"))

		out := buf.String()
		assert.Contains(t, out, "11111111")
		assert.NotContains(t, out, "11111111-2222")
		assert.Contains(t, out, "inactive")
		assert.Contains(t, out, "2 locations")
	})
}
