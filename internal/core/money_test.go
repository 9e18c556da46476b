package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "12.34", want: "12.34"},
		{input: "12,5", want: "12.5"},
		{input: "0", want: "0"},
		{input: " 7 ", want: "7"},
		{input: "", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseOptionalAmount(t *testing.T) {
	got, err := ParseOptionalAmount("  ")
	require.NoError(t, err)
	assert.False(t, got.Valid)

	got, err = ParseOptionalAmount("3,25")
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.Equal(t, "3.25", got.Decimal.String())
}

func TestNamedAmounts(t *testing.T) {
	var n NamedAmounts
	assert.Equal(t, 0, n.Len())
	_, ok := n.Max()
	assert.False(t, ok)

	n.Add("rent", decimal.NewFromInt(100))
	n.Add("food", decimal.NewFromInt(60))
	n.Add("food", decimal.NewFromInt(40))
	n.Add("fuel", decimal.NewFromInt(10))

	assert.Equal(t, []string{"rent", "food", "fuel"}, n.Names())
	food, _ := n.Get("food")
	assert.True(t, decimal.NewFromInt(100).Equal(food))

	top, ok := n.Max()
	require.True(t, ok)
	assert.Equal(t, "rent", top, "ties go to the first inserted name")

	b, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, `{"rent":"100","food":"100","fuel":"10"}`, string(b))
}

func TestMonthSummary_Dates(t *testing.T) {
	s := MonthSummary{
		Year:  2024,
		Month: 2,
		ByDate: map[string]DaySummary{
			"2024-02-29": {},
			"2024-02-01": {},
			"2024-02-10": {},
		},
	}
	assert.Equal(t, []string{"2024-02-01", "2024-02-10", "2024-02-29"}, s.Dates())
}
