package ml

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateOrdinal(t *testing.T) {
	tests := []struct {
		date time.Time
		want int64
	}{
		{time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), 1},
		{time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 719163},
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 738886},
		{time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC), 738886},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DateOrdinal(tt.date), tt.date.String())
	}
}

func TestCategories(t *testing.T) {
	assert.Equal(t, []string{"B", "A", "C"}, Categories([]string{"B", "A", "B", "", "C", "A"}))
	assert.Nil(t, Categories(nil))
}

func TestEncodeCategories_UnseenShareOneCode(t *testing.T) {
	codes, unseen := EncodeCategories([]string{"A", "C", "B", "D", ""}, []string{"A", "B"})
	assert.Equal(t, []float64{0, 2, 1, 2, 2}, codes)
	assert.Equal(t, 3, unseen)
}

func TestEncodeDates(t *testing.T) {
	codes, bad := EncodeDates([]string{"1970-01-02", "garbage", ""}, -1)
	assert.Equal(t, []float64{719164, -1, -1}, codes)
	assert.Equal(t, 2, bad)

	codes, _ = EncodeDates([]string{"bad"}, math.NaN())
	assert.True(t, math.IsNaN(codes[0]))
}

func TestIsNumericAndNumericColumn(t *testing.T) {
	assert.True(t, IsNumeric([]string{"1", "", "2.5"}))
	assert.False(t, IsNumeric([]string{"1", "x"}))

	col := NumericColumn([]string{"1", "", "2.5"})
	assert.Equal(t, 1.0, col[0])
	assert.True(t, math.IsNaN(col[1]))
	assert.Equal(t, 2.5, col[2])
}

func TestCoerceColumn(t *testing.T) {
	// partially numeric: unparseable cells become 0
	assert.Equal(t, []float64{3, 0, 0}, CoerceColumn([]string{"3", "n/a", ""}))
	// no numbers at all: batch-local codes by first appearance
	assert.Equal(t, []float64{0, 1, 0, 2}, CoerceColumn([]string{"rainy", "winter", "rainy", ""}))
}
