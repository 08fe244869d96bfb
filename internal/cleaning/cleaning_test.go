package cleaning

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"healthcast/internal/common"
	"healthcast/internal/table"
)

const rawCSV = `District,Date,Disease,Cases,Mortality
hyderabad ,2024-01-05,Dengue,3,0
Hyderabad,05/02/2024,Malaria,2,1
ranga   reddy,2024/07/15,Dengue,4,0
Warangal,not-a-date,Typhoid,1,0
`

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-01-05", "2024-01-05", true},
		{"05-01-2024", "2024-01-05", true},
		{"05/01/2024", "2024-01-05", true},
		{"2024/01/05", "2024-01-05", true},
		{"12/25/2024", "2024-12-25", true},
		{"2024-01-05 13:45:00", "2024-01-05", true},
		{" 2024-03-01 ", "2024-03-01", true},
		{"", "", false},
		{"yesterday", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.Format(common.DateLayout))
			}
		})
	}
}

func TestSeason(t *testing.T) {
	want := map[time.Month]string{
		time.January: "winter", time.February: "winter", time.March: "summer",
		time.April: "summer", time.May: "summer", time.June: "rainy",
		time.July: "rainy", time.August: "rainy", time.September: "rainy",
		time.October: "monsoon", time.November: "monsoon", time.December: "winter",
	}
	for m, s := range want {
		assert.Equal(t, s, Season(m), m.String())
	}
}

func TestCanonicalDistrict(t *testing.T) {
	caser := cases.Title(language.English)
	assert.Equal(t, "Hyderabad", CanonicalDistrict(caser, " hyderabad "))
	assert.Equal(t, "Ranga Reddy", CanonicalDistrict(caser, "RANGA\t reddy"))
	assert.Equal(t, "", CanonicalDistrict(caser, "   "))
}

func TestClean(t *testing.T) {
	raw, err := table.Parse(strings.NewReader(rawCSV))
	require.NoError(t, err)

	out, stats, err := Clean(raw)
	require.NoError(t, err)

	assert.Equal(t, Stats{Rows: 4, UnparseableDates: 1, RenamedDistricts: 2}, stats)
	assert.Equal(t, []string{"Hyderabad", "Hyderabad", "Ranga Reddy", "Warangal"}, out.Column(common.ColDistrict))
	assert.Equal(t, []string{"2024-01-05", "2024-02-05", "2024-07-15", ""}, out.Column(common.ColDate))
	assert.Equal(t, []string{"winter", "winter", "rainy", ""}, out.Column(common.ColSeason))

	// input untouched
	assert.Equal(t, "hyderabad ", raw.Cell(0, common.ColDistrict))
}

func TestClean_RequiresDate(t *testing.T) {
	raw := table.New([]string{"District", "Cases"})
	_, _, err := Clean(raw)

	var missing *table.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"Date"}, missing.Columns)
}

func TestRun_File(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "raw.csv")
	dst := filepath.Join(dir, "processed", "cleaned.csv")
	require.NoError(t, os.WriteFile(src, []byte(rawCSV), 0o644))

	stats, err := Run(context.Background(), Options{Source: src, Output: dst})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Rows)

	out, err := table.Read(dst)
	require.NoError(t, err)
	assert.True(t, out.Has(common.ColSeason))
	assert.Equal(t, 4, out.Len())
}

func TestRun_MissingSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "absent.csv")

	_, err := Run(context.Background(), Options{Source: src, Output: filepath.Join(dir, "out.csv")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), src)
}

func TestLoad_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dataset.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(rawCSV))
	}))
	defer srv.Close()

	f, err := Load(context.Background(), srv.URL+"/dataset.csv", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Len())
	assert.True(t, f.Has(common.ColDistrict))

	_, err = Load(context.Background(), srv.URL+"/missing.csv", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
