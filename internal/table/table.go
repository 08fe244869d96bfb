// Package table provides the CSV-backed tabular frame shared by the
// cleaning, feature, training and prediction stages.
//
// Cells are kept as strings exactly as read; numeric access goes through
// Float, which maps empty or unparseable cells to NaN ("undefined").
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"healthcast/internal/fsutil"
)

// Frame is an in-memory table with a header row.
type Frame struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// MissingColumnsError names every required column absent from a frame.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// New creates an empty frame with the given header.
func New(header []string) *Frame {
	f := &Frame{Header: append([]string(nil), header...)}
	f.reindex()
	return f
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.Header))
	for i, col := range f.Header {
		if _, dup := f.index[col]; !dup {
			f.index[col] = i
		}
	}
}

// Len returns the number of data rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Index returns the position of col, or -1.
func (f *Frame) Index(col string) int {
	if i, ok := f.index[col]; ok {
		return i
	}
	return -1
}

// Has reports whether col is present.
func (f *Frame) Has(col string) bool { return f.Index(col) >= 0 }

// Cell returns the raw value at (row, col), or "" if col is absent.
func (f *Frame) Cell(row int, col string) string {
	i := f.Index(col)
	if i < 0 {
		return ""
	}
	return f.Rows[row][i]
}

// Float returns the numeric value at (row, col); NaN when undefined.
func (f *Frame) Float(row int, col string) float64 {
	v, ok := ParseFloat(f.Cell(row, col))
	if !ok {
		return math.NaN()
	}
	return v
}

// Column returns a copy of the values of col, or nil if absent.
func (f *Frame) Column(col string) []string {
	i := f.Index(col)
	if i < 0 {
		return nil
	}
	out := make([]string, len(f.Rows))
	for r, row := range f.Rows {
		out[r] = row[i]
	}
	return out
}

// Append adds a row, padding or truncating it to the header width.
func (f *Frame) Append(row []string) {
	f.Rows = append(f.Rows, fit(row, len(f.Header)))
}

// AppendColumn adds a column at the end, or replaces it if it exists.
func (f *Frame) AppendColumn(name string, values []string) error {
	if len(values) != len(f.Rows) {
		return fmt.Errorf("column %s has %d values for %d rows", name, len(values), len(f.Rows))
	}
	if i := f.Index(name); i >= 0 {
		for r := range f.Rows {
			f.Rows[r][i] = values[r]
		}
		return nil
	}
	f.Header = append(f.Header, name)
	f.index[name] = len(f.Header) - 1
	for r := range f.Rows {
		f.Rows[r] = append(f.Rows[r], values[r])
	}
	return nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	c := New(f.Header)
	c.Rows = make([][]string, len(f.Rows))
	for i, row := range f.Rows {
		c.Rows[i] = append([]string(nil), row...)
	}
	return c
}

// RequireColumns fails with a *MissingColumnsError naming every absent column.
func RequireColumns(f *Frame, cols ...string) error {
	var missing []string
	for _, col := range cols {
		if !f.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	return nil
}

// Read loads a CSV file. A missing file yields an error wrapping
// fs.ErrNotExist that names the path.
func Read(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	defer file.Close()

	f, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse table %s: %w", path, err)
	}
	return f, nil
}

// Parse reads CSV content with a header row.
func Parse(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty table: no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	f := New(header)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", f.Len()+2, err)
		}
		f.Append(record)
	}
	return f, nil
}

// Write stores the frame as CSV, atomically replacing path.
func Write(path string, f *Frame) error {
	return fsutil.WriteAtomic(path, func(w io.Writer) error {
		return Encode(w, f)
	})
}

// Encode writes the frame as CSV.
func Encode(w io.Writer, f *Frame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Header); err != nil {
		return err
	}
	for _, row := range f.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ParseFloat parses a numeric cell. Empty and NaN-like cells are undefined.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FormatFloat renders a value deterministically; NaN becomes an empty cell.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}
