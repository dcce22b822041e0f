// Package indicators computes technical indicator columns over daily bar
// series. Every function returns a slice index-aligned with its input:
// value[i] belongs to bar[i], and positions where the indicator is not yet
// warm hold NaN. Callers can therefore mix columns freely without
// re-aligning anything.
package indicators

import (
	"math"

	"github.com/aristath/compass/internal/domain"
)

// Series couples a symbol's bars with named indicator columns.
type Series struct {
	Symbol  string
	Bars    []domain.Bar
	Columns map[string][]float64
}

// NewSeries wraps bars in a Series with no columns computed yet.
func NewSeries(symbol string, bars []domain.Bar) *Series {
	return &Series{
		Symbol:  symbol,
		Bars:    bars,
		Columns: make(map[string][]float64),
	}
}

// Len returns the number of bars.
func (s *Series) Len() int {
	return len(s.Bars)
}

// Opens returns the open column.
func (s *Series) Opens() []float64 { return s.extract(func(b domain.Bar) float64 { return b.Open }) }

// Highs returns the high column.
func (s *Series) Highs() []float64 { return s.extract(func(b domain.Bar) float64 { return b.High }) }

// Lows returns the low column.
func (s *Series) Lows() []float64 { return s.extract(func(b domain.Bar) float64 { return b.Low }) }

// Closes returns the close column.
func (s *Series) Closes() []float64 { return s.extract(func(b domain.Bar) float64 { return b.Close }) }

// Volumes returns the volume column.
func (s *Series) Volumes() []float64 {
	return s.extract(func(b domain.Bar) float64 { return b.Volume })
}

// Set stores a named column. The column must have the same length as Bars.
func (s *Series) Set(name string, column []float64) {
	s.Columns[name] = column
}

// Column returns a named column, or nil when absent.
func (s *Series) Column(name string) []float64 {
	return s.Columns[name]
}

// Last returns the latest value of a named column. Returns NaN when the
// column is absent or empty.
func (s *Series) Last(name string) float64 {
	col := s.Columns[name]
	if len(col) == 0 {
		return math.NaN()
	}
	return col[len(col)-1]
}

// LastBar returns the most recent bar. Callers must check Len first.
func (s *Series) LastBar() domain.Bar {
	return s.Bars[len(s.Bars)-1]
}

func (s *Series) extract(get func(domain.Bar) float64) []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = get(b)
	}
	return out
}

// nanSlice returns a slice of n NaNs.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Coalesce returns v unless it is NaN, in which case it returns fallback.
func Coalesce(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return v
}
