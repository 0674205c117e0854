package series

// Series is a lazily-populated scalar series aligned to a TimeSeries. It
// wraps indicator output produced elsewhere; values before firstValid are
// meaningless (indicator warm-up).
type Series struct {
	Name string

	ts         *TimeSeries
	values     []float64
	firstValid int
	populated  bool
}

// NewSeries binds an empty series to a timeframe.
func NewSeries(name string, ts *TimeSeries) *Series {
	return &Series{Name: name, ts: ts}
}

// Populate installs the indicator values. firstValid is the first index with
// a numerically valid value.
func (s *Series) Populate(values []float64, firstValid int) {
	s.values = values
	s.firstValid = firstValid
	s.populated = true
}

// TimeSeries returns the timeframe this series is aligned to.
func (s *Series) TimeSeries() *TimeSeries { return s.ts }

// TimePeriodMet reports whether the cursor has reached valid values.
func (s *Series) TimePeriodMet() bool {
	return s.populated && s.ts.Cursor() >= s.firstValid
}

// Current returns the value under the bound timeframe's cursor.
func (s *Series) Current() float64 { return s.values[s.ts.Cursor()] }

// At returns the value at index.
func (s *Series) At(index int) float64 { return s.values[index] }

// Len returns the number of valid values.
func (s *Series) Len() int { return len(s.values) - s.firstValid }
