package analysis

import (
	"sort"
)

type Analysis interface {
	Setup() error
	Execute() error
	GetResults() map[string][]float64
}

// Trajectory is the recorded output: one time column plus one column per
// meter, in registration order.
type Trajectory struct {
	Columns []string
	Time    []float64
	results map[string][]float64 // key: column name, value: result by time
}

func NewTrajectory(columns []string) *Trajectory {
	t := &Trajectory{
		Columns: append([]string(nil), columns...),
		results: make(map[string][]float64, len(columns)),
	}
	for _, c := range columns {
		t.results[c] = make([]float64, 0)
	}
	return t
}

// StoreTimeResult appends one row. row holds a value per column.
func (t *Trajectory) StoreTimeResult(time float64, row []float64) {
	// Ignore same time
	if n := len(t.Time); n > 0 && t.Time[n-1] == time {
		return
	}

	t.Time = append(t.Time, time)
	for i, name := range t.Columns {
		t.results[name] = append(t.results[name], row[i])
	}
}

func (t *Trajectory) Len() int { return len(t.Time) }

func (t *Trajectory) Column(name string) []float64 {
	return t.results[name]
}

// Row returns the values recorded at index i, in column order.
func (t *Trajectory) Row(i int) []float64 {
	row := make([]float64, len(t.Columns))
	for k, name := range t.Columns {
		row[k] = t.results[name][i]
	}
	return row
}

func (t *Trajectory) GetResults() map[string][]float64 {
	out := make(map[string][]float64, len(t.results)+1)
	out["TIME"] = t.Time
	for name, values := range t.results {
		out[name] = values
	}
	return out
}

// At returns the value of a column at the recorded time nearest to time.
func (t *Trajectory) At(name string, time float64) (float64, bool) {
	values, ok := t.results[name]
	if !ok || len(t.Time) == 0 {
		return 0, false
	}
	i := sort.SearchFloat64s(t.Time, time)
	if i == len(t.Time) {
		i--
	} else if i > 0 && time-t.Time[i-1] < t.Time[i]-time {
		i--
	}
	return values[i], true
}
