package regime

import (
	"fmt"
	"sort"
	"time"

	"github.com/apershukov/allocator/pkg/models"
)

// Frame holds daily series aligned to a shared, sorted date index. Columns
// are trimmed to the common date range of all inputs and forward-filled
// across gaps, so every cell carries a value.
type Frame struct {
	Dates   []time.Time
	columns map[string][]float64
}

// NewFrame aligns the given bar series. The common range runs from the
// latest first-bar date to the earliest last-bar date; a series that does
// not overlap the others is an error.
func NewFrame(series map[string][]models.Bar) (*Frame, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no input series")
	}

	var commonStart, commonEnd time.Time
	for name, bars := range series {
		if len(bars) == 0 {
			return nil, fmt.Errorf("series %s is empty", name)
		}
		first, last := bars[0].Date, bars[len(bars)-1].Date
		if commonStart.IsZero() || first.After(commonStart) {
			commonStart = first
		}
		if commonEnd.IsZero() || last.Before(commonEnd) {
			commonEnd = last
		}
	}
	if commonEnd.Before(commonStart) {
		return nil, fmt.Errorf("series do not overlap: common range %s..%s",
			commonStart.Format("2006-01-02"), commonEnd.Format("2006-01-02"))
	}

	// Union of trading dates inside the common range.
	seen := make(map[time.Time]struct{})
	for _, bars := range series {
		for _, b := range bars {
			d := b.Date.Truncate(24 * time.Hour)
			if d.Before(commonStart) || d.After(commonEnd) {
				continue
			}
			seen[d] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	f := &Frame{Dates: dates, columns: make(map[string][]float64, len(series))}
	for name, bars := range series {
		col := make([]float64, len(dates))
		idx := 0
		last := bars[0].CloseF()
		for i, d := range dates {
			for idx < len(bars) && !bars[idx].Date.Truncate(24*time.Hour).After(d) {
				last = bars[idx].CloseF()
				idx++
			}
			col[i] = last
		}
		f.columns[name] = col
	}
	return f, nil
}

// Column returns the aligned values for a series name.
func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.columns[name]
	return col, ok
}

// Len returns the number of aligned dates.
func (f *Frame) Len() int {
	return len(f.Dates)
}

// LastDate returns the final date of the index.
func (f *Frame) LastDate() time.Time {
	if len(f.Dates) == 0 {
		return time.Time{}
	}
	return f.Dates[len(f.Dates)-1]
}
