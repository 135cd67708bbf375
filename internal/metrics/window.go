package metrics

import (
	"fmt"
	"time"
)

// MinWindowHours is the smallest window that gets a KPI; smaller ones are skipped.
const MinWindowHours = 100

// Window selects hours by calendar month. No months means every hour.
type Window struct {
	Name   string       `json:"name"`
	Months []time.Month `json:"months,omitempty"`
}

var (
	FullYear  = Window{Name: "full_year"}
	HighSolar = Window{Name: "high_solar", Months: []time.Month{time.May, time.June, time.July, time.August}}
	HighWind  = Window{Name: "high_wind", Months: []time.Month{time.November, time.December, time.January, time.February}}
	Shoulder  = Window{Name: "shoulder", Months: []time.Month{time.March, time.April, time.September, time.October}}
)

// Windows returns the standard reporting windows, full year first.
func Windows() []Window {
	return []Window{FullYear, HighSolar, HighWind, Shoulder}
}

func ParseWindow(name string) (Window, error) {
	for _, w := range Windows() {
		if w.Name == name {
			return w, nil
		}
	}
	return Window{}, fmt.Errorf("unknown window %q", name)
}

func (w Window) Contains(t time.Time) bool {
	if len(w.Months) == 0 {
		return true
	}
	m := t.UTC().Month()
	for _, wm := range w.Months {
		if wm == m {
			return true
		}
	}
	return false
}

// Indices returns the positions of times inside the window.
func (w Window) Indices(times []time.Time) []int {
	out := make([]int, 0, len(times))
	for i, t := range times {
		if w.Contains(t) {
			out = append(out, i)
		}
	}
	return out
}

func pick(xs []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}

func distinctDays(times []time.Time, idx []int) int {
	seen := make(map[time.Time]struct{})
	for _, i := range idx {
		seen[times[i].UTC().Truncate(24*time.Hour)] = struct{}{}
	}
	return len(seen)
}
