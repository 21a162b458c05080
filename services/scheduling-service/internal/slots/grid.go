package slots

import "time"

// Grid is the fixed daily booking grid: candidate starts run from Open to
// Close in Step increments. All times are wall-clock within one day.
type Grid struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	Step        time.Duration
}

func DefaultGrid() Grid {
	return Grid{OpenHour: 9, CloseHour: 17, Step: 30 * time.Minute}
}

// Candidates returns the ordered start times on the grid for the given day
// where a booking of length duration still ends at or before closing time.
// Pure function: same inputs always yield the same output.
func (g Grid) Candidates(day time.Time, duration time.Duration) []time.Time {
	if duration <= 0 || g.Step <= 0 {
		return nil
	}
	open := time.Date(day.Year(), day.Month(), day.Day(), g.OpenHour, g.OpenMinute, 0, 0, day.Location())
	closing := time.Date(day.Year(), day.Month(), day.Day(), g.CloseHour, g.CloseMinute, 0, 0, day.Location())
	if !closing.After(open) {
		return nil
	}

	var starts []time.Time
	for t := open; !t.Add(duration).After(closing); t = t.Add(g.Step) {
		starts = append(starts, t)
	}
	return starts
}

// Contains reports whether [start, start+duration) lies within the grid's
// open window on start's day.
func (g Grid) Contains(start time.Time, duration time.Duration) bool {
	open := time.Date(start.Year(), start.Month(), start.Day(), g.OpenHour, g.OpenMinute, 0, 0, start.Location())
	closing := time.Date(start.Year(), start.Month(), start.Day(), g.CloseHour, g.CloseMinute, 0, 0, start.Location())
	return !start.Before(open) && !start.Add(duration).After(closing)
}
