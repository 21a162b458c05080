package slots

import (
	"time"

	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
)

// Busy is one occupied interval on a day. Duration zero means the record
// predates duration tracking and is treated as one grid step long.
type Busy struct {
	Start    time.Time
	Duration time.Duration
}

// BusyFromAppointments extracts the occupied intervals of the active
// appointments in appts; non-active statuses do not block.
func BusyFromAppointments(appts []model.Appointment, step time.Duration) []Busy {
	var busy []Busy
	for _, a := range appts {
		if !model.IsActiveStatus(a.Status) {
			continue
		}
		d := time.Duration(a.DurationMinutes) * time.Minute
		if d <= 0 {
			d = step
		}
		busy = append(busy, Busy{Start: a.StartAt, Duration: d})
	}
	return busy
}

// FilterFree returns the candidates whose [start, start+duration) interval
// overlaps none of the busy intervals. Linear scan per candidate; daily
// appointment counts are small, and the contract leaves room to swap in an
// interval index without callers noticing.
func FilterFree(candidates []time.Time, duration time.Duration, busy []Busy) []time.Time {
	free := make([]time.Time, 0, len(candidates))
	for _, start := range candidates {
		if !Overlaps(start, duration, busy) {
			free = append(free, start)
		}
	}
	return free
}

// Overlaps reports whether [start, start+duration) intersects any busy
// interval. Half-open intervals: [a,b) overlaps [c,d) iff a < d && c < b.
func Overlaps(start time.Time, duration time.Duration, busy []Busy) bool {
	end := start.Add(duration)
	for _, b := range busy {
		if start.Before(b.Start.Add(b.Duration)) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
