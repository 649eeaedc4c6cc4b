package guard

import (
	"fmt"
	"time"
)

// TimeWindow rejects every request outside the local-time hours [start, end).
type TimeWindow struct {
	start, end int
	loc        *time.Location
	now        func() time.Time
	message    string
}

// NewTimeWindow creates the stage. A nil location means time.Local.
func NewTimeWindow(startHour, endHour int, loc *time.Location) *TimeWindow {
	if loc == nil {
		loc = time.Local
	}
	return &TimeWindow{
		start:   startHour,
		end:     endHour,
		loc:     loc,
		now:     time.Now,
		message: fmt.Sprintf("Access to chat is restricted at this time (allowed %02d:00–%02d:00).", startHour, endHour),
	}
}

// Name implements Stage.
func (w *TimeWindow) Name() string { return "time_window" }

// Allowed reports whether t falls inside the window.
func (w *TimeWindow) Allowed(t time.Time) bool {
	hour := t.In(w.loc).Hour()
	return w.start <= hour && hour < w.end
}

// Check implements Stage.
func (w *TimeWindow) Check(*Request) *Rejection {
	if w.Allowed(w.now()) {
		return nil
	}
	return forbidden(w.message, false)
}
