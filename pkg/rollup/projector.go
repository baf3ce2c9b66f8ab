package rollup

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Projection is the outcome of extrapolating a subject's completion date.
type Projection struct {
	// EstimatedEnd is the projected completion date. Equal to the planned
	// end when no extrapolation is possible. Zero when no planned end exists.
	EstimatedEnd time.Time
	// Delayed is true when the planned end has passed and the subject is not
	// in a terminal state.
	Delayed bool
	// DaysRemaining is plannedEnd − today in whole days; negative when the
	// planned end has passed.
	DaysRemaining int
}

// Project extrapolates a completion date from observed progress velocity.
// This is a linear projection: it assumes a constant historical rate and
// deliberately does not smooth or weight recent samples — a known limitation.
// When progress is zero or the start date is absent the planned end is
// returned unchanged. terminal suppresses the delay flag for subjects already
// COMPLETED or CANCELLED.
func Project(start *time.Time, today time.Time, progress float64, plannedEnd *time.Time, terminal bool) Projection {
	p := Projection{}
	if plannedEnd != nil {
		p.DaysRemaining = daysBetween(today, *plannedEnd)
		p.Delayed = p.DaysRemaining < 0 && !terminal
		p.EstimatedEnd = *plannedEnd
	}
	if progress <= 0 || start == nil {
		return p
	}
	elapsed := daysBetween(*start, today)
	if elapsed < 0 {
		elapsed = 0
	}
	estimatedTotal := float64(elapsed) * 100 / progress
	remaining := int(math.Floor(estimatedTotal - float64(elapsed) + 0.5))
	p.EstimatedEnd = today.AddDate(0, 0, remaining)
	return p
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / day)
}
