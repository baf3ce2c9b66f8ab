// Package rollup implements the weighted progress rollup engine shared by the
// Project/Phase and Unit/WorkItem hierarchies: aggregate computation,
// milestone crossing detection, and completion date projection. All functions
// are pure; persistence and side effects belong to the service layer.
package rollup

import "math"

// Item is the neutral view of a weighted item consumed by the calculator.
// Weight and Progress are percentages in [0,100].
type Item struct {
	Weight    float64
	Progress  float64
	Cancelled bool
}

// Round2 rounds half-up to two decimal places. All percentages reported by
// the engine use this rule.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// Compute derives the aggregate completion percentage from weighted items:
// Σ(weight×progress)/100, rounded half-up to two decimals. Cancelled items
// are excluded from the sum; their weight is not redistributed — weight edits
// are deliberate operations so the calculation stays auditable. An empty item
// list yields 0.
func Compute(items []Item) float64 {
	var sum float64
	for _, it := range items {
		if it.Cancelled {
			continue
		}
		sum += it.Weight * it.Progress
	}
	return Round2(sum / 100)
}

// Contribution reports a single item's share of the aggregate,
// weight×progress/100, rounded independently. The sum of contributions may
// drift from Compute by at most 0.005×itemCount; the drift is accepted, not
// corrected.
func Contribution(it Item) float64 {
	if it.Cancelled {
		return 0
	}
	return Round2(it.Weight * it.Progress / 100)
}
