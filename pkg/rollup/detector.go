package rollup

// Thresholds are the milestone percentages evaluated in ascending order.
var Thresholds = []int{25, 50, 75, 100}

// Detect decides which milestone thresholds were first crossed by moving the
// aggregate from oldOverall to newOverall, given the highest threshold already
// emitted. A threshold T fires when oldOverall < T ≤ newOverall and
// T > highestEmitted. The returned watermark is never lower than the input:
// progress regression emits nothing and past milestones remain permanent
// facts, so re-running detection with the same or a lower newOverall is a
// no-op.
func Detect(oldOverall, newOverall float64, highestEmitted int) (crossed []int, watermark int) {
	watermark = highestEmitted
	for _, t := range Thresholds {
		if t <= highestEmitted {
			continue
		}
		ft := float64(t)
		if oldOverall < ft && ft <= newOverall {
			crossed = append(crossed, t)
			watermark = t
		}
	}
	return crossed, watermark
}
