package rollup

import (
	"reflect"
	"testing"
)

func TestDetectCrossings(t *testing.T) {
	cases := []struct {
		name          string
		old, new      float64
		highest       int
		wantCrossed   []int
		wantWatermark int
	}{
		{
			name: "twenty to sixty emits 25 then 50",
			old:  20, new: 60, highest: 0,
			wantCrossed:   []int{25, 50},
			wantWatermark: 50,
		},
		{
			name: "exact threshold boundary fires",
			old:  24.99, new: 25, highest: 0,
			wantCrossed:   []int{25},
			wantWatermark: 25,
		},
		{
			name: "completion emits 100",
			old:  80, new: 100, highest: 75,
			wantCrossed:   []int{100},
			wantWatermark: 100,
		},
		{
			name: "single jump emits every threshold ascending",
			old:  0, new: 100, highest: 0,
			wantCrossed:   []int{25, 50, 75, 100},
			wantWatermark: 100,
		},
		{
			name: "watermark suppresses re-emission",
			old:  20, new: 60, highest: 50,
			wantCrossed:   nil,
			wantWatermark: 50,
		},
		{
			name: "regression emits nothing",
			old:  60, new: 30, highest: 50,
			wantCrossed:   nil,
			wantWatermark: 50,
		},
		{
			name: "no movement emits nothing",
			old:  50, new: 50, highest: 50,
			wantCrossed:   nil,
			wantWatermark: 50,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			crossed, watermark := Detect(tc.old, tc.new, tc.highest)
			if !reflect.DeepEqual(crossed, tc.wantCrossed) {
				t.Fatalf("crossed = %v, want %v", crossed, tc.wantCrossed)
			}
			if watermark != tc.wantWatermark {
				t.Fatalf("watermark = %d, want %d", watermark, tc.wantWatermark)
			}
		})
	}
}

func TestDetectWatermarkMonotone(t *testing.T) {
	// Replaying any sequence of updates, including regressions, must never
	// lower the watermark or emit a threshold at or below it.
	steps := []struct{ old, new float64 }{
		{0, 30}, {30, 10}, {10, 55}, {55, 55}, {55, 40}, {40, 80}, {80, 20},
	}
	highest := 0
	for _, s := range steps {
		crossed, next := Detect(s.old, s.new, highest)
		if next < highest {
			t.Fatalf("watermark decreased from %d to %d", highest, next)
		}
		for _, c := range crossed {
			if c <= highest {
				t.Fatalf("re-emitted threshold %d at watermark %d", c, highest)
			}
		}
		highest = next
	}
	if highest != 75 {
		t.Fatalf("final watermark = %d, want 75", highest)
	}
}

func TestDetectRepeatedCallIdempotent(t *testing.T) {
	crossed, watermark := Detect(20, 60, 0)
	if len(crossed) != 2 || watermark != 50 {
		t.Fatalf("first detect: crossed=%v watermark=%d", crossed, watermark)
	}
	// Re-running with the same inputs and the updated watermark is a no-op.
	crossed, watermark = Detect(20, 60, watermark)
	if crossed != nil || watermark != 50 {
		t.Fatalf("second detect: crossed=%v watermark=%d", crossed, watermark)
	}
}
