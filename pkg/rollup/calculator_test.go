package rollup

import "testing"

func TestComputeWeightedAverage(t *testing.T) {
	cases := []struct {
		name  string
		items []Item
		want  float64
	}{
		{
			name: "thirty forty thirty",
			items: []Item{
				{Weight: 30, Progress: 100},
				{Weight: 40, Progress: 50},
				{Weight: 30, Progress: 0},
			},
			want: 50,
		},
		{
			name:  "empty list",
			items: nil,
			want:  0,
		},
		{
			name: "single complete item",
			items: []Item{
				{Weight: 100, Progress: 100},
			},
			want: 100,
		},
		{
			name: "cancelled weight is not redistributed",
			items: []Item{
				{Weight: 30, Progress: 0, Cancelled: true},
				{Weight: 40, Progress: 100},
				{Weight: 30, Progress: 100},
			},
			want: 70,
		},
		{
			name: "rounding half up",
			items: []Item{
				{Weight: 33.33, Progress: 50},
				{Weight: 33.33, Progress: 50},
			},
			want: 33.33,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Compute(tc.items)
			if got != tc.want {
				t.Fatalf("Compute = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestComputeBoundedOutput(t *testing.T) {
	// Any weight assignment summing to 100 with per-item progress in [0,100]
	// must keep the aggregate inside [0,100].
	assignments := [][]Item{
		{{Weight: 100, Progress: 100}},
		{{Weight: 50, Progress: 100}, {Weight: 50, Progress: 100}},
		{{Weight: 99.99, Progress: 100}, {Weight: 0.01, Progress: 100}},
		{{Weight: 25, Progress: 0}, {Weight: 25, Progress: 33.3}, {Weight: 25, Progress: 66.6}, {Weight: 25, Progress: 100}},
		{{Weight: 10, Progress: 0}, {Weight: 90, Progress: 0}},
	}
	for _, items := range assignments {
		got := Compute(items)
		if got < 0 || got > 100 {
			t.Fatalf("Compute(%v) = %v, outside [0,100]", items, got)
		}
	}
}

func TestContribution(t *testing.T) {
	if got := Contribution(Item{Weight: 40, Progress: 50}); got != 20 {
		t.Fatalf("Contribution = %v, want 20", got)
	}
	if got := Contribution(Item{Weight: 30, Progress: 100, Cancelled: true}); got != 0 {
		t.Fatalf("cancelled Contribution = %v, want 0", got)
	}
	// Independent rounding: 33.33 × 33.33 / 100 = 11.1088… rounds to 11.11.
	if got := Contribution(Item{Weight: 33.33, Progress: 33.33}); got != 11.11 {
		t.Fatalf("Contribution = %v, want 11.11", got)
	}
}

func TestRound2HalfUp(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0.005, 0.01},
		{0.004, 0},
		{1.006, 1.01},
		{50.004999, 50},
		{87.65432, 87.65},
		{0, 0},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Fatalf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
