package thumbnails

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScheduleEvenDistribution(t *testing.T) {
	cases := []struct {
		n        int
		duration float64
		want     []float64
	}{
		{3, 100, []float64{25, 50, 75}},
		{1, 100, []float64{50}},
		{4, 100, []float64{20, 40, 60, 80}},
		{3, 90, []float64{22.5, 45, 67.5}},
	}
	for _, tc := range cases {
		got := Schedule(tc.n, tc.duration)
		if len(got) != len(tc.want) {
			t.Fatalf("Schedule(%d, %v) returned %d timestamps, expected %d", tc.n, tc.duration, len(got), len(tc.want))
		}
		for i := range got {
			if !almostEqual(got[i], tc.want[i]) {
				t.Errorf("Schedule(%d, %v)[%d] = %v, expected %v", tc.n, tc.duration, i, got[i], tc.want[i])
			}
		}
	}
}

func TestScheduleDefaultsCount(t *testing.T) {
	got := Schedule(0, 100)
	if len(got) != DefaultCount {
		t.Fatalf("expected %d timestamps, got %d", DefaultCount, len(got))
	}
	if !almostEqual(got[1], 50) {
		t.Errorf("expected midpoint 50, got %v", got[1])
	}
}

func TestScheduleUnknownDuration(t *testing.T) {
	if got := Schedule(3, 0); got != nil {
		t.Fatalf("expected nil for zero duration, got %v", got)
	}
	if got := Schedule(3, -10); got != nil {
		t.Fatalf("expected nil for negative duration, got %v", got)
	}
}

func TestScheduleExcludesExtremes(t *testing.T) {
	got := Schedule(10, 60)
	for _, ts := range got {
		if ts <= 0 || ts >= 60 {
			t.Errorf("timestamp %v falls on an excluded extreme", ts)
		}
	}
}
