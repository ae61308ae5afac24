package player

import "testing"

func TestMergeRanges(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if got := MergeRanges(nil); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})

	t.Run("sorts_and_coalesces", func(t *testing.T) {
		in := []TimeRange{
			{StartSec: 4, EndSec: 6},
			{StartSec: 0, EndSec: 2},
			{StartSec: 1.5, EndSec: 4.02}, // overlaps first, stitches to second
		}
		got := MergeRanges(in)
		if len(got) != 1 || got[0].StartSec != 0 || got[0].EndSec != 6 {
			t.Errorf("expected single range [0,6], got %v", got)
		}
	})

	t.Run("keeps_real_gaps", func(t *testing.T) {
		in := []TimeRange{
			{StartSec: 0, EndSec: 1},
			{StartSec: 2, EndSec: 3},
		}
		got := MergeRanges(in)
		if len(got) != 2 {
			t.Errorf("expected 2 ranges across a real gap, got %v", got)
		}
	})
}

func TestCoverageFrom(t *testing.T) {
	ranges := []TimeRange{
		{StartSec: 10, EndSec: 14},
		{StartSec: 20, EndSec: 22},
	}

	cases := []struct {
		name string
		from float64
		want float64
	}{
		{"at_range_start", 10, 4},
		{"mid_range", 12, 2},
		{"inside_gap", 15, 0},
		{"second_range", 20, 2},
		{"before_everything", 5, 0},
		{"just_under_epsilon_before_start", 9.96, 4.04},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CoverageFrom(ranges, tc.from)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CoverageFrom(%v): got %v, want %v", tc.from, got, tc.want)
			}
		})
	}
}
