package utils

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestWithinWindow(t *testing.T) {
	cases := []struct {
		name  string
		now   time.Time
		start float64
		end   float64
		want  bool
	}{
		{"inside daytime window", at(12, 0), 8, 20, true},
		{"start is inclusive", at(8, 0), 8, 20, true},
		{"end is exclusive", at(20, 0), 8, 20, false},
		{"before daytime window", at(7, 59), 8, 20, false},
		{"overnight window late evening", at(22, 0), 20, 8, true},
		{"overnight window early morning", at(3, 30), 20, 8, true},
		{"overnight window midday", at(12, 0), 20, 8, false},
		{"overnight end exclusive", at(8, 0), 20, 8, false},
		{"equal bounds means all day", at(4, 15), 9, 9, true},
		{"fractional start", at(9, 45), 9.5, 17, true},
		{"before fractional start", at(9, 15), 9.5, 17, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WithinWindow(tc.now, tc.start, tc.end); got != tc.want {
				t.Fatalf("WithinWindow(%v, %v, %v) = %v, want %v", tc.now, tc.start, tc.end, got, tc.want)
			}
		})
	}
}
