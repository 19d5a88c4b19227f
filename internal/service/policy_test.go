package service

import (
	"testing"
	"time"
)

func TestNextRetryBackoffLadder(t *testing.T) {
	cases := []struct {
		name        string
		attempts    int
		maxAttempts int
		terminal    bool
		delay       time.Duration
	}{
		{"first failure", 1, 3, false, 5 * time.Minute},
		{"second failure", 2, 3, false, 10 * time.Minute},
		{"third failure is terminal", 3, 3, true, 0},
		{"beyond max is terminal", 5, 3, true, 0},
		{"raised max keeps ladder", 3, 10, false, 15 * time.Minute},
		{"ladder caps at sixty minutes", 13, 20, false, 60 * time.Minute},
		{"zero max falls back to default", 3, 0, true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := NextRetry(tc.attempts, tc.maxAttempts)
			if outcome.Terminal != tc.terminal {
				t.Fatalf("attempts=%d max=%d: terminal = %v, want %v", tc.attempts, tc.maxAttempts, outcome.Terminal, tc.terminal)
			}
			if !tc.terminal && outcome.Delay != tc.delay {
				t.Fatalf("attempts=%d max=%d: delay = %v, want %v", tc.attempts, tc.maxAttempts, outcome.Delay, tc.delay)
			}
		})
	}
}
