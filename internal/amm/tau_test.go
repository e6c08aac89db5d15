package amm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTau(t *testing.T) {
	tests := []struct {
		name     string
		timeLeft int64
		want     float64
	}{
		{name: "expired", timeLeft: 0, want: 0},
		{name: "negative clamps to zero", timeLeft: -30, want: 0},
		{name: "half window", timeLeft: 30, want: 0.00005},
		{name: "full window", timeLeft: 60, want: 0.0001},
		{name: "ten minutes", timeLeft: 600, want: 0.001},
		{name: "four hours", timeLeft: 14400, want: 0.024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Tau(tt.timeLeft), 1e-12)
		})
	}
}

func TestTauMonotonic(t *testing.T) {
	prev := Tau(0)
	for _, secs := range []int64{1, 15, 60, 300, 1800, 3600, 14400} {
		cur := Tau(secs)
		assert.Greater(t, cur, prev, "tau must strictly grow with remaining time at %ds", secs)
		prev = cur
	}
}
