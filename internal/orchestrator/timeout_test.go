package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/waverunner/internal/config"
)

func TestTimeoutPolicy(t *testing.T) {
	policy := TimeoutPolicyFromConfig(config.DefaultConfig().Timeout)

	tests := []struct {
		name     string
		policy   TimeoutPolicy
		estimate time.Duration
		want     time.Duration
	}{
		{name: "estimate scaled plus overhead", policy: policy, estimate: 5 * time.Minute, want: 9*time.Minute + 30*time.Second},
		{name: "no estimate uses default", policy: policy, want: 10 * time.Minute},
		{name: "small estimate raised to minimum", policy: policy, estimate: time.Minute, want: 5 * time.Minute},
		{name: "large estimate capped", policy: policy, estimate: 2 * time.Hour, want: 30 * time.Minute},
		{
			name:     "rounded to the configured step",
			policy:   TimeoutPolicy{Minimum: time.Minute, Default: time.Minute, Maximum: time.Hour, Multiplier: 1.5, Overhead: 2 * time.Minute, RoundTo: time.Minute},
			estimate: 5 * time.Minute,
			want:     10 * time.Minute,
		},
		{
			name:     "uncapped without maximum",
			policy:   TimeoutPolicy{Default: time.Minute, Multiplier: 2},
			estimate: time.Hour,
			want:     2 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.For(tt.estimate))
		})
	}
}
