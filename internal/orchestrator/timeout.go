package orchestrator

import (
	"time"

	"github.com/aristath/waverunner/internal/config"
)

// TimeoutPolicy derives the execution deadline of a task from its effort estimate.
type TimeoutPolicy struct {
	Minimum    time.Duration
	Default    time.Duration // Used when the task declares no estimate
	Maximum    time.Duration // Zero means uncapped
	Multiplier float64
	Overhead   time.Duration
	RoundTo    time.Duration // Zero disables rounding
}

// TimeoutPolicyFromConfig converts the configured timeout section.
func TimeoutPolicyFromConfig(c config.TimeoutConfig) TimeoutPolicy {
	return TimeoutPolicy{
		Minimum:    c.Minimum.Std(),
		Default:    c.Default.Std(),
		Maximum:    c.Maximum.Std(),
		Multiplier: c.Multiplier,
		Overhead:   c.Overhead.Std(),
		RoundTo:    c.RoundTo.Std(),
	}
}

// For returns max(Minimum, estimate*Multiplier+Overhead), or Default without an
// estimate, rounded to RoundTo and capped at Maximum.
func (p TimeoutPolicy) For(estimate time.Duration) time.Duration {
	d := p.Default
	if estimate > 0 {
		d = time.Duration(float64(estimate)*p.Multiplier) + p.Overhead
		if d < p.Minimum {
			d = p.Minimum
		}
	}
	if p.RoundTo > 0 {
		d = d.Round(p.RoundTo)
	}
	if p.Maximum > 0 && d > p.Maximum {
		d = p.Maximum
	}
	return d
}
