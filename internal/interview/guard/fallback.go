package guard

import (
	"fmt"
	"time"

	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/interview/stage"
)

// Mode selects what the fallback deadline is measured from.
type Mode string

const (
	// Absolute measures elapsed time since the stage was entered.
	Absolute Mode = "absolute"

	// Inactivity measures time since the last recorded activity, with an
	// absolute ceiling on total stage time.
	Inactivity Mode = "inactivity"
)

// ParseMode converts a config string into a [Mode]. The empty string maps
// to [Inactivity].
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Inactivity:
		return Inactivity, nil
	case Absolute:
		return Absolute, nil
	default:
		return "", fmt.Errorf("guard: unknown fallback mode %q", s)
	}
}

// Policy configures [ShouldForceTransition].
type Policy struct {
	Mode Mode

	// CeilingFactor scales a stage's time limit into the absolute ceiling
	// used in [Inactivity] mode. Values <= 1 default to 2.
	CeilingFactor float64
}

// Ceiling returns the absolute maximum stage time under p.
func (p Policy) Ceiling(stg stage.Stage) time.Duration {
	f := p.CeilingFactor
	if f <= 1 {
		f = 2
	}
	return time.Duration(float64(stg.TimeLimit) * f)
}

// ShouldForceTransition reports whether the stage deadline has passed. It
// ignores question counts and answer quality entirely.
func ShouldForceTransition(st *interview.State, stg stage.Stage, now time.Time, p Policy) bool {
	if stg.TimeLimit <= 0 {
		return false
	}
	elapsed := st.Elapsed(now)
	if p.Mode == Absolute {
		return elapsed >= stg.TimeLimit
	}
	return st.Inactive(now) >= stg.TimeLimit || elapsed >= p.Ceiling(stg)
}
