package guard

import (
	"fmt"
	"time"

	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/interview/stage"
)

// Level is advisory transition urgency surfaced to the turn producer.
type Level int

const (
	Low Level = iota
	Medium
	High
	Critical
)

// String returns the wire name of the level.
func (l Level) String() string {
	switch l {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (l *Level) UnmarshalText(b []byte) error {
	switch string(b) {
	case "LOW":
		*l = Low
	case "MEDIUM":
		*l = Medium
	case "HIGH":
		*l = High
	case "CRITICAL":
		*l = Critical
	default:
		return fmt.Errorf("guard: unknown urgency %q", b)
	}
	return nil
}

// Urgency thresholds on the remaining time fraction.
const (
	criticalFraction = 0.10
	highFraction     = 0.25
	mediumFraction   = 0.50

	// deepAnswer is the depth score from which a met minimum is enough to
	// recommend moving on.
	deepAnswer = 4
)

// Urgency grades how strongly the turn producer should move on. It never
// blocks anything.
func Urgency(st *interview.State, stg stage.Stage, now time.Time) Level {
	frac := Time(st, stg, now).RemainingFraction
	switch {
	case frac <= criticalFraction:
		return Critical
	case frac <= highFraction:
		return High
	case st.LastDepthScore >= deepAnswer && MinimumMet(st, stg):
		return High
	case frac <= mediumFraction:
		return Medium
	default:
		return Low
	}
}
