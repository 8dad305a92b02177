// Package retention parses relative retention specifiers into absolute
// WORM retention deadlines.
package retention

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"lockwatch/internal/worm"
)

// Unit is a supported retention duration unit.
type Unit byte

const (
	// UnitDays extends retention by calendar days.
	UnitDays Unit = 'd'
	// UnitYears extends retention by calendar years.
	UnitYears Unit = 'y'
)

// Spec is a parsed relative retention duration, e.g. "2d" or "7y".
// The zero value means no retention requested.
type Spec struct {
	magnitude int
	unit      Unit
}

// Parse validates a retention specifier of the form <positive integer><unit>
// where unit is 'd' (days) or 'y' (years). Anything else fails with a
// configuration error.
func Parse(raw string) (Spec, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Spec{}, fmt.Errorf("%w: retention duration is empty", worm.ErrConfig)
	}

	unit := Unit(trimmed[len(trimmed)-1])
	switch unit {
	case UnitDays, UnitYears:
	default:
		return Spec{}, fmt.Errorf("%w: retention duration %q: unit must be 'd' or 'y'", worm.ErrConfig, raw)
	}

	digits := trimmed[:len(trimmed)-1]
	magnitude, err := strconv.Atoi(digits)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: retention duration %q: %v", worm.ErrConfig, raw, err)
	}
	if magnitude <= 0 {
		return Spec{}, fmt.Errorf("%w: retention duration %q: magnitude must be positive", worm.ErrConfig, raw)
	}
	// Reject forms like "+1d" or "01d" that Atoi would otherwise admit
	// ambiguously; the grammar is plain decimal digits only.
	if digits != strconv.Itoa(magnitude) {
		return Spec{}, fmt.Errorf("%w: retention duration %q: malformed magnitude", worm.ErrConfig, raw)
	}

	return Spec{magnitude: magnitude, unit: unit}, nil
}

// IsZero reports whether no retention was requested.
func (s Spec) IsZero() bool {
	return s.magnitude == 0
}

// Deadline computes the absolute retention deadline for a lock applied at
// now. The deadline is recomputed on every call so files triggered at
// different times receive deadlines relative to their own trigger time.
func (s Spec) Deadline(now time.Time) time.Time {
	base := now.UTC().Truncate(time.Second)
	switch s.unit {
	case UnitYears:
		return base.AddDate(s.magnitude, 0, 0)
	default:
		return base.AddDate(0, 0, s.magnitude)
	}
}

// String renders the spec in its configuration form.
func (s Spec) String() string {
	if s.IsZero() {
		return ""
	}
	return strconv.Itoa(s.magnitude) + string(s.unit)
}
