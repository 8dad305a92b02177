package locker

import (
	"fmt"

	"lockwatch/internal/retention"
	"lockwatch/internal/worm"
)

// LockSpec describes the lock the daemon enforces on every qualifying
// file. Derived once at startup and immutable afterwards.
type LockSpec struct {
	LegalHold bool
	Retention retention.Spec
}

// NewLockSpec validates that the configuration requests at least one lock
// dimension. retentionLiteral may be empty when only a legal hold is wanted.
func NewLockSpec(legalHold bool, retentionLiteral string) (LockSpec, error) {
	spec := LockSpec{LegalHold: legalHold}
	if retentionLiteral != "" {
		parsed, err := retention.Parse(retentionLiteral)
		if err != nil {
			return LockSpec{}, err
		}
		spec.Retention = parsed
	}
	if !spec.LegalHold && spec.Retention.IsZero() {
		return LockSpec{}, fmt.Errorf("%w: lock spec requires legal_hold, a retention duration, or both", worm.ErrConfig)
	}
	return spec, nil
}

// WantsRetention reports whether the spec carries a retention duration.
func (s LockSpec) WantsRetention() bool {
	return !s.Retention.IsZero()
}

func (s LockSpec) String() string {
	switch {
	case s.LegalHold && s.WantsRetention():
		return fmt.Sprintf("legal_hold+retention(%s)", s.Retention)
	case s.LegalHold:
		return "legal_hold"
	default:
		return fmt.Sprintf("retention(%s)", s.Retention)
	}
}
