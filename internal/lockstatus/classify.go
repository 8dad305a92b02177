// Package lockstatus maps raw lock-query results onto the closed set of
// outcome categories shared by the daemon's confirmation logging and the
// external verification tooling.
package lockstatus

import (
	"fmt"
	"time"

	"lockwatch/internal/qumulo"
)

// Category is a lock state classification. The numeric values are an
// external compatibility surface consumed by verification tooling and must
// not change.
type Category int

const (
	// BothSet: legal hold active and a valid retention deadline present.
	BothSet Category = 1
	// NoneSet: neither legal hold nor retention present.
	NoneSet Category = 2
	// LegalHoldOnly: legal hold active, no retention deadline.
	LegalHoldOnly Category = 3
	// RetentionOnly: retention deadline present, no legal hold.
	RetentionOnly Category = 4
	// InvalidResponse: the lock query response could not be interpreted.
	InvalidResponse Category = 255
)

var names = map[Category]string{
	BothSet:         "BOTH_SET",
	NoneSet:         "NONE_SET",
	LegalHoldOnly:   "LEGAL_HOLD_ONLY",
	RetentionOnly:   "RETENTION_ONLY",
	InvalidResponse: "INVALID_RESPONSE",
}

func (c Category) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Code returns the classification code exposed to external tooling.
func (c Category) Code() int { return int(c) }

// ParseCategory resolves a stored classification code back to a Category.
func ParseCategory(code int) (Category, bool) {
	c := Category(code)
	_, ok := names[c]
	return c, ok
}

// Classify is a total function over lock-query results. A retention
// timestamp that fails to parse as RFC3339 classifies as InvalidResponse,
// never as an unlocked file.
func Classify(res qumulo.LockResult) Category {
	retentionValid := false
	if res.RetentionPeriod != nil {
		if _, err := time.Parse(time.RFC3339, *res.RetentionPeriod); err != nil {
			return InvalidResponse
		}
		retentionValid = true
	}

	switch {
	case res.LegalHold && retentionValid:
		return BothSet
	case res.LegalHold:
		return LegalHoldOnly
	case retentionValid:
		return RetentionOnly
	default:
		return NoneSet
	}
}

// FromQuery classifies the full outcome of a lock query: when the query
// itself failed to produce an interpretable result, the classification is
// InvalidResponse regardless of the partial payload.
func FromQuery(res qumulo.LockResult, err error) Category {
	if err != nil {
		return InvalidResponse
	}
	return Classify(res)
}

// RetentionDeadline parses the retention timestamp out of a result. The
// boolean is false when no valid retention is present.
func RetentionDeadline(res qumulo.LockResult) (time.Time, bool) {
	if res.RetentionPeriod == nil {
		return time.Time{}, false
	}
	deadline, err := time.Parse(time.RFC3339, *res.RetentionPeriod)
	if err != nil {
		return time.Time{}, false
	}
	return deadline, true
}
