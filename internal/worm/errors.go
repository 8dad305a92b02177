package worm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors tag failures for downstream classification with errors.Is.
var (
	// ErrConfig marks malformed configuration: bad durations, unknown
	// notification kinds, an empty lock spec. Fatal at startup, never
	// raised at runtime.
	ErrConfig = errors.New("configuration error")
	// ErrConnection marks an unreachable or unauthenticated cluster
	// stream; retried with backoff without terminating the daemon.
	ErrConnection = errors.New("connection error")
	// ErrTransient marks a lock call failure worth retrying: timeout,
	// rate limit, connection reset.
	ErrTransient = errors.New("transient lock error")
	// ErrPermanent marks a lock call failure that retrying cannot fix:
	// privilege denial, non-regular-file target, malformed request.
	ErrPermanent = errors.New("permanent lock error")
	// ErrClassification marks an unparsable lock-query response. Always
	// reported as INVALID_RESPONSE, never conflated with an unlocked file.
	ErrClassification = errors.New("classification error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation string, err error) error {
	detail := buildDetail(component, operation)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation string) string {
	parts := make([]string, 0, 2)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if len(parts) == 0 {
		return "lock failure"
	}
	return strings.Join(parts, ": ")
}

// Retryable reports whether an error should be retried with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConnection)
}
