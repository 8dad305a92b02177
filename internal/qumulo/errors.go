package qumulo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"lockwatch/internal/worm"
)

// StatusError reports a non-success HTTP response from the cluster.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: cluster returned %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

// classifyStatus tags a non-success response with the error taxonomy.
//
// 401 is handled by the caller via re-login before it reaches here; a 401
// that survives re-login means the credentials themselves are bad.
func classifyStatus(op string, statusCode int, body string) error {
	statusErr := &StatusError{Op: op, StatusCode: statusCode, Body: body}
	switch {
	case statusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", worm.ErrConnection, statusErr)
	case statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", worm.ErrPermanent, statusErr)
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests,
		statusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", worm.ErrTransient, statusErr)
	case statusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: %w", worm.ErrPermanent, statusErr)
	default:
		return fmt.Errorf("%w: %w", worm.ErrTransient, statusErr)
	}
}

// classifyTransport tags a transport-level failure: timeouts and resets are
// transient, everything else means the cluster is unreachable.
func classifyTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %s: %w", worm.ErrTransient, op, err)
	}
	return fmt.Errorf("%w: %s: %w", worm.ErrConnection, op, err)
}
