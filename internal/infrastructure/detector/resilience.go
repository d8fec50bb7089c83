package detector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/infrastructure/resilience"
)

// classifyBackendError is the retry predicate: only connectivity failures
// (no response at all) and 5xx responses are retried. 4xx, timeouts and
// cancellation are terminal.
func classifyBackendError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if isTimeout(err) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

// finalize turns a terminal transport error into a domain error kind wrapping
// the normalized {error, details?, timestamp} report. It is the only exit
// path for failures leaving this package.
func (c *Client) finalize(ctx context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}

	now := time.Now().UTC()

	// A caller-initiated cancel wins over whatever state the attempt or a
	// pending backoff wait was in.
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return domain.WrapError(domain.ErrCancelled, operation, &domain.ErrorReport{
			Message:   domain.MsgCancelled,
			Timestamp: now,
		})
	}

	if isTimeout(err) {
		return domain.WrapError(domain.ErrTimeout, operation, &domain.ErrorReport{
			Message:   domain.MsgTimeout,
			Timestamp: now,
		})
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		message := statusErr.Message
		if message == "" {
			message = fmt.Sprintf("HTTP %d: %s", statusErr.StatusCode, http.StatusText(statusErr.StatusCode))
		}
		kind := domain.ErrRequestRejected
		if statusErr.StatusCode >= 500 {
			kind = domain.ErrBackend
		}
		return domain.WrapError(kind, operation, &domain.ErrorReport{
			Message:   message,
			Details:   statusErr.Details,
			Timestamp: now,
		})
	}

	if isConnectionRefused(err) {
		return domain.WrapError(domain.ErrConnectivity, operation, &domain.ErrorReport{
			Message:   domain.MsgConnectivity,
			Timestamp: now,
		})
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrConnectivity, operation, &domain.ErrorReport{
			Message:   err.Error(),
			Timestamp: now,
		})
	}

	return domain.WrapError(domain.ErrTemporary, operation, &domain.ErrorReport{
		Message:   err.Error(),
		Timestamp: now,
	})
}

// isTimeout distinguishes the per-attempt wall-clock limit from generic
// connectivity failures: a timeout is deliberately never retried.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isConnectionRefused covers the backend-down conditions that get the fixed
// actionable message: connection refused and host-not-found.
func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
