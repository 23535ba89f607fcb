package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-bulkedit/core"
	goerrors "github.com/goliatone/go-errors"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorPreconditionFailed
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.ErrorNotInstalled
	case goerrors.CategoryRateLimit:
		return core.ErrorThrottleExceeded
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return core.ErrorTransportFailure
	default:
		return core.ErrorInternal
	}
}

// CallError is the failure of one aggregate call, either after exhausting
// throttle retries or on a non-retryable fault. It unwraps to a go-errors
// envelope so callers can classify it by text code.
type CallError struct {
	Status     int
	UserErrors []core.UserError
	Attempts   int
	Throttled  bool
	envelope   *goerrors.Error
}

func (e *CallError) Error() string {
	if e == nil || e.envelope == nil {
		return "transport: call failed"
	}
	return e.envelope.Error()
}

func (e *CallError) Unwrap() error {
	if e == nil || e.envelope == nil {
		return nil
	}
	return e.envelope
}

func (e *CallError) Message() string {
	if e == nil || e.envelope == nil {
		return ""
	}
	return e.envelope.Message
}

func AsCallError(err error) (*CallError, bool) {
	var callErr *CallError
	if errors.As(err, &callErr) && callErr != nil {
		return callErr, true
	}
	return nil, false
}

func newThrottleExceededError(status int, attempts int, reason string) *CallError {
	if status == 0 {
		status = http.StatusTooManyRequests
	}
	message := fmt.Sprintf("transport: throttled after %d attempts", attempts)
	if reason = strings.TrimSpace(reason); reason != "" {
		message += ": " + reason
	}
	return &CallError{
		Status:    status,
		Attempts:  attempts,
		Throttled: true,
		envelope: transportError(message, goerrors.CategoryRateLimit, http.StatusTooManyRequests, map[string]any{
			"status":   status,
			"attempts": attempts,
		}),
	}
}

func newCallError(source error, status int, attempts int, message string, userErrors []core.UserError) *CallError {
	code := http.StatusBadGateway
	if status >= 400 && status != http.StatusTooManyRequests {
		code = status
	}
	metadata := map[string]any{"status": status, "attempts": attempts}
	if len(userErrors) > 0 {
		metadata["user_errors"] = len(userErrors)
	}
	var envelope *goerrors.Error
	if source != nil {
		envelope = transportWrapError(source, goerrors.CategoryExternal, message, code, metadata)
	} else {
		envelope = transportError(message, goerrors.CategoryExternal, code, metadata)
	}
	return &CallError{
		Status:     status,
		UserErrors: userErrors,
		Attempts:   attempts,
		envelope:   envelope,
	}
}

func joinUserErrors(userErrors []core.UserError) string {
	parts := make([]string, 0, len(userErrors))
	for _, userErr := range userErrors {
		if msg := strings.TrimSpace(userErr.String()); msg != "" {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "; ")
}
