package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorMissingKey          = "BULK_MISSING_KEY"
	ErrorThrottleExceeded    = "BULK_THROTTLE_EXCEEDED"
	ErrorTransportFailure    = "BULK_TRANSPORT_FAILURE"
	ErrorItemValidation      = "BULK_ITEM_VALIDATION"
	ErrorPreconditionFailed  = "BULK_PRECONDITION_FAILED"
	ErrorRollbackUnsupported = "BULK_ROLLBACK_UNSUPPORTED"
	ErrorNotFound            = "BULK_NOT_FOUND"
	ErrorNotInstalled        = "BULK_NOT_INSTALLED"
	ErrorInternal            = "BULK_INTERNAL_ERROR"
)

var (
	ErrEmptyChanges     = errors.New("core: no changes")
	ErrMissingShop      = errors.New("core: shop is required")
	ErrNoFields         = errors.New("core: change has no fields to update")
	ErrNoRunRecorded    = errors.New("core: no change log")
	ErrAppNotInstalled  = errors.New("core: app not installed for shop")
	ErrMissingItemID    = errors.New("core: item id is required")
	ErrInvalidChunkSize = errors.New("core: chunk size must be positive")
)

func NewPreconditionError(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorPreconditionFailed)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func NewNotInstalledError(shop string) *goerrors.Error {
	return goerrors.New("App not installed for shop", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorNotInstalled).
		WithMetadata(map[string]any{"shop": shop})
}

func NewNotFoundError(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorNotFound)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func NewRollbackUnsupportedError(batchID string) *goerrors.Error {
	return goerrors.New("rollback is not implemented", goerrors.CategoryOperation).
		WithCode(http.StatusNotImplemented).
		WithTextCode(ErrorRollbackUnsupported).
		WithMetadata(map[string]any{"batch_id": batchID})
}

func IsMissingKey(err error) bool {
	return hasTextCode(err, ErrorMissingKey)
}

func IsPrecondition(err error) bool {
	return hasTextCode(err, ErrorPreconditionFailed)
}

func IsNotInstalled(err error) bool {
	return hasTextCode(err, ErrorNotInstalled)
}

func IsRollbackUnsupported(err error) bool {
	return hasTextCode(err, ErrorRollbackUnsupported)
}

func IsThrottleExceeded(err error) bool {
	return hasTextCode(err, ErrorThrottleExceeded)
}

func IsTransportFailure(err error) bool {
	return hasTextCode(err, ErrorTransportFailure)
}

// IsNotFound reports NotFound envelopes and the sentinel used by stores.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoRunRecorded) {
		return true
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.Category == goerrors.CategoryNotFound
	}
	return false
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(rich.TextCode), code)
}

// MapError converts any error into a bulkedit envelope with an HTTP status
// and text code set.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrEmptyChanges), errors.Is(err, ErrMissingShop), errors.Is(err, ErrNoFields):
		return newBulkError(err.Error(), goerrors.CategoryBadInput, ErrorPreconditionFailed)
	case errors.Is(err, ErrNoRunRecorded):
		return newBulkError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case errors.Is(err, ErrAppNotInstalled):
		return newBulkError(err.Error(), goerrors.CategoryAuth, ErrorNotInstalled)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newBulkError(err.Error(), goerrors.CategoryRateLimit, ErrorThrottleExceeded)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newBulkError(err.Error(), goerrors.CategoryBadInput, ErrorPreconditionFailed)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newBulkError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorPreconditionFailed
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorNotInstalled
	case goerrors.CategoryRateLimit:
		return ErrorThrottleExceeded
	case goerrors.CategoryExternal:
		return ErrorTransportFailure
	default:
		return ErrorInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
