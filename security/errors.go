package security

import (
	"net/http"

	"github.com/goliatone/go-bulkedit/core"
	goerrors "github.com/goliatone/go-errors"
)

func missingKeyError(version int) *goerrors.Error {
	return goerrors.New("security: no encryption key configured for key version", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ErrorMissingKey).
		WithMetadata(map[string]any{"key_version": version})
}

func malformedBlobError(reason string) *goerrors.Error {
	return goerrors.New("security: malformed credential blob: "+reason, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorPreconditionFailed)
}

func keyWindowError(version int) *goerrors.Error {
	return goerrors.New("security: key version is outside its rotation window", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ErrorMissingKey).
		WithMetadata(map[string]any{"key_version": version})
}
