package api

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/LeventeLantos/automatic-calling/internal/service"
	"github.com/LeventeLantos/automatic-calling/internal/session"
)

const (
	TextCodeBadInput          = "DISPATCH_BAD_INPUT"
	TextCodeSessionNotFound   = "DISPATCH_SESSION_NOT_FOUND"
	TextCodePersistenceFailed = "DISPATCH_PERSISTENCE_FAILED"
	TextCodeCallFailed        = "DISPATCH_CALL_FAILED"
	TextCodeInputInvalid      = "DISPATCH_INPUT_INVALID"
	TextCodeFeatureDisabled   = "DISPATCH_FEATURE_DISABLED"
	TextCodeInternal          = "DISPATCH_INTERNAL_ERROR"
)

func validationError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// inputError reports a touch-tone payload without the expected digit
// structure. The provider treats it as a server fault.
func inputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextCodeInputInvalid)
}

func notFoundError(message string) error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(TextCodeSessionNotFound)
}

func disabledError(message string) error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusNotFound).
		WithTextCode(TextCodeFeatureDisabled)
}

// toHTTPError maps core errors onto go-errors envelopes.
func toHTTPError(err error) *goerrors.Error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Code == 0 {
			rich.Code = http.StatusInternalServerError
		}
		return rich
	}

	var perr *session.PersistenceError
	if errors.As(err, &perr) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, err.Error()).
			WithCode(http.StatusInternalServerError).
			WithTextCode(TextCodePersistenceFailed)
	}

	var derr *service.DispatchError
	if errors.As(err, &derr) {
		return goerrors.Wrap(err, goerrors.CategoryExternal, err.Error()).
			WithCode(http.StatusInternalServerError).
			WithTextCode(TextCodeCallFailed)
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, err.Error()).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextCodeInternal)
}
