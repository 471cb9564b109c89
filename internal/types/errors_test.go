package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidPayload, http.StatusBadRequest},
		{ErrCodeAuthSignatureMissing, http.StatusUnauthorized},
		{ErrCodeAuthSignatureInvalid, http.StatusUnauthorized},
		{ErrCodePermissionAdmin, http.StatusForbidden},
		{ErrCodeNotFoundSubscription, http.StatusNotFound},
		{ErrCodeConflictUnsupportedProvider, http.StatusConflict},
		{ErrCodeUpstreamStripe, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("socket closed")
	err := NewAppError(ErrCodeInternalDB, "query failed", inner)

	if err.Error() != "internal_database_error: query failed" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
}

func TestAppError_ErrorsAsThroughWrapping(t *testing.T) {
	appErr := NewAppError(ErrCodeNotFoundSubscription, "subscription not found", nil)
	wrapped := fmt.Errorf("handling request: %w", appErr)

	var got *AppError
	if !errors.As(wrapped, &got) {
		t.Fatal("expected errors.As to find the AppError")
	}
	if got.Code != ErrCodeNotFoundSubscription {
		t.Errorf("unexpected code %q", got.Code)
	}
}

func TestNewAppErrorWithDetails(t *testing.T) {
	err := NewAppErrorWithDetails(ErrCodeConflictUnsupportedProvider, "unsupported", nil,
		map[string]any{"provider": "apple"})

	if err.Details["provider"] != "apple" {
		t.Errorf("expected details preserved, got %v", err.Details)
	}
	if err.HTTPStatus() != http.StatusConflict {
		t.Errorf("expected 409, got %d", err.HTTPStatus())
	}
}
