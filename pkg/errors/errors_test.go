package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Sentinel error identity ---

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidInput, ErrInternal,
		ErrConflict, ErrInsufficientStock, ErrInvalidTransition,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

// --- AppError behavior ---

func TestAppError_ErrorString_WithWrappedError(t *testing.T) {
	inner := fmt.Errorf("db connection lost")
	appErr := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: inner}
	assert.Contains(t, appErr.Error(), "INTERNAL_ERROR")
	assert.Contains(t, appErr.Error(), "something broke")
	assert.Contains(t, appErr.Error(), "db connection lost")
}

func TestAppError_ErrorString_WithoutWrappedError(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "order not found"}
	assert.Equal(t, "NOT_FOUND: order not found", appErr.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "nope", Err: ErrNotFound}
	assert.True(t, errors.Is(appErr, ErrNotFound))
}

func TestAppError_Unwrap_Nil(t *testing.T) {
	appErr := &AppError{Code: "TEST", Message: "test"}
	assert.Nil(t, appErr.Unwrap())
}

// --- Domain error types ---

func TestInsufficientStockError(t *testing.T) {
	err := &InsufficientStockError{VariantID: "var-123", Requested: 5, Available: 2}

	assert.Contains(t, err.Error(), "var-123")
	assert.Contains(t, err.Error(), "requested 5")
	assert.Contains(t, err.Error(), "available 2")
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	wrapped := fmt.Errorf("create order: %w", err)
	var stockErr *InsufficientStockError
	require.True(t, errors.As(wrapped, &stockErr))
	assert.Equal(t, 5, stockErr.Requested)
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{From: "delivered", To: "confirmed"}

	assert.Contains(t, err.Error(), "delivered")
	assert.Contains(t, err.Error(), "confirmed")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	wrapped := fmt.Errorf("transition order: %w", err)
	var trErr *InvalidTransitionError
	require.True(t, errors.As(wrapped, &trErr))
	assert.Equal(t, "delivered", trErr.From)
}

// --- Constructor functions ---

func TestNotFound(t *testing.T) {
	err := NotFound("order", "abc-123")
	require.NotNil(t, err)
	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Contains(t, err.Message, "order")
	assert.Contains(t, err.Message, "abc-123")
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAlreadyExists(t *testing.T) {
	err := AlreadyExists("order", "order_number", "ORD-20260301-0042")
	require.NotNil(t, err)
	assert.Equal(t, "ALREADY_EXISTS", err.Code)
	assert.Contains(t, err.Message, "order")
	assert.Contains(t, err.Message, "order_number")
	assert.Contains(t, err.Message, "ORD-20260301-0042")
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestInvalidInputError(t *testing.T) {
	err := InvalidInput("organization_id is required")
	require.NotNil(t, err)
	assert.Equal(t, "INVALID_INPUT", err.Code)
	assert.Equal(t, "organization_id is required", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestConflict(t *testing.T) {
	err := Conflict("ledger chain broken for variant var-1")
	require.NotNil(t, err)
	assert.Equal(t, "CONFLICT", err.Code)
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestInternal(t *testing.T) {
	inner := fmt.Errorf("pool exhausted")
	err := Internal(inner)
	require.NotNil(t, err)
	assert.Equal(t, "INTERNAL_ERROR", err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.True(t, errors.Is(err, inner))
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrNotFound, "load order")
	assert.Contains(t, err.Error(), "load order")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- HTTP mapping ---

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error uses its own status", NotFound("order", "1"), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		{"already exists", fmt.Errorf("x: %w", ErrAlreadyExists), http.StatusConflict},
		{"conflict", fmt.Errorf("x: %w", ErrConflict), http.StatusConflict},
		{"invalid input", fmt.Errorf("x: %w", ErrInvalidInput), http.StatusBadRequest},
		{"insufficient stock", &InsufficientStockError{VariantID: "v"}, http.StatusUnprocessableEntity},
		{"invalid transition", &InvalidTransitionError{From: "a", To: "b"}, http.StatusConflict},
		{"unknown error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"app error uses its own code", AlreadyExists("order", "order_number", "x"), "ALREADY_EXISTS"},
		{"not found", fmt.Errorf("x: %w", ErrNotFound), "NOT_FOUND"},
		{"conflict", fmt.Errorf("x: %w", ErrConflict), "CONFLICT"},
		{"insufficient stock", &InsufficientStockError{VariantID: "v"}, "INSUFFICIENT_STOCK"},
		{"invalid transition", &InvalidTransitionError{From: "a", To: "b"}, "INVALID_TRANSITION"},
		{"unknown error", fmt.Errorf("boom"), "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
