package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorChain(t *testing.T) {
	t.Parallel()

	inner := errors.New("dial tcp: refused")
	err := E(CodeUnavailable, "SessionService.Get", "failed to get session", inner)

	if !errors.Is(err, inner) {
		t.Error("wrapped error lost from chain")
	}
	if !IsCode(err, CodeUnavailable) {
		t.Error("IsCode missed the code")
	}
	if IsCode(err, CodeNotFound) {
		t.Error("IsCode matched the wrong code")
	}

	// wrapping an AppError keeps the outermost code
	outer := E(CodeInternal, "Handler", "request failed", err)
	if got := ErrCode(outer); got != CodeInternal {
		t.Errorf("ErrCode = %q, want INTERNAL", got)
	}
}

func TestErrCodeFallsBackToInternal(t *testing.T) {
	t.Parallel()

	if got := ErrCode(errors.New("plain")); got != CodeInternal {
		t.Errorf("ErrCode = %q, want INTERNAL", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want int
	}{
		{CodeInvalidArgument, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeSessionEnded, http.StatusGone},
		{CodeResourceExhausted, http.StatusTooManyRequests},
		{CodeConnectionLost, http.StatusServiceUnavailable},
		{CodeReconnectExhausted, http.StatusInternalServerError},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(E(tc.code, "op", "msg", nil)); got != tc.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}

	if got := HTTPStatus(fmt.Errorf("lookup: %w", ErrNotFound)); got != http.StatusNotFound {
		t.Errorf("sentinel fallback = %d, want 404", got)
	}
}

func TestErrorMessageFormats(t *testing.T) {
	t.Parallel()

	inner := errors.New("boom")
	cases := []struct {
		err  error
		want string
	}{
		{E(CodeInternal, "Svc.Op", "it broke", inner), "Svc.Op: it broke: boom"},
		{E(CodeInternal, "Svc.Op", "it broke", nil), "Svc.Op: it broke"},
		{E(CodeInternal, "", "it broke", nil), "it broke"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}
