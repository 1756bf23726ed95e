package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeDependency, cause, "order service call failed")

	if err.Code() != CodeDependency {
		t.Fatalf("unexpected code %q", err.Code())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if err.Error() != "DEPENDENCY_ERROR: order service call failed" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestAsUnwrapsThroughFmtWrapping(t *testing.T) {
	inner := New(CodeStockConflict, "only 3 left")
	outer := fmt.Errorf("confirming mutation: %w", inner)

	typed := As(outer)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeStockConflict {
		t.Fatalf("unexpected code %q", typed.Code())
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"untyped transport error", errors.New("dial tcp: i/o timeout"), true},
		{"timeout", New(CodeTimeout, "deadline exceeded"), true},
		{"dependency", New(CodeDependency, "503"), true},
		{"internal", New(CodeInternal, "500"), true},
		{"validation", New(CodeValidation, "bad quantity"), false},
		{"stock conflict", New(CodeStockConflict, "sold out"), false},
		{"unauthorized", New(CodeUnauthorized, "session expired"), false},
		{"storage", New(CodeStorage, "quota exceeded"), false},
	}

	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFromHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Code
	}{
		{http.StatusBadRequest, CodeValidation},
		{http.StatusUnauthorized, CodeUnauthorized},
		{http.StatusForbidden, CodeUnauthorized},
		{http.StatusNotFound, CodeNotFound},
		{http.StatusConflict, CodeStockConflict},
		{http.StatusUnprocessableEntity, CodeValidation},
		{http.StatusInternalServerError, CodeInternal},
		{http.StatusBadGateway, CodeDependency},
		{http.StatusServiceUnavailable, CodeDependency},
		{http.StatusGatewayTimeout, CodeTimeout},
	}

	for _, tc := range cases {
		err := FromHTTPStatus(tc.status, "remote failure")
		if err.Code() != tc.want {
			t.Fatalf("status %d: code %q, want %q", tc.status, err.Code(), tc.want)
		}
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("BOGUS"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected fallback status %d", meta.HTTPStatus)
	}
}
