package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/router"
)

func TestFromErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		code   ErrorCode
		status int
	}{
		{router.ErrNoBackendAvailable, ErrorCodeNoBackend, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", router.ErrNoBackendAvailable), ErrorCodeNoBackend, http.StatusServiceUnavailable},
		{ledger.ErrWriteFailure, ErrorCodeLedgerWrite, http.StatusServiceUnavailable},
		{catalog.ErrUnknownBackend, ErrorCodeUnknownBackend, http.StatusBadRequest},
		{context.DeadlineExceeded, ErrorCodeRouterTimeout, http.StatusGatewayTimeout},
		{errors.New("boom"), ErrorCodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		apiErr := FromError(tc.err)
		if apiErr == nil {
			t.Fatalf("expected error for %v", tc.err)
		}
		if apiErr.Code != tc.code || apiErr.Status != tc.status {
			t.Fatalf("unexpected mapping for %v: %+v", tc.err, apiErr)
		}
	}
}

func TestFromErrorNil(t *testing.T) {
	if FromError(nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestFromErrorPassesThroughAPIError(t *testing.T) {
	original := NewInvalidInput("bad date")
	mapped := FromError(fmt.Errorf("context: %w", original))
	if mapped != original {
		t.Fatalf("expected passthrough, got %+v", mapped)
	}
}

func TestResponseIncludesRequestID(t *testing.T) {
	status, body := Response(router.ErrNoBackendAvailable, "req-1")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", status)
	}
	if body.ErrorCode != string(ErrorCodeNoBackend) {
		t.Fatalf("unexpected code: %s", body.ErrorCode)
	}
	if body.RequestID == nil || *body.RequestID != "req-1" {
		t.Fatalf("unexpected request id: %v", body.RequestID)
	}

	_, anonymous := Response(errors.New("boom"), "")
	if anonymous.RequestID != nil {
		t.Fatalf("expected nil request id")
	}
}

func TestNewMissingField(t *testing.T) {
	apiErr := NewMissingField("backend")
	if apiErr.Status != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", apiErr.Status)
	}
	if apiErr.Details["field"] != "backend" {
		t.Fatalf("unexpected details: %+v", apiErr.Details)
	}
}
