package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"wallet/internal/core"
	"wallet/internal/middleware/trace"
	"wallet/internal/view"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/x").
		JSON(map[string]int{"n": 1}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/x" {
		t.Errorf("Location = %q", got)
	}
	if got := w.Body.String(); got != "{\"n\":1}\n" {
		t.Errorf("Body = %q", got)
	}
}

func TestResponseBuilder_NoContent(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).JSON("ignored").Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestResponseBuilder_UnencodablePayload(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().JSON(make(chan int)).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d", w.Code)
	}
}

func TestServiceErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %w", core.ErrValidation, core.ErrInvalidAmount), http.StatusUnprocessableEntity},
		{fmt.Errorf("set: %w", view.ErrInvalidFilter), http.StatusUnprocessableEntity},
		{fmt.Errorf("delete: %w", core.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("delete: %w", core.ErrIndexOutOfRange), http.StatusNotFound},
		{fmt.Errorf("load: %w", core.ErrMalformedStorage), http.StatusConflict},
		{fmt.Errorf("totals: %w", core.ErrInvalidAmount), http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), trace.RequestIDKey, "req_test"))
			w := httptest.NewRecorder()
			ServiceError(req, tt.err).Write(w)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			body := decode[errorBody](t, w)
			if body.RequestID != "req_test" {
				t.Errorf("request_id = %q", body.RequestID)
			}
			if tt.want == http.StatusInternalServerError && body.Error != "internal error" {
				t.Errorf("internal details leaked: %q", body.Error)
			}
		})
	}
}
