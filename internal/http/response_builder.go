package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"wallet/internal/core"
	"wallet/internal/log"
	"wallet/internal/middleware/trace"
	"wallet/internal/services"
)

// ResponseBuilder provides a fluent API for JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response. A nil payload writes no body.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(r *http.Request, statusCode int, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(errorBody{Error: message, RequestID: trace.GetRequestID(r.Context())})
}

func BadRequestError(r *http.Request, message string) *ResponseBuilder {
	return ErrorResponse(r, http.StatusBadRequest, message)
}

func UnprocessableEntityError(r *http.Request, message string) *ResponseBuilder {
	return ErrorResponse(r, http.StatusUnprocessableEntity, message)
}

func NotFoundError(r *http.Request, message string) *ResponseBuilder {
	return ErrorResponse(r, http.StatusNotFound, message)
}

func InternalServerError(r *http.Request) *ResponseBuilder {
	return ErrorResponse(r, http.StatusInternalServerError, "internal error")
}

// ServiceError maps a domain error to a status and logs what the client is
// not told.
func ServiceError(r *http.Request, err error) *ResponseBuilder {
	logger := log.FromContext(r.Context())
	switch {
	case services.IsValidation(err):
		return UnprocessableEntityError(r, err.Error())
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrIndexOutOfRange):
		return NotFoundError(r, err.Error())
	case errors.Is(err, core.ErrMalformedStorage), errors.Is(err, core.ErrInvalidAmount):
		logger.WarnContext(r.Context(), "Stored transactions are unusable",
			log.FieldError, err, "error_type", log.ErrorTypeMalformed)
		return ErrorResponse(r, http.StatusConflict, "stored transactions are malformed")
	default:
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldError, err, "error_type", log.ErrorTypeInternal)
		return InternalServerError(r)
	}
}
