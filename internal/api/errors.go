package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/jellydator/validation"

	"github.com/dmitrymomot/mailpipe/pkg/producer"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// HTTPError is an error with everything needed to render it.
type HTTPError struct {
	// Err is the underlying error. It is logged, never rendered.
	Err error `json:"-"`

	Message   string            `json:"message"`
	ErrorCode string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Code      int               `json:"-"`
}

func (e *HTTPError) Error() string { return e.Message }
func (e *HTTPError) Unwrap() error { return e.Err }

var (
	errUnauthorized = &HTTPError{Code: http.StatusUnauthorized, ErrorCode: "unauthorized", Message: "missing or invalid bearer token"}
	errRateLimited  = &HTTPError{Code: http.StatusTooManyRequests, ErrorCode: "rate_limit_exceeded", Message: "too many requests"}
	errBadJSON      = &HTTPError{Code: http.StatusBadRequest, ErrorCode: "invalid_json", Message: "request body is not valid JSON"}
	errTimeout      = &HTTPError{Code: http.StatusServiceUnavailable, ErrorCode: "timeout", Message: "request timed out"}
	errPanic        = &HTTPError{Code: http.StatusInternalServerError, ErrorCode: "internal", Message: "internal server error"}
)

// toHTTPError maps domain errors onto status codes.
func toHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for k, v := range verrs {
			fields[k] = v.Error()
		}
		return &HTTPError{Err: err, Code: http.StatusUnprocessableEntity, ErrorCode: "validation_failed", Message: "validation failed", Fields: fields}
	case errors.Is(err, producer.ErrValidation):
		return &HTTPError{Err: err, Code: http.StatusUnprocessableEntity, ErrorCode: "validation_failed", Message: "missing required fields"}
	case errors.Is(err, producer.ErrNoRecipient):
		return &HTTPError{Err: err, Code: http.StatusUnprocessableEntity, ErrorCode: "no_recipient", Message: "recipient has no email address"}
	case errors.Is(err, queue.ErrCampaignNotFound), errors.Is(err, queue.ErrNotFound):
		return &HTTPError{Err: err, Code: http.StatusNotFound, ErrorCode: "not_found", Message: "not found"}
	case errors.Is(err, queue.ErrInvalidItem):
		return &HTTPError{Err: err, Code: http.StatusUnprocessableEntity, ErrorCode: "invalid_item", Message: "item rejected by the queue"}
	case errors.Is(err, context.DeadlineExceeded):
		return &HTTPError{Err: err, Code: errTimeout.Code, ErrorCode: errTimeout.ErrorCode, Message: errTimeout.Message}
	case errors.Is(err, queue.ErrBatchTooLarge):
		return &HTTPError{Err: err, Code: http.StatusRequestEntityTooLarge, ErrorCode: "batch_too_large", Message: "batch exceeds write limit"}
	}
	return &HTTPError{Err: err, Code: http.StatusInternalServerError, ErrorCode: "internal", Message: "internal server error"}
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	he := *toHTTPError(err)
	he.RequestID = RequestID(r.Context())

	if he.Code >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", he.Code),
			slog.Any("error", err))
	} else {
		log.DebugContext(r.Context(), "request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", he.Code),
			slog.Any("error", err))
	}
	writeJSON(w, he.Code, &he)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &HTTPError{Err: err, Code: errBadJSON.Code, ErrorCode: errBadJSON.ErrorCode, Message: errBadJSON.Message}
	}
	return nil
}
