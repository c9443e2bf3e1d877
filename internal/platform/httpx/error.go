package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Abdullah97825/Matjary-sub000/internal/platform/requestctx"
)

const (
	codeLimit    = 80
	messageLimit = 512
	idLimit      = 80
)

// Error is an API failure rendered as the JSON error envelope.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an Error. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    singleLine(code, codeLimit),
		Message: singleLine(message, messageLimit),
		Status:  status,
	}
}

func (e Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// WithRequestID pins the request id instead of reading it from the context.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = singleLine(id, idLimit)
	return e
}

// WithTraceID pins the trace id instead of reading it from the context.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = singleLine(id, idLimit)
	return e
}

// WithDetails merges details into a copy of the error; later keys win.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(details)+len(e.Details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	e.Details = merged
	return e
}

type errorEnvelope struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Status    int            `json:"status"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError renders err, filling request and trace ids from ctx when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	env := errorEnvelope{
		Error:     err.Code,
		Message:   err.Message,
		Status:    err.Status,
		RequestID: err.RequestID,
		TraceID:   err.TraceID,
		Details:   err.Details,
	}
	if env.Status == 0 {
		env.Status = http.StatusInternalServerError
	}
	if env.RequestID == "" {
		env.RequestID = singleLine(middleware.GetReqID(ctx), idLimit)
	}
	if env.TraceID == "" {
		env.TraceID = singleLine(requestctx.TraceID(ctx), idLimit)
	}
	WriteJSON(w, env.Status, env)
}

// WriteJSON encodes payload with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func singleLine(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
