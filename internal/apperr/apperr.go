package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error is a typed application error that knows its HTTP status.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Status  int            `json:"-"`
	Fields  map[string]any `json:"fields,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return "error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors of the same code, so errors.Is(err, ErrNotFound) holds
// for wrapped copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.Code == t.Code
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func Wrap(err error, base *Error, message string) *Error {
	if err == nil {
		return nil
	}
	if base == nil {
		base = ErrInternal
	}
	cp := *base
	if message != "" {
		cp.Message = message
	}
	cp.Err = err
	return &cp
}

func WithFields(base *Error, fields map[string]any) *Error {
	if base == nil {
		return nil
	}
	cp := *base
	cp.Fields = fields
	return &cp
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

func Status(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

func Code(err error) string {
	if e, ok := As(err); ok && e.Code != "" {
		return e.Code
	}
	return "internal_error"
}

func Message(err error) string {
	if e, ok := As(err); ok {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Code
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func Payload(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	payload := map[string]any{
		"code":    Code(err),
		"message": Message(err),
	}
	if e, ok := As(err); ok && len(e.Fields) > 0 {
		payload["fields"] = e.Fields
	}
	return payload
}

// Write renders err as a JSON body with its status.
func Write(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(err))
	_ = json.NewEncoder(w).Encode(Payload(err))
}

var (
	ErrBadRequest    = New("bad_request", http.StatusBadRequest, "")
	ErrValidation    = New("validation_error", http.StatusBadRequest, "")
	ErrEmptyBody     = New("empty_body", http.StatusBadRequest, "request body is empty")
	ErrNotFound      = New("not_found", http.StatusNotFound, "")
	ErrConflict      = New("conflict", http.StatusConflict, "")
	ErrUnprocessable = New("not_recognized", http.StatusUnprocessableEntity, "")
	ErrForbidden     = New("forbidden", http.StatusForbidden, "")
	ErrInternal      = New("internal_error", http.StatusInternalServerError, "")
	ErrUpstream      = New("upstream_error", http.StatusBadGateway, "")
	ErrUnavailable   = New("service_unavailable", http.StatusServiceUnavailable, "")
)
