package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeServerError  = "SERVER_ERROR"
	CodeUnexpected   = "UNEXPECTED_STATUS"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// FromResponse builds an APIError from a non-2xx backend response. The backend
// answers with {"error": "..."}, {"detail": "...", "code": "..."} or a map of
// field name to messages.
func FromResponse(status int, body []byte) *APIError {
	apiErr := &APIError{
		Code:       codeForStatus(status),
		Message:    strings.ToLower(http.StatusText(status)),
		HTTPStatus: status,
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("status %d", status)
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return apiErr
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		if len(trimmed) > 200 {
			trimmed = trimmed[:200]
		}
		apiErr.Details = trimmed
		return apiErr
	}

	if msg := stringField(fields, "error"); msg != "" {
		apiErr.Message = msg
		return apiErr
	}
	if msg := stringField(fields, "detail"); msg != "" {
		apiErr.Message = msg
		apiErr.Details = stringField(fields, "code")
		return apiErr
	}
	if msgs := messagesField(fields, "non_field_errors"); len(msgs) > 0 {
		apiErr.Message = strings.Join(msgs, "; ")
		return apiErr
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if msgs := messagesField(fields, key); len(msgs) > 0 {
			parts = append(parts, key+": "+strings.Join(msgs, ", "))
		}
	}
	if len(parts) > 0 {
		apiErr.Message = "validation failed"
		apiErr.Details = strings.Join(parts, "; ")
	}

	return apiErr
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus
	}
	return 0
}

// UserMessage picks the most human-readable text carried by err.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		if apiErr.Details != "" && apiErr.Code == CodeBadRequest {
			return apiErr.Details
		}
		return apiErr.Message
	}
	if err != nil && fallback == "" {
		return err.Error()
	}
	return fallback
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return CodeBadRequest
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeServerError
	default:
		return CodeUnexpected
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func messagesField(fields map[string]json.RawMessage, key string) []string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}

	return nil
}
