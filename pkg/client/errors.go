package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidBaseURL is returned when the base URL is not absolute.
	ErrInvalidBaseURL = errors.New("invalid base URL")
	// ErrEmptyID is returned when an identifier argument is empty.
	ErrEmptyID = errors.New("identifier cannot be empty")
)

// APIError represents a non-2xx response from a STAC or GeoCatalog API.
type APIError struct {
	Status int
	Method string
	URL    string
	// Code and Message come from whichever error envelope the server used:
	// {"code","description"} (stac-fastapi), {"title","detail"} (problem+json)
	// or {"error":{"code","message"}} (Azure).
	Code    string
	Message string
	Raw     []byte
}

func newAPIError(status int, method, url string, raw []byte) *APIError {
	e := &APIError{Status: status, Method: method, URL: url, Raw: raw}

	var envelope struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Title       string `json:"title"`
		Detail      string `json:"detail"`
		Error       *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		e.Message = strings.TrimSpace(string(raw))
		return e
	}
	switch {
	case envelope.Error != nil:
		e.Code, e.Message = envelope.Error.Code, envelope.Error.Message
	case envelope.Title != "" || envelope.Detail != "":
		e.Code, e.Message = envelope.Title, envelope.Detail
	default:
		e.Code, e.Message = envelope.Code, envelope.Description
	}
	return e
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", msg, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("%s: %s", msg, e.Code)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
