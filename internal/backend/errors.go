package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

var (
	// ErrNoSession means no signed-in user: nothing stored, expired, or revoked.
	ErrNoSession = errors.New("no active session")
	// ErrNotFound is wrapped by APIError for 404 responses and empty single-row reads.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error: %s", e.Message)
	}
	return fmt.Sprintf("backend error: status %d", e.StatusCode)
}

// Unwrap maps well-known statuses onto sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound, http.StatusNotAcceptable:
		// PostgREST answers 406 when a single-object read matches no row.
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrNoSession
	}
	return nil
}

// errorMessageFields are the keys backends put human-readable text under.
var errorMessageFields = []string{"message", "msg", "error_description", "error"}

// Error returns an *APIError if the response indicates failure.
func (r *Response) Error() error {
	if r.StatusCode < http.StatusBadRequest {
		return nil
	}
	apiErr := &APIError{StatusCode: r.StatusCode}
	if gjson.ValidBytes(r.Body) {
		for _, field := range errorMessageFields {
			if v := gjson.GetBytes(r.Body, field); v.Type == gjson.String && v.String() != "" {
				apiErr.Message = v.String()
				break
			}
		}
	}
	return apiErr
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Decode checks the status and then unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := r.Error(); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := r.JSON(v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
