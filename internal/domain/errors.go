package domain

import (
	"errors"
	"fmt"
	"sort"
)

// Error codes by kind. Transport failures with no peer response default to 500.
const (
	StatusTransportError = 500
	StatusValidation     = 400
	StatusNotSupported   = 501
)

// ApiError wraps a failed Lab API call. Errors aggregates every message the
// peer supplied, most specific first; downstream consumers display Errors[0].
type ApiError struct {
	Message    string   `json:"message"`
	StatusCode int      `json:"statusCode"`
	Errors     []string `json:"errors"`
}

// Error implements the error interface.
func (e *ApiError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// NewApiError builds an ApiError from the transport error and the decoded
// peer body. The Errors list is assembled in a fixed order: transport
// message, value.detail, value.Message, title, flattened field errors,
// top-level Message, top-level detail, string-valued options.
func NewApiError(message string, statusCode int, cause error, body map[string]any) *ApiError {
	if statusCode == 0 {
		statusCode = StatusTransportError
	}
	e := &ApiError{
		Message:    message,
		StatusCode: statusCode,
	}

	if cause != nil {
		e.Errors = append(e.Errors, cause.Error())
	}
	if body == nil {
		return e
	}

	if value, ok := body["value"].(map[string]any); ok {
		if detail, ok := value["detail"].(string); ok {
			e.Errors = append(e.Errors, detail)
		}
		if msg, ok := value["Message"].(string); ok {
			e.Errors = append(e.Errors, msg)
		}
	}
	if title, ok := body["title"].(string); ok {
		e.Errors = append(e.Errors, title)
	}
	if fields, ok := body["errors"].(map[string]any); ok {
		names := make([]string, 0, len(fields))
		for field := range fields {
			names = append(names, field)
		}
		sort.Strings(names)
		for _, field := range names {
			msgs, ok := fields[field].([]any)
			if !ok {
				continue
			}
			for _, msg := range msgs {
				if s, ok := msg.(string); ok {
					e.Errors = append(e.Errors, fmt.Sprintf("%s: %s", field, s))
				}
			}
		}
	}
	if msg, ok := body["Message"].(string); ok {
		e.Errors = append(e.Errors, msg)
	}
	if detail, ok := body["detail"].(string); ok {
		e.Errors = append(e.Errors, detail)
	}
	if options, ok := body["options"].(string); ok {
		e.Errors = append(e.Errors, options)
	}

	return e
}

// NewValidationError reports an invalid input detected locally.
func NewValidationError(message, detail string) *ApiError {
	return &ApiError{
		Message:    message,
		StatusCode: StatusValidation,
		Errors:     []string{detail},
	}
}

// NewNotSupportedError reports an operation the Lab does not implement.
func NewNotSupportedError(operation string) *ApiError {
	return &ApiError{
		Message:    fmt.Sprintf("%s is not supported", operation),
		StatusCode: StatusNotSupported,
		Errors:     []string{"the provider does not support this operation"},
	}
}

// AsApiError reports whether err is (or wraps) an ApiError, assigning it to
// target when so.
func AsApiError(err error, target **ApiError) bool {
	return errors.As(err, target)
}

// ProviderError is the bus-level error envelope returned to callers.
type ProviderError struct {
	Provider string   `json:"provider"`
	Code     int      `json:"code"`
	Message  string   `json:"message"`
	Errors   []string `json:"error,omitempty"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Provider, e.Message, e.Code)
}

// WrapProviderError translates a service-layer failure into the bus-level
// envelope, preserving ApiError details when present.
func WrapProviderError(provider string, err error) *ProviderError {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: provider,
			Code:     apiErr.StatusCode,
			Message:  apiErr.Message,
			Errors:   apiErr.Errors,
		}
	}
	return &ProviderError{
		Provider: provider,
		Code:     StatusTransportError,
		Message:  err.Error(),
	}
}
