package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrConflictingState = errors.New("conflicting settlement state")
)

// ConfigurationError means the merchant credentials or endpoints are
// missing or unusable. Fatal to the request, never retried.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("payment configuration invalid: %s", e.Field)
}

// ValidationError means the order cannot be turned into a gateway request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payment request: %s %s", e.Field, e.Reason)
}
