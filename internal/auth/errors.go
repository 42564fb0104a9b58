package auth

import (
	"fmt"

	"github.com/desertthunder/spx/internal/shared"
)

// ConfigurationError means client identity is missing or still a template value.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s", shared.ErrInvalidConfig, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return shared.ErrInvalidConfig }

// ExchangeError is a failed authorization-code exchange. Status is 0 when no HTTP response was received.
type ExchangeError struct {
	Status int
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%v: token exchange: %v", shared.ErrAuthFailed, e.Err)
	}
	return fmt.Sprintf("%v: token exchange returned HTTP %d", shared.ErrAuthFailed, e.Status)
}

func (e *ExchangeError) Unwrap() []error { return []error{shared.ErrAuthFailed, e.Err} }

// RefreshError is a failed refresh-token grant.
type RefreshError struct {
	Status int
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%v: %v", shared.ErrRefreshFailed, e.Err)
	}
	return fmt.Sprintf("%v: token endpoint returned HTTP %d", shared.ErrRefreshFailed, e.Status)
}

func (e *RefreshError) Unwrap() []error { return []error{shared.ErrRefreshFailed, e.Err} }
