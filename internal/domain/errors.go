package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrVariantNotFound = errors.New("product variant not found")
)

// ConfigError reports missing or unusable configuration. It is fatal:
// surfaced at startup or on first use, never retried.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration missing: %s", e.Field)
}

// ValidationError reports a bad input value and names the violated field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError reports a failed token exchange with the payment gateway.
// The caller may retry once via a forced refresh before surfacing it.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("mpesa authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// InitiationError reports a rejected or failed STK push submission.
// Retryable is true for transport-level failures (timeouts, 5xx) and false
// for business rejections (ResponseCode != 0, 4xx), which must not be
// retried automatically.
type InitiationError struct {
	Retryable   bool
	Code        string
	Description string
	Err         error
}

func (e *InitiationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stk push failed: %s: %v", e.Description, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("stk push rejected (code %s): %s", e.Code, e.Description)
	}
	return fmt.Sprintf("stk push failed: %s", e.Description)
}

func (e *InitiationError) Unwrap() error { return e.Err }

// InventoryError reports a store-level failure while mutating stock.
// Distinct from an insufficient-stock outcome, which is a normal result.
type InventoryError struct {
	Op  string
	Err error
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("inventory %s failed: %v", e.Op, e.Err)
}

func (e *InventoryError) Unwrap() error { return e.Err }

// MalformedCallbackError reports a structurally invalid gateway callback.
// Logged and acknowledged with HTTP 200; never propagated to the gateway.
type MalformedCallbackError struct {
	Reason string
}

func (e *MalformedCallbackError) Error() string {
	return fmt.Sprintf("malformed mpesa callback: %s", e.Reason)
}
