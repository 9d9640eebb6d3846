// Package services holds the storefront's business operations. Every
// failure a caller can act on is one of the sentinel errors below, wrapped
// with context; controllers map them onto HTTP responses.
package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrSessionExpired         = errors.New("session expired, please sign in again")
	ErrAuthorizationDenied    = errors.New("not allowed")

	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")

	ErrPaymentGateway    = errors.New("payment gateway unavailable")
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	ErrPersistence       = errors.New("could not save your order, please try again")
	ErrOrderNotFound     = errors.New("order not found")
	ErrAlreadyProcessed  = errors.New("order already processed")
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSpamDetected       = errors.New("message rejected as spam")
	ErrSpamCheck          = errors.New("spam check unavailable, please try again later")

	ErrValidation = errors.New("validation failed")
)

// ValidationError carries per-field messages keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
