// Package controllers adapts HTTP requests onto the services. Handlers are
// written against pkg/ctx and mounted through ctx.Wrap.
package controllers

import (
	"errors"
	"net/http"

	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/pkg/cart"
	"github.com/shashiranjanraj/bunkar/pkg/ctx"
	"github.com/shashiranjanraj/bunkar/pkg/logger"
)

type failure struct {
	err    error
	status int
}

// failures maps each sentinel onto a status. The sentinel's own text is the
// public message; whatever it wraps stays in the logs.
var failures = []failure{
	{services.ErrAuthenticationRequired, http.StatusUnauthorized},
	{services.ErrSessionExpired, http.StatusUnauthorized},
	{services.ErrInvalidCredentials, http.StatusUnauthorized},
	{services.ErrAuthorizationDenied, http.StatusForbidden},
	{services.ErrProductNotFound, http.StatusNotFound},
	{services.ErrOrderNotFound, http.StatusNotFound},
	{services.ErrEmptyCart, http.StatusUnprocessableEntity},
	{services.ErrSpamDetected, http.StatusUnprocessableEntity},
	{services.ErrSignatureMismatch, http.StatusBadRequest},
	{services.ErrInsufficientStock, http.StatusConflict},
	{services.ErrAlreadyProcessed, http.StatusConflict},
	{services.ErrInvalidTransition, http.StatusConflict},
	{services.ErrEmailTaken, http.StatusConflict},
	{services.ErrPaymentGateway, http.StatusBadGateway},
	{services.ErrSpamCheck, http.StatusServiceUnavailable},
	{services.ErrPersistence, http.StatusInternalServerError},
	{cart.ErrInvalidQuantity, http.StatusUnprocessableEntity},
	{cart.ErrMissingProduct, http.StatusUnprocessableEntity},
	{cart.ErrNotInCart, http.StatusNotFound},
}

// StatusFor returns the HTTP status and public message for err.
func StatusFor(err error) (int, string) {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return f.status, f.err.Error()
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

// fail writes err as a JSON error envelope.
func fail(c *ctx.Context, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		c.ValidationError(verr.Fields)
		return
	}

	status, msg := StatusFor(err)
	log := logger.WithCtx(c.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	} else {
		log.Debug("request rejected", "path", c.Path(), "status", status, "error", err)
	}
	c.Error(status, msg)
}
