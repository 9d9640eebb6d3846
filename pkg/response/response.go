// Package response writes the JSON envelope every endpoint answers with:
//
//	{"status":422,"success":false,"message":"Validation failed","errors":{"email":"..."}}
//
// Middleware calls it directly; controllers reach it through pkg/ctx.
package response

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body of every JSON response except GraphQL and the
// event streams.
type Envelope struct {
	Status  int    `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

// Write sends body with status. Success is derived from the status.
func Write(w http.ResponseWriter, status int, body Envelope) {
	body.Status = status
	body.Success = status < http.StatusBadRequest
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func Success(w http.ResponseWriter, data any) {
	Write(w, http.StatusOK, Envelope{Data: data})
}

// Error sends message with status and no data.
func Error(w http.ResponseWriter, status int, message string) {
	Write(w, status, Envelope{Message: message})
}

func Unauthorized(w http.ResponseWriter, message ...string) {
	msg := "Unauthorized"
	if len(message) > 0 {
		msg = message[0]
	}
	Error(w, http.StatusUnauthorized, msg)
}

func Forbidden(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, "Forbidden")
}

func TooManyRequests(w http.ResponseWriter) {
	Error(w, http.StatusTooManyRequests, "Too Many Requests")
}

// Unavailable sends a 503 carrying details in data.
func Unavailable(w http.ResponseWriter, data any) {
	Write(w, http.StatusServiceUnavailable, Envelope{Message: "Service Unavailable", Data: data})
}
