// Package recaptcha verifies bot-detection tokens with a siteverify API.
package recaptcha

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shashiranjanraj/bunkar/config"
	"github.com/shashiranjanraj/bunkar/pkg/http"
)

// ErrUnavailable is returned when the verification API cannot be reached
// or answers with a non-2xx status.
var ErrUnavailable = errors.New("recaptcha: verification unavailable")

// Result is the decoded siteverify answer.
type Result struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Human reports whether the result clears minScore.
func (r Result) Human(minScore float64) bool {
	return r.Success && r.Score >= minScore
}

// Verifier checks a token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (Result, error)
}

// Client calls the configured siteverify endpoint.
type Client struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// NewClientFromConfig reads RECAPTCHA_VERIFY_URL and RECAPTCHA_SECRET.
func NewClientFromConfig() *Client {
	return &Client{
		URL:     config.RecaptchaVerifyURL(),
		Secret:  config.RecaptchaSecret(),
		Timeout: 5 * time.Second,
	}
}

func (c *Client) Verify(ctx context.Context, token, remoteIP string) (Result, error) {
	form := url.Values{"secret": {c.Secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	resp, err := http.Post(c.URL).
		WithContext(ctx).
		Timeout(c.Timeout).
		Form(form).
		Send()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := resp.Throw(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out Result
	if err := resp.JSON(&out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// Static always returns the same result. Used in tests and local runs
// without a secret.
type Static struct {
	Result Result
	Err    error
}

func (s Static) Verify(context.Context, string, string) (Result, error) {
	return s.Result, s.Err
}
