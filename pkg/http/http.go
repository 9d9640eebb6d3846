// Package http is the outbound client behind the payment gateway, the bot
// check and Slack/webhook notifications.
//
//	resp, err := http.Post(baseURL + "/v1/orders").
//	    BasicAuth(keyID, keySecret).
//	    Body(payload).
//	    WithContext(ctx).
//	    Send()
//
// The request id of the inbound request, when present in ctx, is forwarded
// as X-Request-ID so gateway logs can be joined with ours.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	gohttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/reqid"
)

// maxErrorBody caps how much of a failed response ends up in an error.
const maxErrorBody = 512

var defaultTransport = &gohttp.Transport{
	Proxy:               gohttp.ProxyFromEnvironment,
	MaxIdleConns:        64,
	MaxIdleConnsPerHost: 16,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// DefaultClient carries every outbound call. Tests swap its Transport:
//
//	http.DefaultClient.Transport = mock
//	defer http.ResetTransport()
var DefaultClient = &gohttp.Client{Transport: defaultTransport}

// ResetTransport puts the production transport back on DefaultClient.
func ResetTransport() {
	DefaultClient.Transport = defaultTransport
}

// Request is built fluently and executed with Send.
type Request struct {
	method    string
	url       string
	headers   gohttp.Header
	body      any
	timeout   time.Duration
	user      string
	pass      string
	basic     bool
	attempts  int
	retryWait time.Duration
	ctx       context.Context
}

func Get(url string) *Request { return newRequest(gohttp.MethodGet, url) }

func Post(url string) *Request { return newRequest(gohttp.MethodPost, url) }

func Patch(url string) *Request { return newRequest(gohttp.MethodPatch, url) }

func newRequest(method, url string) *Request {
	h := gohttp.Header{}
	h.Set("Accept", "application/json")
	return &Request{
		method:    method,
		url:       url,
		headers:   h,
		timeout:   10 * time.Second,
		attempts:  1,
		retryWait: 250 * time.Millisecond,
		ctx:       context.Background(),
	}
}

// Headers merges h into the request headers.
func (r *Request) Headers(h map[string]string) *Request {
	for k, v := range h {
		r.headers.Set(k, v)
	}
	return r
}

func (r *Request) BasicAuth(user, pass string) *Request {
	r.user, r.pass, r.basic = user, pass, true
	return r
}

// Form sends values url-encoded.
func (r *Request) Form(values url.Values) *Request {
	r.body = values
	return r
}

// Body sets the payload. Strings and byte slices go out raw; anything else
// is encoded as JSON.
func (r *Request) Body(v any) *Request {
	r.body = v
	return r
}

// Timeout bounds a single attempt.
func (r *Request) Timeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

// Retry sets the total number of attempts and the first backoff, which
// doubles after each failure. Only transport errors and 429/502/503/504
// answers are retried, so callers opt in only for idempotent calls.
func (r *Request) Retry(attempts int, wait time.Duration) *Request {
	if attempts < 1 {
		attempts = 1
	}
	r.attempts, r.retryWait = attempts, wait
	return r
}

func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

// Send runs the request. A non-2xx answer is not an error here; use
// Response.Throw for that.
func (r *Request) Send() (*Response, error) {
	payload, contentType, err := r.encodeBody()
	if err != nil {
		return nil, err
	}

	wait := r.retryWait
	var (
		resp    *Response
		lastErr error
	)
	for attempt := 1; attempt <= r.attempts; attempt++ {
		resp, lastErr = r.do(payload, contentType)
		if !retryable(resp, lastErr) || attempt == r.attempts || r.ctx.Err() != nil {
			break
		}

		backoff := wait
		if resp != nil {
			if after := retryAfter(resp); after > 0 {
				backoff = after
			}
		}
		logger.WithCtx(r.ctx).Warn("outbound call failed, retrying",
			"method", r.method, "url", r.url, "attempt", attempt,
			"status", statusOf(resp), "backoff", backoff, "error", lastErr)

		select {
		case <-r.ctx.Done():
			return nil, fmt.Errorf("http: %s %s: %w", r.method, r.url, r.ctx.Err())
		case <-time.After(backoff):
		}
		wait *= 2
	}

	if lastErr != nil {
		return nil, fmt.Errorf("http: %s %s after %d attempt(s): %w", r.method, r.url, r.attempts, lastErr)
	}
	return resp, nil
}

func (r *Request) do(payload []byte, contentType string) (*Response, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := gohttp.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = r.headers.Clone()
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if id := reqid.FromCtx(r.ctx); id != "" {
		req.Header.Set(reqid.Header, id)
	}
	if r.basic {
		req.SetBasicAuth(r.user, r.pass)
	}

	res, err := DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{StatusCode: res.StatusCode, Headers: res.Header, Raw: raw}, nil
}

func (r *Request) encodeBody() ([]byte, string, error) {
	switch v := r.body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return []byte(v), "text/plain; charset=utf-8", nil
	case []byte:
		return v, "application/octet-stream", nil
	case url.Values:
		return []byte(v.Encode()), "application/x-www-form-urlencoded", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("http: encode body: %w", err)
		}
		return b, "application/json", nil
	}
}

func retryable(resp *Response, err error) bool {
	if err != nil {
		return true
	}
	switch resp.StatusCode {
	case gohttp.StatusTooManyRequests, gohttp.StatusBadGateway,
		gohttp.StatusServiceUnavailable, gohttp.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter honours a Retry-After given in seconds, capped at 5s.
func retryAfter(resp *Response) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(resp.Headers.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, 5*time.Second)
}

func statusOf(resp *Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// Response is a fully read answer.
type Response struct {
	StatusCode int
	Headers    gohttp.Header
	Raw        []byte
}

func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

func (r *Response) JSON(dest any) error {
	if err := json.Unmarshal(r.Raw, dest); err != nil {
		return fmt.Errorf("http: decode JSON: %w", err)
	}
	return nil
}

func (r *Response) Text() string { return string(r.Raw) }

// StatusError is what Throw returns for a non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http: status %d: %s", e.Code, e.Body)
}

// Throw turns a non-2xx answer into a *StatusError carrying the start of
// the body.
func (r *Response) Throw() error {
	if r.OK() {
		return nil
	}
	body := r.Raw
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Code: r.StatusCode, Body: string(body)}
}
