package testkit

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockTransport is an http.RoundTripper that answers from MockSteps
// instead of the network. Install it on pkg/http's DefaultClient:
//
//	mt := testkit.NewMockTransport(step.Mocks)
//	bhttp.DefaultClient.Transport = mt
//	defer bhttp.ResetTransport()
type MockTransport struct {
	mu    sync.Mutex
	steps []MockStep
	calls []int
	// Unmatched records outbound URLs no step answered.
	Unmatched []string
}

func NewMockTransport(steps []MockStep) *MockTransport {
	return &MockTransport{steps: steps, calls: make([]int, len(steps))}
}

func (mt *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	target := req.URL.String()
	for i, s := range mt.steps {
		if s.Method != "" && !strings.EqualFold(s.Method, req.Method) {
			continue
		}
		if !strings.HasPrefix(target, s.MatchURL) {
			continue
		}
		mt.calls[i]++
		return mockResponse(req, s), nil
	}

	mt.Unmatched = append(mt.Unmatched, req.Method+" "+target)
	return nil, fmt.Errorf("testkit: no mock for %s %s", req.Method, target)
}

// Uncalled returns the steps that never answered a request.
func (mt *MockTransport) Uncalled() []MockStep {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	var out []MockStep
	for i, n := range mt.calls {
		if n == 0 {
			out = append(out, mt.steps[i])
		}
	}
	return out
}

// Calls returns how many requests step i answered.
func (mt *MockTransport) Calls(i int) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.calls[i]
}

func mockResponse(req *http.Request, s MockStep) *http.Response {
	code := s.Status
	if code == 0 {
		code = http.StatusOK
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: code,
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.Body)),
		Request:    req,
	}
}
