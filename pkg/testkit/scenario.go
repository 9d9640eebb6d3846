// Package testkit drives the HTTP API from JSON flow files.
//
// A flow is an ordered list of steps run against one handler. Steps share
// a cookie jar, so the session cart survives between them, and a variable
// table: a step can capture values out of its response and later steps
// refer to them as {{name}} in the URL, headers or body.
//
//	{
//	  "name": "guest fills a cart",
//	  "steps": [
//	    {"name": "add", "method": "POST", "url": "/api/cart/items",
//	     "body": {"product_id": "{{saree}}", "quantity": 2},
//	     "expectedCode": 200,
//	     "expect": {"data": {"count": 2}}},
//	    {"name": "show", "method": "GET", "url": "/api/cart",
//	     "expectedCode": 200,
//	     "capture": {"line": "data.items.0.product_id"}}
//	  ]
//	}
//
// Outbound calls made through pkg/http are answered by the step's mocks;
// an outbound call no mock matches fails the step.
package testkit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Flow is one ordered API conversation.
type Flow struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Step is a single request and what must come back.
type Step struct {
	Name    string            `json:"name"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`

	ExpectedCode int `json:"expectedCode"`
	// Expect is matched as a subset of the response body. The string "*"
	// matches any present value.
	Expect json.RawMessage `json:"expect,omitempty"`
	// Capture maps a variable name onto a dotted path in the response body.
	Capture map[string]string `json:"capture,omitempty"`

	Mocks []MockStep `json:"mocks,omitempty"`
}

// MockStep answers outbound requests whose URL starts with MatchURL.
type MockStep struct {
	Method   string          `json:"method,omitempty"`
	MatchURL string          `json:"matchUrl"`
	Status   int             `json:"status,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// LoadFlow reads a flow file.
func LoadFlow(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testkit: read %q: %w", path, err)
	}
	var f Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("testkit: parse %q: %w", path, err)
	}
	if f.Name == "" {
		f.Name = filepath.Base(path)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("testkit: %q has no steps", path)
	}
	return &f, nil
}

// LoadDir reads every *.json flow in dir, sorted by file name.
func LoadDir(dir string) ([]*Flow, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	flows := make([]*Flow, 0, len(paths))
	for _, p := range paths {
		f, err := LoadFlow(p)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, nil
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Expand replaces {{name}} with vars[name]. Unknown names are an error so a
// missed capture shows up at the step that needed it.
func Expand(s string, vars map[string]string) (string, error) {
	var missing string
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok {
			missing = name
			return m
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("testkit: variable %q is not set", missing)
	}
	return out, nil
}
