package testkit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	bhttp "github.com/shashiranjanraj/bunkar/pkg/http"
)

// Vars seeds a flow's variable table.
type Vars map[string]string

// Run executes the flow file at path as a subtest of t.
func Run(t *testing.T, handler http.Handler, path string, vars Vars) {
	t.Helper()
	f, err := LoadFlow(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Run(f.Name, func(t *testing.T) { RunFlow(t, handler, f, vars) })
}

// RunDir runs every flow in dir. Each flow starts from its own copy of vars
// and an empty cookie jar.
func RunDir(t *testing.T, handler http.Handler, dir string, vars Vars) {
	t.Helper()
	flows, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(flows) == 0 {
		t.Fatalf("testkit: no flows in %q", dir)
	}
	for _, f := range flows {
		t.Run(f.Name, func(t *testing.T) { RunFlow(t, handler, f, vars) })
	}
}

// RunFlow executes f's steps in order and stops at the first step that
// fails. It returns the variables captured along the way.
func RunFlow(t *testing.T, handler http.Handler, f *Flow, seed Vars) Vars {
	t.Helper()
	c := &client{handler: handler, vars: Vars{}, jar: map[string]*http.Cookie{}}
	for k, v := range seed {
		c.vars[k] = v
	}

	for i, s := range f.Steps {
		name := s.Name
		if name == "" {
			name = strconv.Itoa(i)
		}
		if !c.step(t, name, s) {
			t.FailNow()
		}
	}
	return c.vars
}

type client struct {
	handler http.Handler
	vars    Vars
	jar     map[string]*http.Cookie
}

func (c *client) step(t *testing.T, name string, s Step) bool {
	t.Helper()

	url, err := Expand(s.URL, c.vars)
	if err != nil {
		t.Errorf("[%s] %v", name, err)
		return false
	}
	var body io.Reader
	if len(s.Body) > 0 {
		raw, err := Expand(string(s.Body), c.vars)
		if err != nil {
			t.Errorf("[%s] %v", name, err)
			return false
		}
		body = strings.NewReader(raw)
	}

	method := strings.ToUpper(s.Method)
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range s.Headers {
		expanded, err := Expand(v, c.vars)
		if err != nil {
			t.Errorf("[%s] %v", name, err)
			return false
		}
		req.Header.Set(k, expanded)
	}
	for _, ck := range c.jar {
		req.AddCookie(ck)
	}

	mt := NewMockTransport(s.Mocks)
	previous := bhttp.DefaultClient.Transport
	bhttp.DefaultClient.Transport = mt
	defer func() { bhttp.DefaultClient.Transport = previous }()

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	c.keepCookies(rec.Result().Cookies())

	ok := assert.Equal(t, s.ExpectedCode, rec.Code, "[%s] %s %s status\nbody: %s", name, method, url, rec.Body.String())
	if len(s.Expect) > 0 {
		expect, err := Expand(string(s.Expect), c.vars)
		if err != nil {
			t.Errorf("[%s] expect: %v", name, err)
			return false
		}
		ok = AssertSubset(t, name, []byte(expect), rec.Body.Bytes()) && ok
	}
	for _, m := range mt.Uncalled() {
		t.Errorf("[%s] mock %s was never called", name, m.MatchURL)
		ok = false
	}
	for _, u := range mt.Unmatched {
		t.Errorf("[%s] unexpected outbound call %s", name, u)
		ok = false
	}
	if !ok {
		return false
	}
	return c.capture(t, name, s.Capture, rec.Body.Bytes())
}

func (c *client) keepCookies(cookies []*http.Cookie) {
	for _, ck := range cookies {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(c.jar, ck.Name)
			continue
		}
		c.jar[ck.Name] = &http.Cookie{Name: ck.Name, Value: ck.Value}
	}
}

func (c *client) capture(t *testing.T, name string, captures map[string]string, body []byte) bool {
	t.Helper()
	if len(captures) == 0 {
		return true
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Errorf("[%s] capture: response is not JSON: %v", name, err)
		return false
	}
	for key, path := range captures {
		v, found := Lookup(doc, path)
		if !found {
			t.Errorf("[%s] capture %q: nothing at %q\nbody: %s", name, key, path, body)
			return false
		}
		c.vars[key] = scalar(v)
	}
	return true
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(x)
		return strings.TrimSpace(buf.String())
	}
}
