package testkit_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bhttp "github.com/shashiranjanraj/bunkar/pkg/http"
	"github.com/shashiranjanraj/bunkar/pkg/testkit"
)

// notes is a two-route API: creating a note starts a session, reading one
// requires it.
func notes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /notes", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Text string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "sid-1"})
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"n-1","text":"` + in.Text + `"}}`))
	})
	mux.HandleFunc("GET /notes/{id}", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("sid")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"no session"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"` + r.PathValue("id") + `","owner":"` + ck.Value + `"}}`))
	})
	mux.HandleFunc("GET /rate", func(w http.ResponseWriter, r *http.Request) {
		resp, err := bhttp.Get("https://rates.test/inr").Send()
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"message":"upstream"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":` + resp.Text() + `}`))
	})
	return mux
}

func TestRunDirKeepsCookiesAndCaptures(t *testing.T) {
	testkit.RunDir(t, notes(), "testdata", testkit.Vars{"text": "indigo"})
}

func TestRunFlowReturnsCapturedVars(t *testing.T) {
	f := &testkit.Flow{Name: "capture", Steps: []testkit.Step{{
		Method:       http.MethodPost,
		URL:          "/notes",
		Body:         json.RawMessage(`{"text":"madder"}`),
		ExpectedCode: http.StatusCreated,
		Capture:      map[string]string{"id": "data.id", "text": "data.text"},
	}}}

	vars := testkit.RunFlow(t, notes(), f, nil)
	assert.Equal(t, "n-1", vars["id"])
	assert.Equal(t, "madder", vars["text"])
}

func TestRunFlowExpandsCapturedVarsInExpect(t *testing.T) {
	f := &testkit.Flow{Name: "expect with vars", Steps: []testkit.Step{
		{
			Method:       http.MethodPost,
			URL:          "/notes",
			Body:         json.RawMessage(`{"text":"{{dye}}"}`),
			ExpectedCode: http.StatusCreated,
			Expect:       json.RawMessage(`{"data":{"text":"{{dye}}"}}`),
			Capture:      map[string]string{"note": "data.id"},
		},
		{
			URL:          "/notes/{{note}}",
			ExpectedCode: http.StatusOK,
			Expect:       json.RawMessage(`{"data":{"id":"{{note}}","owner":"sid-1"}}`),
		},
	}}

	vars := testkit.RunFlow(t, notes(), f, testkit.Vars{"dye": "indigo"})
	assert.Equal(t, "n-1", vars["note"])
}

func TestRunFlowAnswersOutboundCallsFromMocks(t *testing.T) {
	f := &testkit.Flow{Name: "mocked", Steps: []testkit.Step{{
		URL:          "/rate",
		ExpectedCode: http.StatusOK,
		Expect:       json.RawMessage(`{"data":{"rate":83.2}}`),
		Mocks: []testkit.MockStep{{
			Method:   http.MethodGet,
			MatchURL: "https://rates.test/",
			Body:     json.RawMessage(`{"rate":83.2}`),
		}},
	}}}
	testkit.RunFlow(t, notes(), f, nil)
}

func TestMockTransportRejectsUnmatchedCalls(t *testing.T) {
	mt := testkit.NewMockTransport([]testkit.MockStep{{MatchURL: "https://expected.test/"}})

	_, err := mt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://elsewhere.test/x", nil))
	require.Error(t, err)
	assert.Equal(t, []string{"GET https://elsewhere.test/x"}, mt.Unmatched)
	assert.Len(t, mt.Uncalled(), 1)

	resp, err := mt.RoundTrip(httptest.NewRequest(http.MethodPost, "https://expected.test/v1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, mt.Calls(0))
	assert.Empty(t, mt.Uncalled())
}

func TestMockTransportHonoursMethod(t *testing.T) {
	mt := testkit.NewMockTransport([]testkit.MockStep{{Method: http.MethodPost, MatchURL: "https://api.test/", Status: http.StatusTeapot}})

	_, err := mt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://api.test/a", nil))
	require.Error(t, err)

	resp, err := mt.RoundTrip(httptest.NewRequest(http.MethodPost, "https://api.test/a", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestSubset(t *testing.T) {
	var act any
	require.NoError(t, json.Unmarshal([]byte(`{"a":1,"b":{"c":"x","d":[1,2]},"e":null}`), &act))

	cases := []struct {
		name  string
		exp   string
		diffs int
	}{
		{"extra actual keys ignored", `{"a":1}`, 0},
		{"nested match", `{"b":{"d":[1,2]}}`, 0},
		{"wildcard", `{"b":"*"}`, 0},
		{"wildcard rejects null", `{"e":"*"}`, 1},
		{"missing key", `{"z":1}`, 1},
		{"wrong value", `{"a":2}`, 1},
		{"array length", `{"b":{"d":[1]}}`, 1},
		{"type mismatch", `{"a":{"x":1}}`, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var exp any
			require.NoError(t, json.Unmarshal([]byte(tc.exp), &exp))
			assert.Len(t, testkit.Subset("", exp, act), tc.diffs)
		})
	}
}

func TestLookup(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"items":[{"id":"p-1"},{"id":"p-2"}]}}`), &doc))

	v, ok := testkit.Lookup(doc, "data.items.1.id")
	assert.True(t, ok)
	assert.Equal(t, "p-2", v)

	_, ok = testkit.Lookup(doc, "data.items.5.id")
	assert.False(t, ok)
	_, ok = testkit.Lookup(doc, "data.missing")
	assert.False(t, ok)
}

func TestExpand(t *testing.T) {
	out, err := testkit.Expand("/api/orders/{{ order }}/verify", map[string]string{"order": "o-9"})
	require.NoError(t, err)
	assert.Equal(t, "/api/orders/o-9/verify", out)

	_, err = testkit.Expand("/api/orders/{{order}}", nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), `"order"`))
}

func TestLoadFlowRejectsEmptyFlows(t *testing.T) {
	path := t.TempDir() + "/empty.json"
	require.NoError(t, writeFile(path, `{"name":"empty","steps":[]}`))

	_, err := testkit.LoadFlow(path)
	require.Error(t, err)
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o600)
}
