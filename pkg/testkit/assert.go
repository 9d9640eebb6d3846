package testkit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Wildcard in an expected document matches any present value.
const Wildcard = "*"

// AssertSubset fails t when expected is not contained in the actual JSON
// body. Objects match when every expected key matches; arrays match
// element by element and must have the same length.
func AssertSubset(t *testing.T, step string, expected, actual []byte) bool {
	t.Helper()
	if len(expected) == 0 {
		return true
	}

	var exp, act any
	if err := json.Unmarshal(expected, &exp); err != nil {
		t.Errorf("[%s] expect is not valid JSON: %v", step, err)
		return false
	}
	if err := json.Unmarshal(actual, &act); err != nil {
		t.Errorf("[%s] response is not valid JSON: %v\nbody: %s", step, err, actual)
		return false
	}

	diffs := Subset("", exp, act)
	for _, d := range diffs {
		t.Errorf("[%s] %s", step, d)
	}
	if len(diffs) > 0 {
		t.Logf("[%s] body: %s", step, actual)
	}
	return len(diffs) == 0
}

// Subset returns one line per mismatch between exp and act.
func Subset(path string, exp, act any) []string {
	if s, ok := exp.(string); ok && s == Wildcard {
		if act == nil {
			return []string{fmt.Sprintf("%s: expected a value, got null", at(path))}
		}
		return nil
	}

	switch e := exp.(type) {
	case map[string]any:
		a, ok := act.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected object, got %T", at(path), act)}
		}
		var diffs []string
		for k, ev := range e {
			av, present := a[k]
			if !present {
				diffs = append(diffs, fmt.Sprintf("%s: missing", join(path, k)))
				continue
			}
			diffs = append(diffs, Subset(join(path, k), ev, av)...)
		}
		return diffs
	case []any:
		a, ok := act.([]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected array, got %T", at(path), act)}
		}
		if len(e) != len(a) {
			return []string{fmt.Sprintf("%s: expected %d elements, got %d", at(path), len(e), len(a))}
		}
		var diffs []string
		for i := range e {
			diffs = append(diffs, Subset(join(path, strconv.Itoa(i)), e[i], a[i])...)
		}
		return diffs
	default:
		if !assert.ObjectsAreEqual(exp, act) {
			return []string{fmt.Sprintf("%s: expected %v, got %v", at(path), exp, act)}
		}
		return nil
	}
}

// Lookup walks a dotted path ("data.items.0.id") through a decoded JSON
// document.
func Lookup(doc any, path string) (any, bool) {
	cur := doc
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func at(path string) string {
	if path == "" {
		return "body"
	}
	return path
}
