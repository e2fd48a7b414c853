package performance

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/libload/internal/http"
)

// Check is a named boolean assertion on a response. A failed check is
// recorded but never aborts the run.
type Check struct {
	Name string
	Fn   func(*http.Result) bool
}

// NewCheck creates a named check.
func NewCheck(name string, fn func(*http.Result) bool) Check {
	return Check{Name: name, Fn: fn}
}

// StatusIn passes when the response status is one of codes.
// The check name reads like "status is 200 or 201".
func StatusIn(codes ...int) Check {
	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = fmt.Sprintf("%d", code)
	}
	return Check{
		Name: "status is " + strings.Join(parts, " or "),
		Fn: func(r *http.Result) bool {
			for _, code := range codes {
				if r.StatusCode == code {
					return true
				}
			}
			return false
		},
	}
}

// JSONHas passes when the body is valid JSON with a non-empty value at path.
// Paths use gjson syntax, e.g. "book.id".
func JSONHas(path string) Check {
	return Check{
		Name: "body has " + path,
		Fn: func(r *http.Result) bool {
			if !gjson.ValidBytes(r.Body) {
				return false
			}
			v := gjson.GetBytes(r.Body, path)
			return v.Exists() && v.String() != ""
		},
	}
}

// JSONEquals passes when the value at path equals want.
func JSONEquals(path, want string) Check {
	return Check{
		Name: fmt.Sprintf("%s is %s", path, want),
		Fn: func(r *http.Result) bool {
			return gjson.GetBytes(r.Body, path).String() == want
		},
	}
}
