package library

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract returns the string value at path in a JSON body. Paths may be
// written as JSONPath ("$.book.id", "$.authorId[0]") or gjson ("book.id").
func Extract(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty JSON body")
	}
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid JSON body")
	}

	result := gjson.GetBytes(body, toGjsonPath(path))
	if !result.Exists() || result.Type == gjson.Null {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if s := result.String(); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("empty value at %s", path)
}

// toGjsonPath converts a JSONPath expression to gjson syntax.
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	// ['name'] and ["name"] -> .name
	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "").Replace(path)
	// [n] -> .n
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	return strings.TrimPrefix(path, ".")
}
