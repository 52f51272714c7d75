package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when content holds no decodable JSON, either bare
// or inside a markdown code fence.
var ErrParseFailed = errors.New("failed to parse JSON content")

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

const snippetLimit = 200

// ParseJSON decodes content into T. Model replies often wrap their JSON in a
// fenced block, so the fenced body is tried when the content itself fails.
func ParseJSON[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}

	if m := fencePattern.FindStringSubmatch(content); len(m) >= 2 {
		var fenced T
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &fenced); err == nil {
			return fenced, nil
		}
	}

	snippet := content
	if len(snippet) > snippetLimit {
		snippet = snippet[:snippetLimit] + "..."
	}
	return result, fmt.Errorf("%w: %q", ErrParseFailed, snippet)
}
