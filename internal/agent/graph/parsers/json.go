package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	errx "github.com/avaestate/ava-agent/internal/core/error"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024 // 128KB
	maxCandidates = 32
	maxErrSnippet = 200
)

// ErrNoJSONObject is returned when the text holds no well-formed JSON object.
var ErrNoJSONObject = fmt.Errorf("no json object found")

// findJSONCandidates returns every balanced top-level {...} span of s,
// skipping braces inside string literals. ASCII delimiters never occur inside
// multi-byte UTF-8 sequences so scanning bytes is safe.
func findJSONCandidates(s string) []string {
	var candidates []string
	depth := 0
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		b := s[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
					if len(candidates) >= maxCandidates {
						return candidates
					}
				}
			}
		}
	}
	return candidates
}

// stripFences removes a surrounding ```json ... ``` block when present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	rest := s[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		lang := strings.TrimSpace(rest[:nl])
		if lang == "" || !strings.ContainsAny(lang, "{}") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// FindJSONObject locates the first well-formed JSON object in free text and
// decodes it into a generic map. Prose and code fences around the object are
// tolerated. When no balanced candidate decodes, the greedy span from the
// first '{' to the last '}' is tried before giving up.
func FindJSONObject(content string) (obj map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "json_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("json parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			obj = nil
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "json_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}

	for _, text := range []string{stripFences(content), content} {
		for _, c := range findJSONCandidates(text) {
			var m map[string]any
			if json.Unmarshal([]byte(c), &m) == nil {
				return m, nil
			}
		}
	}

	first := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if first >= 0 && last > first {
		var m map[string]any
		if json.Unmarshal([]byte(content[first:last+1]), &m) == nil {
			return m, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoJSONObject, safeSnippet(content))
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet] + "..."
}
