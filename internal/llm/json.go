package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object or array out of an LLM reply. Backends
// without a structured-output mode tend to wrap JSON in markdown fences or
// surround it with prose; both are stripped here.
func ExtractJSON(reply string) (string, error) {
	reply = strings.TrimSpace(reply)

	if fenced, ok := extractFenced(reply); ok {
		return fenced, nil
	}
	if raw, ok := extractBalanced(reply, '{', '}'); ok {
		return raw, nil
	}
	if raw, ok := extractBalanced(reply, '[', ']'); ok {
		return raw, nil
	}
	return "", fmt.Errorf("no JSON found in reply")
}

func extractFenced(reply string) (string, bool) {
	for _, tag := range []string{"```json", "```"} {
		start := strings.Index(reply, tag)
		if start < 0 {
			continue
		}
		rest := reply[start+len(tag):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		content := strings.TrimSpace(rest[:end])
		if json.Valid([]byte(content)) {
			return content, true
		}
	}
	return "", false
}

func extractBalanced(reply string, open, close byte) (string, bool) {
	start := strings.IndexByte(reply, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				candidate := reply[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}
