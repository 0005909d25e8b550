package ai

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const maxExcerptBytes = 800

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// ParseJSONLoose extracts a JSON value from free-form model output.
//
// Strategies, first success wins: the text as-is, the interior of the first
// fenced code block that parses, the widest balanced {...} span that parses,
// the widest balanced [...] span that parses.
func ParseJSONLoose(text string) (json.RawMessage, error) {
	payload := strings.TrimSpace(text)

	if payload != "" && json.Valid([]byte(payload)) {
		return json.RawMessage(payload), nil
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(payload, -1) {
		inner := strings.TrimSpace(m[1])
		if inner != "" && json.Valid([]byte(inner)) {
			return json.RawMessage(inner), nil
		}
	}

	if candidate, ok := widestSpan(payload, '{', '}'); ok {
		return candidate, nil
	}
	if candidate, ok := widestSpan(payload, '[', ']'); ok {
		return candidate, nil
	}

	return nil, &JSONParseError{Excerpt: truncateString(payload, maxExcerptBytes)}
}

func widestSpan(s string, open, close byte) (json.RawMessage, bool) {
	var spans []string
	for start := 0; start < len(s); start++ {
		if s[start] != open {
			continue
		}
		end, ok := matchBracket(s, start, open, close)
		if !ok {
			continue
		}
		spans = append(spans, s[start:end+1])
	}
	sort.SliceStable(spans, func(i, j int) bool { return len(spans[i]) > len(spans[j]) })
	for _, span := range spans {
		if json.Valid([]byte(span)) {
			return json.RawMessage(span), true
		}
	}
	return nil, false
}

// matchBracket returns the index of the close byte that balances the open byte
// at s[start]. Brackets inside string literals are ignored.
func matchBracket(s string, start int, open, close byte) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
