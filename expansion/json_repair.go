// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expansion

import (
	"strings"
	"unicode"
)

// repairJSON attempts to fix common JSON formatting slips in model responses:
// typographic quotes, trailing commas, a key missing its opening quote,
// trailing prose after the value, and a response cut off mid-array.
func repairJSON(s string) string {
	s = strings.NewReplacer("“", `"`, "”", `"`).Replace(s)
	s = trimAfterValue(s)

	runes := []rune(s)
	fixed := make([]rune, 0, len(runes)+8)
	inString := false

	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if inString {
			fixed = append(fixed, ch)
			if ch == '\\' && i+1 < len(runes) {
				i++
				fixed = append(fixed, runes[i])
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			fixed = append(fixed, ch)
		case ',':
			// Drop a comma that only precedes a closing bracket
			j := skipSpace(runes, i+1)
			if j < len(runes) && (runes[j] == ']' || runes[j] == '}') {
				continue
			}
			fixed = append(fixed, ch)
			fixed, i = quoteKey(runes, fixed, i+1)
		case '{':
			fixed = append(fixed, ch)
			fixed, i = quoteKey(runes, fixed, i+1)
		default:
			fixed = append(fixed, ch)
		}
	}

	return closeTruncated(string(fixed), inString)
}

// quoteKey copies whitespace after '{' or ',' and, when it finds a bare word
// followed by `":`, emits the missing opening quote. Example: `, type":` ->
// `, "type":`. It returns the extended output and the index of the last
// consumed rune.
func quoteKey(runes, fixed []rune, i int) ([]rune, int) {
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		fixed = append(fixed, runes[i])
		i++
	}
	if i >= len(runes) || !isLetter(runes[i]) {
		return fixed, i - 1
	}

	end := i
	for end < len(runes) && (isLetter(runes[end]) || runes[end] == '_') {
		end++
	}
	if end+1 < len(runes) && runes[end] == '"' && runes[end+1] == ':' {
		fixed = append(fixed, '"')
		fixed = append(fixed, runes[i:end+1]...)
		return fixed, end
	}
	fixed = append(fixed, runes[i:end]...)
	return fixed, end - 1
}

// trimAfterValue drops prose after the closing bracket of the top-level value.
func trimAfterValue(s string) string {
	if s == "" {
		return s
	}
	closer := byte(']')
	if s[0] == '{' {
		closer = '}'
	}
	if end := strings.LastIndexByte(s, closer); end >= 0 {
		return s[:end+1]
	}
	return s
}

// closeTruncated finishes an array cut off by a token limit, discarding the
// partial element.
func closeTruncated(s string, inString bool) string {
	if !strings.HasPrefix(s, "[") || strings.HasSuffix(strings.TrimSpace(s), "]") {
		return s
	}
	if inString {
		if last := strings.LastIndexByte(s, '"'); last >= 0 {
			s = s[:last]
		}
	}
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	if strings.HasSuffix(s, `"`) || s == "[" {
		return s + "]"
	}
	return s
}

func skipSpace(runes []rune, i int) int {
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}
