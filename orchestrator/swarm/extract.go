// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package swarm

import "encoding/json"

// ExtractJSON finds the first balanced {...} substring in text and
// parses it. Models often wrap their JSON in prose or code fences; this
// tolerates any surrounding text. Returns InvalidResponseFormatError
// when no parseable object exists.
func ExtractJSON(text string) (map[string]interface{}, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if start == -1 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					var parsed map[string]interface{}
					if err := json.Unmarshal([]byte(text[start:i+1]), &parsed); err != nil {
						return nil, &InvalidResponseFormatError{Raw: text}
					}
					return parsed, nil
				}
			}
		}
	}
	return nil, &InvalidResponseFormatError{Raw: text}
}
