package invoke

import "iter"

// jsonObjectSpans yields candidate top-level {...} spans of text in order.
// Depth is tracked outside string literals only, so braces inside quoted
// values do not end a span. An unterminated span yields nothing.
func jsonObjectSpans(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		depth := 0
		start := -1
		inString := false
		escaped := false

		for i := 0; i < len(text); i++ {
			ch := text[i]

			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}

			switch ch {
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
				if depth == 0 {
					continue
				}
				depth--
				if depth == 0 {
					if !yield(text[start : i+1]) {
						return
					}
					start = -1
				}
			}
		}
	}
}
