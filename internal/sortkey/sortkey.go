// Package sortkey implements the deterministic byte-sequence encoding the
// catalog uses for SortMap.sort_key and every entity's grouping_key column.
package sortkey

// Encode uppercases text and maps each letter to a 1-26 byte, space to
// 0x04 and '/' to 0x0A. Any other character is dropped. The result is
// both SortMap.sort_key and an entity's grouping_key.
func Encode(text string) []byte {
	upper := []byte(toUpper(text))
	out := make([]byte, 0, len(upper))
	for _, c := range upper {
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c-'A'+1)
		case c == ' ':
			out = append(out, 0x04)
		case c == '/':
			out = append(out, 0x0A)
		}
	}
	return out
}

// toUpper uppercases ASCII letters only; the encoder drops everything
// outside A-Z/space/slash anyway, so non-ASCII input simply yields fewer
// bytes, matching the "stable across platforms" requirement without
// locale-aware casing.
func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
