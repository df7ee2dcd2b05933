package match

import "strings"

// Typographic forms that text cleanup pipelines commonly swap in for their
// ASCII equivalents. Each is replaced by the ASCII char padded to the same
// byte length, so offsets into the normalized string remain valid offsets
// into the original.
var foldReplacer = strings.NewReplacer(
	"‘", "'  ", "’", "'  ",
	"“", "\"  ", "”", "\"  ",
	"–", "-  ", "—", "-  ",
	" ", "  ",
)

// normalizeFuzzy lowercases, folds whitespace variants to plain spaces and
// straightens quotes/dashes. Length-preserving: the fuzzy tiers compare
// normalized text but report offsets into the raw haystack.
func normalizeFuzzy(s string) string {
	s = foldReplacer.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\t' || c == '\n' || c == '\r':
			b.WriteByte(' ')
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + ('a' - 'A'))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
