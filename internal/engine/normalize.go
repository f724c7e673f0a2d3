package engine

import "strings"

// punctReplacer folds the Unicode punctuation variants chat clients like to
// auto-insert into their ASCII equivalents, so quoting and command prefixes
// work no matter which keyboard produced the text.
var punctReplacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"—", "--", // em dash
	"–", "--", // en dash
)

// Normalize canonicalizes smart quotes and dashes and trims surrounding
// whitespace. It is total and idempotent; ASCII-only input passes through
// unchanged (modulo trimming).
func Normalize(text string) string {
	return strings.TrimSpace(punctReplacer.Replace(text))
}
