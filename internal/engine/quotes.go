package engine

// ExtractQuoted scans text left to right and returns the contents of every
// quote-delimited run, in order of appearance, without deduplication.
//
// Any quote character opens a run and the nearest following quote character
// closes it, so mixed delimiters like `'a"` still yield "a". Smart quotes
// are accepted via normalization. A dangling quote yields no match; zero
// matches return an empty slice, never an error.
func ExtractQuoted(text string) []string {
	s := Normalize(text)

	var out []string
	open := -1
	for i := 0; i < len(s); i++ {
		if s[i] != '"' && s[i] != '\'' {
			continue
		}
		if open < 0 {
			open = i + 1
			continue
		}
		out = append(out, s[open:i])
		open = -1
	}
	return out
}
