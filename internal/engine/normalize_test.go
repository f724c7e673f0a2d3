package engine

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ascii identity", `--add "hello" "hi"`, `--add "hello" "hi"`},
		{"smart double quotes", "“hello”", `"hello"`},
		{"smart single quotes", "‘it’s’", "'it's'"},
		{"em dash to double hyphen", "—add", "--add"},
		{"en dash to double hyphen", "–list", "--list"},
		{"trims whitespace", "  hello \n", "hello"},
		{"mixed", " “a” — ‘b’ ", `"a" -- 'b'`},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.in)
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
			// Normalizing the result must be a no-op.
			if again := Normalize(got); again != got {
				t.Fatalf("Normalize not idempotent: %q -> %q", got, again)
			}
		})
	}
}
