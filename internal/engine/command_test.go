package engine

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		in       string
		wantKind CommandKind
		wantRest string
	}{
		{"help", "--help", CmdHelp, ""},
		{"list", "--list", CmdList, ""},
		{"add", `--add "a" "b"`, CmdAdd, `"a" "b"`},
		{"remove", `--remove "a"`, CmdRemove, `"a"`},
		{"edit", `--edit "a" "b"`, CmdEdit, `"a" "b"`},
		{"uppercase prefix", `--ADD "a" "b"`, CmdAdd, `"a" "b"`},
		{"mixed case", "--Help", CmdHelp, ""},
		{"plain text", "hello there", CmdPlainText, "hello there"},
		{"dashes inside text", "well -- that is fine", CmdPlainText, "well -- that is fine"},
		{"prefix must lead", `say --list`, CmdPlainText, `say --list`},
		{"empty", "", CmdPlainText, ""},
		{"glued suffix still add", "--addendum", CmdAdd, "endum"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, rest := Classify(tc.in)
			if kind != tc.wantKind || rest != tc.wantRest {
				t.Fatalf("Classify(%q) = (%q, %q), want (%q, %q)", tc.in, kind, rest, tc.wantKind, tc.wantRest)
			}
		})
	}
}

func TestClassifyAfterNormalize(t *testing.T) {
	t.Parallel()

	// Em-dash typed by a smart keyboard normalizes into a command prefix.
	kind, _ := Classify(Normalize("—list"))
	if kind != CmdList {
		t.Fatalf("normalized em-dash prefix classified as %q, want %q", kind, CmdList)
	}
}

func TestCommandKindMutating(t *testing.T) {
	t.Parallel()

	for _, k := range []CommandKind{CmdAdd, CmdRemove, CmdEdit} {
		if !k.Mutating() {
			t.Fatalf("%q should be mutating", k)
		}
	}
	for _, k := range []CommandKind{CmdHelp, CmdList, CmdPlainText} {
		if k.Mutating() {
			t.Fatalf("%q should not be mutating", k)
		}
	}
}
