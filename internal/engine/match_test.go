package engine

import (
	"testing"

	"quipbot/internal/trigger"
)

func TestMatch(t *testing.T) {
	t.Parallel()

	stored := []trigger.Record{
		{Trigger: "hello", Response: "hi there", Type: trigger.TypeText},
		{Trigger: "bye", Response: "see you", Type: trigger.TypeText},
		{Trigger: "cat pic", Response: "file-id-1", Type: trigger.TypeImage},
	}

	cases := []struct {
		name string
		text string
		want []string
	}{
		{"single substring hit", "well hello friend", []string{"hello"}},
		{"case folded", "HELLO", []string{"hello"}},
		{"no hit", "nothing matches", nil},
		{"multiple hits keep store order", "hello and bye", []string{"hello", "bye"}},
		{"multiword trigger", "send a cat pic please", []string{"cat pic"}},
		{"substring inside word", "othello", []string{"hello"}},
		{"empty message", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Match(tc.text, stored)
			if len(got) != len(tc.want) {
				t.Fatalf("Match(%q) returned %d records, want %d", tc.text, len(got), len(tc.want))
			}
			for i, r := range got {
				if r.Trigger != tc.want[i] {
					t.Fatalf("Match(%q)[%d] = %q, want %q", tc.text, i, r.Trigger, tc.want[i])
				}
			}
		})
	}
}

func TestMatchEmptyStore(t *testing.T) {
	t.Parallel()

	if got := Match("anything", nil); len(got) != 0 {
		t.Fatalf("expected no matches against an empty store, got %d", len(got))
	}
}
