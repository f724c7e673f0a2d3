package engine

import "strings"

// CommandKind classifies an incoming message.
type CommandKind string

const (
	CmdHelp      CommandKind = "help"
	CmdList      CommandKind = "list"
	CmdAdd       CommandKind = "add"
	CmdRemove    CommandKind = "remove"
	CmdEdit      CommandKind = "edit"
	CmdPlainText CommandKind = "plain"
)

// Mutating reports whether the command changes the trigger set.
func (k CommandKind) Mutating() bool {
	return k == CmdAdd || k == CmdRemove || k == CmdEdit
}

// commandPrefixes is checked in this exact order. Order matters only for
// documentation of intent (the five prefixes are mutually exclusive), but
// keeping it fixed makes classification deterministic.
var commandPrefixes = []struct {
	prefix string
	kind   CommandKind
}{
	{"--help", CmdHelp},
	{"--list", CmdList},
	{"--add", CmdAdd},
	{"--remove", CmdRemove},
	{"--edit", CmdEdit},
}

// Classify matches a recognized command prefix (case-insensitively) against
// normalized message text and returns the kind plus the text remaining after
// the prefix. Messages without a command prefix are plain text, candidates
// for trigger matching. Classify never extracts quoted arguments itself.
func Classify(text string) (CommandKind, string) {
	for _, c := range commandPrefixes {
		if len(text) >= len(c.prefix) && strings.EqualFold(text[:len(c.prefix)], c.prefix) {
			return c.kind, strings.TrimSpace(text[len(c.prefix):])
		}
	}
	return CmdPlainText, text
}
