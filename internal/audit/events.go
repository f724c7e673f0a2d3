// Package audit records every management command as a structured trail in
// the configured store. The bot publishes CommandEvent values on the event
// bus; the Recorder consumes them and persists one audit row each, so a
// slow or failing store never blocks command handling.
package audit

import "time"

// TypeCommand is the event bus type for executed management commands.
const TypeCommand = "bot.command"

// CommandEvent describes one executed (or rejected) management command.
type CommandEvent struct {
	At            time.Time
	ActorID       int64
	ActorUsername string
	ChatID        int64
	Command       string
	Target        string
	OK            bool
	Error         string
	Took          time.Duration
}
