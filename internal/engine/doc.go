// Package engine implements the trigger-response core: text normalization,
// quoted-string extraction, command classification, substring matching and
// the command executor that mutates the trigger store.
//
// Everything here is synchronous and side-effect free except for the
// injected Store; the chat transport never leaks into this package.
package engine
