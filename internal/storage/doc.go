// Package storage persists trigger records and the operator audit log.
//
// Three drivers share one contract:
//   - sqlite: single database file, the default
//   - file: snapshot + jsonl journal, no database involved
//   - memory: process-local, for tests
package storage
