// Package trigger defines the persisted trigger-response model shared by the
// matching engine and the storage drivers.
package trigger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store-level sentinels. Drivers return these so callers can branch with
// errors.Is without knowing which backend is configured.
var (
	ErrExists   = errors.New("trigger already exists")
	ErrNotFound = errors.New("trigger not found")
)

// ResponseType determines how a stored response is delivered.
type ResponseType string

const (
	TypeText  ResponseType = "text"
	TypeImage ResponseType = "image"
	TypeFile  ResponseType = "file"
)

func (t ResponseType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile:
		return true
	}
	return false
}

func ParseResponseType(s string) (ResponseType, error) {
	t := ResponseType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown response type %q", s)
	}
	return t, nil
}

// ClassifyAttachment maps an attachment's MIME type to a response type.
// Anything that does not declare an image/* MIME type (including an absent
// one) is stored as a plain file.
func ClassifyAttachment(contentType string) ResponseType {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.HasPrefix(ct, "image/") {
		return TypeImage
	}
	return TypeFile
}

// Key canonicalizes a trigger phrase to its storage key.
// Triggers are unique by lowercase value.
func Key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Record is the sole persisted entity: one trigger phrase and its response.
//
// Invariants:
//   - Trigger holds the lowercase key (see Key) and is unique in the store.
//   - Response is either literal reply text (TypeText) or a platform file
//     reference / URL (TypeImage, TypeFile).
//   - CreatedAt is set once on insert and never changes.
//   - UpdatedAt stays zero until the record is first edited.
type Record struct {
	Trigger   string       `json:"trigger"`
	Response  string       `json:"response"`
	Type      ResponseType `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at,omitzero"`
}

// Update carries the mutable fields of a Record for an edit.
type Update struct {
	Response  string       `json:"response"`
	Type      ResponseType `json:"type"`
	UpdatedAt time.Time    `json:"updated_at"`
}
