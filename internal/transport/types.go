package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
	Attachments  []Attachment
}

// Attachment is a platform file reference plus what the platform declared
// about the file. ContentType may be empty when the platform did not say.
type Attachment struct {
	Ref         string
	ContentType string
	FileName    string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	DisablePreview bool
	Silent         bool
}

// FileRef names a stored response file. Ref is an adapter-specific file
// reference or an http(s) URL. AsPhoto asks the adapter to render the file
// inline as an image where the platform distinguishes the two.
type FileRef struct {
	Ref     string
	AsPhoto bool
	Caption string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendFile(ctx context.Context, to ChatTarget, file FileRef, opt *SendOptions) (MessageRef, error)
}
