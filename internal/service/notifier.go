package service

import "context"

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Notifier delivers a message to a single recipient. Implementations are
// expected to bound the send with their own timeout; a failure never leaves
// partial state behind.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
