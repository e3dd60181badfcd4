// Package transport defines the chat-platform boundary: an inbound update
// stream plus post/edit render operations. The bridge core only ever sees
// these interfaces; the telegram subpackage provides the production
// implementation.
package transport

import (
	"context"
	"errors"
)

// ErrGone is returned by Edit when the target message no longer exists or is
// inaccessible. Callers fall back to posting a fresh message.
var ErrGone = errors.New("message gone")

// MessageRef identifies one message on the chat platform.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// Update is one inbound message from the chat platform. TopicID is the
// platform's thread hint (0 for the general surface); the workspace config
// maps it to a ThreadID.
type Update struct {
	TopicID     int64
	MessageID   int64
	Text        string
	ReplyToID   int64
	ReplyToText string
}

// Transport is the chat-platform client surface consumed by the bridge.
type Transport interface {
	// Updates returns the inbound update stream. The channel closes when ctx
	// is cancelled or the stream fails permanently.
	Updates(ctx context.Context) <-chan Update

	// Post sends a new message to the given topic.
	Post(ctx context.Context, topicID int64, text string) (MessageRef, error)

	// Edit replaces the text of a previously posted message. Returns ErrGone
	// if the message was deleted or cannot be edited.
	Edit(ctx context.Context, ref MessageRef, text string) error
}
