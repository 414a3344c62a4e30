package appstore

import (
	"context"
	"fmt"
)

const defaultFeedBuffer = 64

// Feed is the live transaction-update stream. The webhook handler
// pushes signed records in; the entitlement listener consumes them.
type Feed struct {
	ch chan SignedRecord
}

// NewFeed creates a Feed with the default buffer.
func NewFeed() *Feed {
	return &Feed{ch: make(chan SignedRecord, defaultFeedBuffer)}
}

// Push queues a signed record for the listener. It fails rather than
// blocking indefinitely when the listener has fallen behind; the App
// Store redelivers unacknowledged notifications.
func (f *Feed) Push(ctx context.Context, rec SignedRecord) error {
	select {
	case f.ch <- rec:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("push transaction update: %w", ctx.Err())
	}
}

// Updates returns the consumer side of the feed.
func (f *Feed) Updates() <-chan SignedRecord {
	return f.ch
}
