package kafka

import (
	"time"
)

// NewPublisherWithWriter exposes the writer seam to tests.
func NewPublisherWithWriter(w messageWriter, timeout time.Duration) *Publisher {
	return newPublisher(w, timeout)
}

// MessageWriter exposes the writer interface to tests.
type MessageWriter = messageWriter
