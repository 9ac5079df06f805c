package queue

import (
	"context"
	"time"

	"github.com/ternarybob/datapilot/internal/models"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = models.ErrNoMessage

// Message is an alias for models.QueueMessage within the queue package
type Message = models.QueueMessage

// Receipt identifies one claimed delivery of a message. Ack deletes the
// message; MessageID lets the holder extend its visibility lease while
// processing runs long.
type Receipt struct {
	MessageID string
	Ack       func() error
}

// Manager is the queue contract the worker loop polls. Receive returns
// the next visible message plus its receipt; an unacknowledged message
// becomes visible again after the visibility timeout unless Extend
// renews the lease. A non-positive Extend duration renews by the
// configured visibility timeout.
type Manager interface {
	Enqueue(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (*Message, *Receipt, error)
	Extend(ctx context.Context, messageID string, duration time.Duration) error
	Close() error
}
