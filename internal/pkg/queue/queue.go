package queue

import (
	"context"
	"time"
)

// QueueClient defines the interface for a queue backend (SQS, Redis, in-memory).
type QueueClient interface {
	// CreateIfNotExists creates the queue when it is absent. Calling it again is a no-op.
	CreateIfNotExists(ctx context.Context) error
	// Send appends a message body to the tail of the queue.
	Send(ctx context.Context, body string) (SendReceipt, error)
	// Peek returns the head message without hiding it from other consumers.
	Peek(ctx context.Context) (*PeekedMessage, error)
	// Receive returns the head message and hides it for the visibility timeout.
	Receive(ctx context.Context) (*ReceivedMessage, error)
	// Delete permanently removes a received message.
	Delete(ctx context.Context, messageID, popReceipt string) error
	// Close releases the underlying connection.
	Close() error
}

// Options are shared by every backend.
type Options struct {
	QueueName         string
	VisibilityTimeout time.Duration // how long a received message stays hidden
	MessageTTL        time.Duration // how long a message lives in the queue
}

// SendReceipt is returned by a successful Send.
type SendReceipt struct {
	MessageID  string
	InsertedOn time.Time
	ExpiresOn  time.Time
}

// PeekedMessage is a read-only view of the head message. It carries no pop receipt.
type PeekedMessage struct {
	MessageID  string
	InsertedOn time.Time
	ExpiresOn  time.Time
	Body       string
}

// ReceivedMessage is a message hidden from other consumers until NextVisibleOn.
type ReceivedMessage struct {
	MessageID     string
	PopReceipt    string
	InsertedOn    time.Time
	ExpiresOn     time.Time
	NextVisibleOn time.Time
	DequeueCount  int64
	Body          string
}

const (
	DefaultQueueName         = "newsqueue"
	DefaultVisibilityTimeout = 30 * time.Second
	DefaultMessageTTL        = 7 * 24 * time.Hour
)

// WithDefaults fills zero fields with the package defaults.
func (o Options) WithDefaults() Options {
	if o.QueueName == "" {
		o.QueueName = DefaultQueueName
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if o.MessageTTL <= 0 {
		o.MessageTTL = DefaultMessageTTL
	}
	return o
}
