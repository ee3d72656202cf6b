package memoryQueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsqueue/internal/pkg/queue"
)

type entry struct {
	id           string
	body         string
	receipt      string
	insertedOn   time.Time
	expiresOn    time.Time
	visibleOn    time.Time
	dequeueCount int64
}

// MemoryActions is an in-process queue with the same visibility semantics as the hosted backends.
type MemoryActions struct {
	Config *queue.Options
	Now    func() time.Time // clock, replaceable in tests

	mu       sync.Mutex
	created  bool
	messages []*entry
}

var _ queue.QueueClient = (*MemoryActions)(nil)

// New creates a new MemoryActions instance.
func New(opts queue.Options) *MemoryActions {
	opts = opts.WithDefaults()
	return &MemoryActions{Config: &opts, Now: time.Now}
}

// CreateIfNotExists marks the queue as created.
func (q *MemoryActions) CreateIfNotExists(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.created = true
	return nil
}

// Send appends a message to the tail of the queue.
func (q *MemoryActions) Send(ctx context.Context, body string) (queue.SendReceipt, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.created {
		return queue.SendReceipt{}, queue.ErrQueueNotFound
	}

	now := q.Now()
	e := &entry{
		id:         uuid.NewString(),
		body:       body,
		insertedOn: now,
		expiresOn:  now.Add(q.Config.MessageTTL),
		visibleOn:  now,
	}
	q.messages = append(q.messages, e)

	return queue.SendReceipt{MessageID: e.id, InsertedOn: e.insertedOn, ExpiresOn: e.expiresOn}, nil
}

// Peek returns the first visible message without changing its visibility.
func (q *MemoryActions) Peek(ctx context.Context) (*queue.PeekedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.head()
	if err != nil {
		return nil, err
	}
	return &queue.PeekedMessage{
		MessageID:  e.id,
		InsertedOn: e.insertedOn,
		ExpiresOn:  e.expiresOn,
		Body:       e.body,
	}, nil
}

// Receive hides the first visible message for the visibility timeout and issues a new pop receipt.
func (q *MemoryActions) Receive(ctx context.Context) (*queue.ReceivedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.head()
	if err != nil {
		return nil, err
	}

	e.receipt = uuid.NewString()
	e.visibleOn = q.Now().Add(q.Config.VisibilityTimeout)
	e.dequeueCount++

	return &queue.ReceivedMessage{
		MessageID:     e.id,
		PopReceipt:    e.receipt,
		InsertedOn:    e.insertedOn,
		ExpiresOn:     e.expiresOn,
		NextVisibleOn: e.visibleOn,
		DequeueCount:  e.dequeueCount,
		Body:          e.body,
	}, nil
}

// Delete removes a message when the pop receipt matches the latest receive.
func (q *MemoryActions) Delete(ctx context.Context, messageID, popReceipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.created {
		return queue.ErrQueueNotFound
	}

	for i, e := range q.messages {
		if e.id != messageID {
			continue
		}
		if e.receipt == "" || e.receipt != popReceipt {
			return queue.ErrMessageNotFound
		}
		q.messages = append(q.messages[:i], q.messages[i+1:]...)
		return nil
	}
	return queue.ErrMessageNotFound
}

// Close is a no-op.
func (q *MemoryActions) Close() error {
	return nil
}

// Len returns the number of live messages, visible or not.
func (q *MemoryActions) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dropExpired(q.Now())
	return len(q.messages)
}

// head must be called with mu held.
func (q *MemoryActions) head() (*entry, error) {
	if !q.created {
		return nil, queue.ErrQueueNotFound
	}

	now := q.Now()
	q.dropExpired(now)
	for _, e := range q.messages {
		if !e.visibleOn.After(now) {
			return e, nil
		}
	}
	return nil, queue.ErrEmptyQueue
}

func (q *MemoryActions) dropExpired(now time.Time) {
	live := q.messages[:0]
	for _, e := range q.messages {
		if e.expiresOn.After(now) {
			live = append(live, e)
		}
	}
	for i := len(live); i < len(q.messages); i++ {
		q.messages[i] = nil
	}
	q.messages = live
}
