package news

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsqueue/internal/pkg/logger"
	"newsqueue/internal/pkg/observability/metrics"
	"newsqueue/internal/pkg/queue"
)

// Client sends and consumes news articles on a single queue.
type Client struct {
	Queue queue.QueueClient
}

// PeekResult is the head message. Err holds the decode error when Body is not a valid article.
type PeekResult struct {
	queue.PeekedMessage
	Article Article
	Err     error
}

// ReceivedArticle is a received message together with its decoded article.
type ReceivedArticle struct {
	queue.ReceivedMessage
	Article Article
}

// ProcessFunc handles a received article. Returning an error leaves the message on the queue.
type ProcessFunc func(ctx context.Context, msg ReceivedArticle) error

// NewClient creates a new Client.
func NewClient(q queue.QueueClient) *Client {
	return &Client{Queue: q}
}

// EnsureQueueExists creates the queue when it is absent.
func (c *Client) EnsureQueueExists(ctx context.Context) error {
	return observe(metrics.OpCreate, func() error {
		if err := c.Queue.CreateIfNotExists(ctx); err != nil {
			return fmt.Errorf("ensure queue exists: %w", err)
		}
		return nil
	})
}

// Send encodes the article and submits it to the queue.
func (c *Client) Send(ctx context.Context, a Article) (queue.SendReceipt, error) {
	var receipt queue.SendReceipt
	err := observe(metrics.OpSend, func() error {
		body, err := Encode(a)
		if err != nil {
			return err
		}
		receipt, err = c.Queue.Send(ctx, body)
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		return nil
	})
	if err != nil {
		return queue.SendReceipt{}, err
	}

	logger.InfoCtx(logger.WithTraceID(ctx, receipt.MessageID), "message sent, expires %s", receipt.ExpiresOn.Format(time.RFC3339))
	return receipt, nil
}

// Peek returns the head message without consuming it.
func (c *Client) Peek(ctx context.Context) (*PeekResult, error) {
	var msg *queue.PeekedMessage
	err := observe(metrics.OpPeek, func() error {
		var err error
		msg, err = c.Queue.Peek(ctx)
		if err != nil {
			return fmt.Errorf("peek message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &PeekResult{PeekedMessage: *msg}
	res.Article, res.Err = Decode(msg.Body)
	return res, nil
}

// ReceiveAndAck receives one message, hands it to fn and deletes it only when fn succeeds.
// A message that cannot be decoded is left on the queue and a SerializationError is returned.
func (c *Client) ReceiveAndAck(ctx context.Context, fn ProcessFunc) error {
	var msg *queue.ReceivedMessage
	err := observe(metrics.OpReceive, func() error {
		var err error
		msg, err = c.Queue.Receive(ctx)
		if err != nil {
			return fmt.Errorf("receive message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ctx = logger.WithTraceID(ctx, msg.MessageID)
	logger.InfoCtx(ctx, "message received, dequeue count %d", msg.DequeueCount)

	article, err := Decode(msg.Body)
	if err != nil {
		logger.ErrorCtx(ctx, "invalid message body: %s", err)
		return err
	}

	if err := fn(ctx, ReceivedArticle{ReceivedMessage: *msg, Article: article}); err != nil {
		logger.WarnCtx(ctx, "processing failed, message visible again at %s", msg.NextVisibleOn.Format(time.RFC3339))
		return fmt.Errorf("process message %s: %w", msg.MessageID, err)
	}

	return observe(metrics.OpDelete, func() error {
		if err := c.Queue.Delete(ctx, msg.MessageID, msg.PopReceipt); err != nil {
			return fmt.Errorf("delete message %s: %w", msg.MessageID, err)
		}
		logger.InfoCtx(ctx, "message deleted")
		return nil
	})
}

// Close closes the underlying queue client.
func (c *Client) Close() error {
	return c.Queue.Close()
}

func observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.Operations.WithLabelValues(op).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
	case errors.Is(err, queue.ErrEmptyQueue):
		metrics.EmptyReads.Inc()
	default:
		metrics.OperationFailures.WithLabelValues(op).Inc()
	}
	return err
}
