package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQueue is returned by Peek and Receive when no message is visible.
	ErrEmptyQueue = errors.New("no message available")
	// ErrQueueNotFound is returned when the queue has not been created.
	ErrQueueNotFound = errors.New("queue does not exist")
	// ErrMessageNotFound is returned by Delete when the id or pop receipt is stale.
	ErrMessageNotFound = errors.New("message not found")
)

// ConnectivityError reports a failure reaching the queue backend.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// SerializationError reports a message body that could not be encoded or decoded.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s message: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is, or wraps, a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsSerialization reports whether err is, or wraps, a SerializationError.
func IsSerialization(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}
