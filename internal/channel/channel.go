// Package channel provides the mailboxes that carry poll results and commands
// to an engine's owner goroutine.
package channel

import (
	"context"
	"errors"
)

// ErrFull is returned by TrySend when the mailbox cannot accept a value now.
var ErrFull = errors.New("channel full")

// Receiver provides read access to a mailbox.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a mailbox.
type Sender[T any] interface {
	// Send blocks until the value is accepted or ctx is done.
	Send(ctx context.Context, v T) error
	// TrySend never blocks.
	TrySend(v T) error
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
}

type mailbox[T any] chan T

// NewBuffered returns a mailbox holding up to size pending values.
// A size of zero or less gives a rendezvous mailbox.
func NewBuffered[T any](size int) Channel[T] {
	if size < 0 {
		size = 0
	}
	return mailbox[T](make(chan T, size))
}

// NewUnbuffered returns a mailbox whose sends complete only when the owner receives.
func NewUnbuffered[T any]() Channel[T] {
	return mailbox[T](make(chan T))
}

func (m mailbox[T]) Send(ctx context.Context, v T) error {
	select {
	case m <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m mailbox[T]) TrySend(v T) error {
	select {
	case m <- v:
		return nil
	default:
		return ErrFull
	}
}

func (m mailbox[T]) Receive() <-chan T { return m }

func (m mailbox[T]) Len() int { return len(m) }
