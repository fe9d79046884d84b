// Package presence tracks which players hold a live connection and routes pushes to them.
package presence

import (
	"fmt"
	"sync"
)

// Handle is the push side of one client connection.
type Handle interface {
	// ID uniquely identifies the connection for its lifetime.
	ID() string
	// Push enqueues one encoded frame. It must not block.
	Push(data []byte) error
}

// Outbox is a Handle backed by a buffered channel. The connection's writer
// goroutine drains Frames and writes each frame to the socket.
type Outbox struct {
	id     string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the connection id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an open Outbox; bufferSize <= 0 selects 64.
func NewOutbox(id string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		id:     id,
		frames: make(chan []byte, bufferSize),
	}
}

// ID returns the connection identifier.
func (o *Outbox) ID() string {
	return o.id
}

// Push enqueues data without blocking.
//
// Postcondition: Returns an error if the outbox is closed or its buffer is full.
func (o *Outbox) Push(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.id)
	}
	select {
	case o.frames <- data:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.id)
	}
}

// Frames returns the channel the writer goroutine drains.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close marks the outbox closed and closes Frames. Safe to call more than once.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
