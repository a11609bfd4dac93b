// Package mock provides an in-memory voice client for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/pitchline-ai/pitchline/pkg/provider/voice"
)

// Client is a scriptable voice client. Tests push events with [Client.Emit]
// and end the stream with [Client.Close] or [Client.Finish].
//
// All methods are safe for concurrent use.
type Client struct {
	// OpenErr, when set, is returned by Open.
	OpenErr error

	mu     sync.Mutex
	events chan voice.Event
	opened bool
	closed bool
}

var _ voice.Client = (*Client)(nil)

// New creates a mock client with a buffered event stream.
func New() *Client {
	return &Client{events: make(chan voice.Event, 64)}
}

// Open marks the client opened and returns OpenErr if set.
func (c *Client) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return c.OpenErr
	}
	if c.opened {
		return errors.New("mock: client already opened")
	}
	c.opened = true
	return nil
}

// Events returns the event stream.
func (c *Client) Events() <-chan voice.Event {
	return c.events
}

// Emit delivers an event to the stream. Emitting after Close panics the
// test rather than silently dropping the event.
func (c *Client) Emit(ev voice.Event) {
	c.events <- ev
}

// Finish ends the stream without closing the client, mimicking a call that
// ended on the vendor side.
func (c *Client) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// Close ends the stream. Safe to call more than once.
func (c *Client) Close() error {
	c.Finish()
	return nil
}
