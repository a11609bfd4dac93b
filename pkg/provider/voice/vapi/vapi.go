// Package vapi implements the voice client on the Vapi live call WebSocket
// transport.
package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/pitchline-ai/pitchline/pkg/provider/voice"
)

const defaultBaseURL = "wss://api.vapi.ai"

// Client streams live call events from the Vapi monitor WebSocket.
//
// All methods are safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	callID  string
	logger  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan voice.Event
	opened bool
	closed bool
	done   chan struct{}
}

var _ voice.Client = (*Client)(nil)

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL overrides the WebSocket endpoint. Useful for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for the given call. The client does not connect
// until [Client.Open] is called.
func New(apiKey, callID string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("vapi: api key must not be empty")
	}
	if callID == "" {
		return nil, errors.New("vapi: call id must not be empty")
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		callID:  callID,
		events:  make(chan voice.Event, 64),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Open dials the monitor WebSocket and starts the read loop.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return errors.New("vapi: client already opened")
	}
	if c.closed {
		return errors.New("vapi: client is closed")
	}

	url := fmt.Sprintf("%s/call/%s/listen", c.baseURL, c.callID)
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + c.apiKey},
		},
	})
	if err != nil {
		return fmt.Errorf("vapi: connecting to %s: %w", url, err)
	}
	conn.SetReadLimit(1 << 20)

	c.conn = conn
	c.opened = true
	go c.readLoop()
	return nil
}

// Events returns the ordered inbound event stream. The channel is closed
// when the call ends or the client is closed.
func (c *Client) Events() <-chan voice.Event {
	return c.events
}

// Close terminates the stream. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	opened := c.opened
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	if opened {
		// Wait for the read loop to drain and close the events channel.
		<-c.done
	} else {
		close(c.events)
	}
	return nil
}

// readLoop reads frames until the connection fails or is closed. It owns
// the events channel and closes it on exit, so event order on the channel
// matches wire order.
func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)

	ctx := context.Background()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.Error("vapi: read failed", "call_id", c.callID, "error", err)
			}
			return
		}

		var ev voice.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("vapi: skipping malformed frame", "call_id", c.callID, "error", err)
			continue
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}
		c.events <- ev

		if ev.Type == voice.EventCallEnd {
			return
		}
	}
}
