package ws

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultSendBuffer is the per-connection outbound queue depth.
const DefaultSendBuffer = 256

// Client represents a single WebSocket connection with user context.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte
	mu     sync.Mutex
	closed bool
}

func NewClient(userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Send:   make(chan []byte, buffer),
	}
}

// Enqueue queues a frame without blocking. It reports false when the buffer
// is full or the client is closed; the frame is dropped for this client only.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Close closes Send; the write pump drains it and ends the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
