package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clubimpact/internal/models"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"
)

// ------------------------
// In-memory message store
// ------------------------

type FakeStore struct {
	mu   sync.Mutex
	msgs []models.ClubMessage
	Err  error
}

func (s *FakeStore) Create(_ context.Context, m *models.ClubMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	m.ID = uint(len(s.msgs) + 1)
	m.CreatedAt = time.Now().UTC()
	s.msgs = append(s.msgs, *m)
	return nil
}

func (s *FakeStore) Messages() []models.ClubMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ClubMessage(nil), s.msgs...)
}

// ------------------------
// Controllable broker
// ------------------------

var errBusDown = errors.New("bus down")

type FakeBroker struct {
	mu         sync.Mutex
	active     map[string][]chan *message.Message
	calls      map[string]int
	failNext   int
	PublishErr error
	published  int
}

func NewFakeBroker() *FakeBroker {
	return &FakeBroker{
		active: make(map[string][]chan *message.Message),
		calls:  make(map[string]int),
	}
}

func (b *FakeBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.published++
	return nil
}

func (b *FakeBroker) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[topic]++
	if b.failNext > 0 {
		b.failNext--
		return nil, errBusDown
	}
	ch := make(chan *message.Message, 16)
	b.active[topic] = append(b.active[topic], ch)
	go func() {
		<-ctx.Done()
		b.closeSub(topic, ch)
	}()
	return ch, nil
}

func (b *FakeBroker) closeSub(topic string, ch chan *message.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.active[topic]
	for i, c := range list {
		if c == ch {
			close(c)
			b.active[topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Drop closes every live subscription to topic, as a lost connection would.
// The next n Subscribe calls fail.
func (b *FakeBroker) Drop(topic string, failNext int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = failNext
	for _, c := range b.active[topic] {
		close(c)
	}
	delete(b.active, topic)
}

func (b *FakeBroker) Deliver(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.active[topic] {
		c <- message.NewMessage(watermill.NewUUID(), payload)
	}
}

func (b *FakeBroker) Calls(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[topic]
}

func (b *FakeBroker) Active(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active[topic])
}

func (b *FakeBroker) Published() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published
}

// ------------------------
// Helpers
// ------------------------

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame, ok := <-c.Send:
		require.True(t, ok, "client closed")
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.Send:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}
