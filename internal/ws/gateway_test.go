package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"clubimpact/internal/domain"
	"clubimpact/internal/pubsub"
	"clubimpact/internal/testutil"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, broker Broker, store MessageStore) *Gateway {
	t.Helper()
	g := NewGateway(broker, store, testutil.Logger(), WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	}))
	t.Cleanup(g.Close)
	return g
}

func TestJoinIsIdempotent(t *testing.T) {
	broker := NewFakeBroker()
	g := newTestGateway(t, broker, &FakeStore{})
	c := NewClient("u1", 4)

	require.NoError(t, g.Join(c, "club-1", "u1"))
	require.NoError(t, g.Join(c, "club-1", "u1"))

	assert.True(t, g.InRoom(c, "club-1"))
	assert.Equal(t, 1, g.RoomCount())
	assert.Equal(t, 1, g.ClientCount())
	assert.Equal(t, 1, broker.Calls("chat:club-1"))

	assert.Error(t, g.Join(c, "", "u1"))
}

func TestLastLeaveStopsRoomSubscription(t *testing.T) {
	broker := NewFakeBroker()
	g := newTestGateway(t, broker, &FakeStore{})
	a := NewClient("u1", 4)
	b := NewClient("u2", 4)

	require.NoError(t, g.Join(a, "club-1", "u1"))
	require.NoError(t, g.Join(b, "club-1", "u2"))
	require.NoError(t, g.Join(b, "club-2", "u2"))
	assert.Equal(t, 1, broker.Calls("chat:club-1"))

	g.Leave(a)
	assert.False(t, g.InRoom(a, "club-1"))
	assert.True(t, g.InRoom(b, "club-1"))
	assert.Equal(t, 1, broker.Active("chat:club-1"))

	g.LeaveRoom(b, "club-1")
	assert.Equal(t, 1, g.RoomCount())
	require.Eventually(t, func() bool { return broker.Active("chat:club-1") == 0 }, time.Second, 5*time.Millisecond)

	g.Leave(b)
	assert.Zero(t, g.RoomCount())
	assert.Zero(t, g.ClientCount())
	require.Eventually(t, func() bool { return broker.Active("chat:club-2") == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-b.Send
	assert.False(t, open, "Leave closes the client")

	// A later join starts a fresh subscription.
	c := NewClient("u3", 4)
	require.NoError(t, g.Join(c, "club-1", "u3"))
	assert.Equal(t, 2, broker.Calls("chat:club-1"))
}

func TestRelayFansOutAcrossInstances(t *testing.T) {
	bus := pubsub.NewMemory(testutil.Logger())
	t.Cleanup(func() { _ = bus.Close() })
	store := &FakeStore{}
	g1 := newTestGateway(t, bus, store)
	g2 := newTestGateway(t, bus, store)

	alice := NewClient("alice", 8)
	bob := NewClient("bob", 8)
	carol := NewClient("carol", 8)
	require.NoError(t, g1.Join(alice, "club-1", "alice"))
	require.NoError(t, g2.Join(bob, "club-1", "bob"))
	require.NoError(t, g2.Join(carol, "club-2", "carol"))

	msg, err := g1.RelayInbound(context.Background(), "club-1", "alice", "  hello club  ")
	require.NoError(t, err)
	assert.Equal(t, "hello club", msg.Body)

	for _, c := range []*Client{alice, bob} {
		var env struct {
			Event string `json:"event"`
			Data  struct {
				ID       uint   `json:"id"`
				ClubID   string `json:"clubId"`
				SenderID string `json:"senderId"`
				Body     string `json:"body"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(recv(t, c), &env))
		assert.Equal(t, domain.SocketEventClubMessage, env.Event)
		assert.Equal(t, msg.ID, env.Data.ID)
		assert.Equal(t, "club-1", env.Data.ClubID)
		assert.Equal(t, "alice", env.Data.SenderID)
		assert.Equal(t, "hello club", env.Data.Body)
	}
	assertSilent(t, carol)
}

func TestRelayInboundPersistsWhenPublishFails(t *testing.T) {
	broker := NewFakeBroker()
	broker.PublishErr = domain.ErrTransientBus
	store := &FakeStore{}
	g := newTestGateway(t, broker, store)

	msg, err := g.RelayInbound(context.Background(), "club-1", "u1", "still here")
	require.NoError(t, err)
	require.Len(t, store.Messages(), 1)
	assert.Equal(t, msg.ID, store.Messages()[0].ID)
}

func TestRelayInboundDoesNotPublishUnstoredMessages(t *testing.T) {
	broker := NewFakeBroker()
	store := &FakeStore{Err: errors.New("disk full")}
	g := newTestGateway(t, broker, store)

	_, err := g.RelayInbound(context.Background(), "club-1", "u1", "hi")
	require.Error(t, err)
	assert.Zero(t, broker.Published())
}

func TestRelayInboundValidation(t *testing.T) {
	store := &FakeStore{}
	g := newTestGateway(t, NewFakeBroker(), store)
	ctx := context.Background()

	for name, body := range map[string]string{
		"empty":      "",
		"whitespace": " \n\t ",
		"too long":   strings.Repeat("é", domain.MaxMessageRunes+1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := g.RelayInbound(ctx, "club-1", "u1", body)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, store.Messages())

	_, err := g.RelayInbound(ctx, "club-1", "u1", strings.Repeat("é", domain.MaxMessageRunes))
	require.NoError(t, err)
	_, err = g.RelayInbound(ctx, "", "u1", "hi")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResubscribesAfterSubscriptionDrops(t *testing.T) {
	broker := NewFakeBroker()
	g := newTestGateway(t, broker, &FakeStore{})
	c := NewClient("u1", 4)
	require.NoError(t, g.Join(c, "club-1", "u1"))

	broker.Drop("chat:club-1", 2)
	require.Eventually(t, func() bool { return broker.Active("chat:club-1") == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, broker.Calls("chat:club-1"))
	assert.True(t, g.InRoom(c, "club-1"), "membership survives a bus drop")

	broker.Deliver("chat:club-1", []byte(`{"event":"club:message","data":{}}`))
	assert.Equal(t, `{"event":"club:message","data":{}}`, string(recv(t, c)))
}

func TestProcessWideTopics(t *testing.T) {
	bus := pubsub.NewMemory(testutil.Logger())
	t.Cleanup(func() { _ = bus.Close() })
	g := newTestGateway(t, bus, &FakeStore{})
	g.Start()

	phone := NewClient("u1", 4)
	laptop := NewClient("u1", 4)
	other := NewClient("u2", 4)
	for _, c := range []*Client{phone, laptop, other} {
		g.Register(c)
	}
	ctx := context.Background()

	gems := `{"event":"user:gems","data":{"userId":"u1","gems":42}}`
	require.NoError(t, bus.Publish(ctx, domain.TopicUserGems, []byte(gems)))
	assert.Equal(t, gems, string(recv(t, phone)))
	assert.Equal(t, gems, string(recv(t, laptop)))
	assertSilent(t, other)

	progress := `{"event":"mission:progress","data":{"missionId":"m1","progress":18}}`
	require.NoError(t, bus.Publish(ctx, domain.TopicMissionProgress, []byte(progress)))
	for _, c := range []*Client{phone, laptop, other} {
		assert.Equal(t, progress, string(recv(t, c)))
	}
}

func TestSlowClientOnlyLosesItsOwnFrames(t *testing.T) {
	g := newTestGateway(t, NewFakeBroker(), &FakeStore{})
	slow := NewClient("u1", 1)
	fast := NewClient("u2", 8)
	require.NoError(t, g.Join(slow, "club-1", "u1"))
	require.NoError(t, g.Join(fast, "club-1", "u2"))

	assert.Equal(t, 2, g.RelayOutbound("chat:club-1", []byte("one")))
	assert.Equal(t, 1, g.RelayOutbound("chat:club-1", []byte("two")))

	assert.Equal(t, "one", string(recv(t, slow)))
	assertSilent(t, slow)
	assert.Equal(t, "one", string(recv(t, fast)))
	assert.Equal(t, "two", string(recv(t, fast)))
}

func TestRelayOutboundIgnoresUnknownTopics(t *testing.T) {
	g := newTestGateway(t, NewFakeBroker(), &FakeStore{})
	c := NewClient("u1", 4)
	require.NoError(t, g.Join(c, "club-1", "u1"))

	assert.Zero(t, g.RelayOutbound("chat:", []byte("x")))
	assert.Zero(t, g.RelayOutbound("weather", []byte("x")))
	assert.Zero(t, g.RelayOutbound(domain.TopicUserGems, []byte("not json")))
	assertSilent(t, c)
}

func TestCloseDisconnectsClients(t *testing.T) {
	broker := NewFakeBroker()
	g := NewGateway(broker, &FakeStore{}, testutil.Logger())
	g.Start()
	c := NewClient("u1", 4)
	require.NoError(t, g.Join(c, "club-1", "u1"))

	g.Close()
	_, open := <-c.Send
	assert.False(t, open)
	assert.Zero(t, g.ClientCount())
	assert.Zero(t, broker.Active(domain.TopicMissionProgress))
}

func TestJoinAfterCloseFails(t *testing.T) {
	broker := NewFakeBroker()
	g := NewGateway(broker, &FakeStore{}, testutil.Logger())
	g.Close()
	g.Close()

	c := NewClient("u1", 4)
	err := g.Join(c, "club-1", "u1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Zero(t, g.RoomCount())
	assert.Zero(t, broker.Calls("chat:club-1"))
}

func TestCloseWhileClientsAreJoining(t *testing.T) {
	for range 20 {
		broker := NewFakeBroker()
		g := NewGateway(broker, &FakeStore{}, testutil.Logger())
		g.Start()

		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c := NewClient("u1", 4)
				err := g.Join(c, fmt.Sprintf("club-%d", i), "u1")
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
				}
			}(i)
		}
		g.Close()
		wg.Wait()

		require.Eventually(t, func() bool {
			for i := range 16 {
				if broker.Active(fmt.Sprintf("chat:club-%d", i)) != 0 {
					return false
				}
			}
			return true
		}, time.Second, 5*time.Millisecond)
	}
}
