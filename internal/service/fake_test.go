package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"clubimpact/internal/domain"
	"clubimpact/internal/models"

	"github.com/stretchr/testify/require"
)

// ------------------------
// Recording publisher
// ------------------------

type published struct {
	Topic   string
	Payload []byte
}

type FakePublisher struct {
	mu   sync.Mutex
	sent []published
	Err  error
}

func (f *FakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.sent = append(f.sent, published{Topic: topic, Payload: payload})
	return nil
}

func (f *FakePublisher) Sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.sent))
	copy(out, f.sent)
	return out
}

// decode unpacks an envelope's data into v and returns the event name.
func decode(t *testing.T, p published, v any) string {
	t.Helper()
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(p.Payload, &env))
	require.NoError(t, json.Unmarshal(env.Data, v))
	return env.Event
}

// ------------------------
// Fake mission source
// ------------------------

type FakeMissionSource struct {
	mu           sync.Mutex
	Mission      *models.Mission
	Contributors int64
	Delay        time.Duration
	loads        int
}

func (f *FakeMissionSource) GetCurrent(ctx context.Context) (*models.Mission, error) {
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.Mission == nil {
		return nil, domain.ErrNotFound
	}
	m := *f.Mission
	return &m, nil
}

func (f *FakeMissionSource) CountContributors(ctx context.Context, missionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Contributors, nil
}

func (f *FakeMissionSource) GetProof(ctx context.Context, id string) (*models.MissionProof, error) {
	return nil, domain.ErrNotFound
}

func (f *FakeMissionSource) SetProgress(p int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mission.Progress = p
}

func (f *FakeMissionSource) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

var _ MissionSource = (*FakeMissionSource)(nil)
var _ Publisher = (*FakePublisher)(nil)
