package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clubimpact/internal/metrics"
	"clubimpact/internal/models"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

const currentMissionKey = "mission:current"

// MissionSource is the store side of the cache.
type MissionSource interface {
	GetCurrent(ctx context.Context) (*models.Mission, error)
	CountContributors(ctx context.Context, missionID string) (int64, error)
	GetProof(ctx context.Context, id string) (*models.MissionProof, error)
}

// MissionSnapshot is what GET /missions/current serves.
type MissionSnapshot struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Tagline      string    `json:"tagline"`
	Goal         int64     `json:"goal"`
	Progress     int64     `json:"progress"`
	Deadline     time.Time `json:"deadline"`
	Status       string    `json:"status"`
	ProofID      *string   `json:"proofId"`
	Contributors int64     `json:"contributors"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// CurrentMission pairs a snapshot with its cache state.
type CurrentMission struct {
	Snapshot  MissionSnapshot
	Cached    bool
	ExpiresIn time.Duration
}

// MissionCache is a read-through cache of the current mission. Nothing
// invalidates it: progress may lag the ledger by up to the TTL.
type MissionCache struct {
	source  MissionSource
	cache   *ttlcache.Cache[string, MissionSnapshot]
	group   singleflight.Group
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewMissionCache(source MissionSource, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *MissionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &MissionCache{
		source: source,
		cache: ttlcache.New[string, MissionSnapshot](
			ttlcache.WithTTL[string, MissionSnapshot](ttl),
			// Reads must not extend the window, or a busy key never refreshes.
			ttlcache.WithDisableTouchOnHit[string, MissionSnapshot](),
		),
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// GetCurrentMission serves from cache while the entry is fresh, otherwise
// loads it once for all concurrent callers.
func (c *MissionCache) GetCurrentMission(ctx context.Context) (*CurrentMission, error) {
	if item := c.cache.Get(currentMissionKey); item != nil && !item.IsExpired() {
		c.metrics.CacheLookup(true)
		return &CurrentMission{
			Snapshot:  item.Value(),
			Cached:    true,
			ExpiresIn: max(time.Until(item.ExpiresAt()), 0),
		}, nil
	}
	c.metrics.CacheLookup(false)

	v, err, _ := c.group.Do(currentMissionKey, func() (any, error) {
		snap, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(currentMissionKey, snap, ttlcache.DefaultTTL)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return &CurrentMission{Snapshot: v.(MissionSnapshot), Cached: false, ExpiresIn: c.ttl}, nil
}

// GetMissionProof always reads through.
func (c *MissionCache) GetMissionProof(ctx context.Context, proofID string) (*models.MissionProof, error) {
	return c.source.GetProof(ctx, proofID)
}

func (c *MissionCache) load(ctx context.Context) (MissionSnapshot, error) {
	m, err := c.source.GetCurrent(ctx)
	if err != nil {
		return MissionSnapshot{}, err
	}
	contributors, err := c.source.CountContributors(ctx, m.ID)
	if err != nil {
		return MissionSnapshot{}, fmt.Errorf("count contributors: %w", err)
	}
	c.logger.DebugContext(ctx, "mission cache refreshed", slog.String("mission_id", m.ID), slog.Int64("progress", m.Progress))
	return MissionSnapshot{
		ID:           m.ID,
		Title:        m.Title,
		Tagline:      m.Tagline,
		Goal:         m.Goal,
		Progress:     m.Progress,
		Deadline:     m.Deadline,
		Status:       m.Status,
		ProofID:      m.ProofID,
		Contributors: contributors,
		FetchedAt:    time.Now().UTC(),
	}, nil
}
