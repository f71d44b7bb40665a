package repository

import (
	"context"
	"testing"

	"clubimpact/internal/domain"
	"clubimpact/internal/models"
	"clubimpact/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClubMembershipIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewClubRepository(testutil.NewDB(t))

	club := &models.Club{Name: "Readers", CreatedBy: "owner"}
	require.NoError(t, repo.Create(ctx, club))
	require.NotEmpty(t, club.ID)

	ok, err := repo.IsMember(ctx, club.ID, "owner")
	require.NoError(t, err)
	assert.True(t, ok, "creator joins automatically")

	require.NoError(t, repo.AddMember(ctx, club.ID, "u2"))
	require.NoError(t, repo.AddMember(ctx, club.ID, "u2"))
	members, err := repo.ListMembers(ctx, club.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserAddGemsNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testutil.NewDB(t))
	u := &models.User{DisplayName: "Ana", Gems: 10, InitialGems: 10}
	require.NoError(t, repo.Create(ctx, u))

	rows, err := repo.AddGems(ctx, u.ID, -11)
	require.NoError(t, err)
	assert.Zero(t, rows)

	rows, err = repo.AddGems(ctx, u.ID, -10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Gems)
}

func TestMissionAddProgressFlipsStatusAtGoal(t *testing.T) {
	ctx := context.Background()
	repo := NewMissionRepository(testutil.NewDB(t))
	m := &models.Mission{Title: "Wells", Goal: 20, Progress: 10, Status: domain.MissionStatusActive}
	require.NoError(t, repo.Create(ctx, m))

	_, err := repo.AddProgress(ctx, m.ID, 5)
	require.NoError(t, err)
	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 15, got.Progress)
	assert.Equal(t, domain.MissionStatusActive, got.Status)

	_, err = repo.AddProgress(ctx, m.ID, 5)
	require.NoError(t, err)
	got, err = repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 20, got.Progress)
	assert.Equal(t, domain.MissionStatusSuccess, got.Status)

	rows, err := repo.AddProgress(ctx, "missing", 1)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestMissionCurrentAndContributors(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewMissionRepository(db)
	events := NewImpactRepository(db)

	_, err := repo.GetCurrent(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.Create(ctx, &models.Mission{ID: "up", Title: "Soon", Goal: 1, Status: domain.MissionStatusUpcoming}))
	require.NoError(t, repo.Create(ctx, &models.Mission{ID: "live", Title: "Now", Goal: 100, Status: domain.MissionStatusActive}))

	cur, err := repo.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "live", cur.ID)

	mission := "live"
	for _, uid := range []string{"a", "a", "b"} {
		uid := uid
		require.NoError(t, events.Create(ctx, &models.ImpactEvent{UserID: &uid, MissionID: &mission, Type: domain.EventTypeHeart, Amount: 1}))
	}
	require.NoError(t, events.Create(ctx, &models.ImpactEvent{MissionID: &mission, Type: domain.EventTypeHeart, Amount: 1}))

	n, err := repo.CountContributors(ctx, "live")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestImpactSumGems(t *testing.T) {
	ctx := context.Background()
	repo := NewImpactRepository(testutil.NewDB(t))
	uid := "u"
	for _, amt := range []int64{10, -3, 7} {
		require.NoError(t, repo.Create(ctx, &models.ImpactEvent{UserID: &uid, Type: domain.EventTypeGems, Amount: amt}))
	}
	require.NoError(t, repo.Create(ctx, &models.ImpactEvent{UserID: &uid, Type: domain.EventTypeHeart, Amount: 99}))

	sum, err := repo.SumGems(ctx, uid)
	require.NoError(t, err)
	assert.EqualValues(t, 14, sum)

	sum, err = repo.SumGems(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, sum)

	list, err := repo.ListByUser(ctx, uid, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
