package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clubimpact/internal/database"
	"clubimpact/internal/domain"
	"clubimpact/internal/metrics"
	"clubimpact/internal/models"
	"clubimpact/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Publisher is the fire-and-forget side of the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// BalanceChange is the user:gems notification and the result of gem
// mutations.
type BalanceChange struct {
	UserID  string `json:"userId"`
	Gems    int64  `json:"gems"`
	Delta   int64  `json:"delta"`
	EventID uint   `json:"eventId"`
}

// ProgressChange is the mission:progress notification.
type ProgressChange struct {
	MissionID string `json:"missionId"`
	Progress  int64  `json:"progress"`
	Goal      int64  `json:"goal"`
	Status    string `json:"status"`
	Delta     int64  `json:"delta"`
	EventID   uint   `json:"eventId"`
}

// Reconciliation compares a stored balance with the event log.
type Reconciliation struct {
	UserID      string `json:"userId"`
	Gems        int64  `json:"gems"`
	InitialGems int64  `json:"initialGems"`
	EventSum    int64  `json:"eventSum"`
	Consistent  bool   `json:"consistent"`
}

// LedgerService is the only writer of users.gems, missions.progress and
// impact_events. Every mutation commits together with its event, then
// notifies the bus; a failed notification never undoes the commit.
type LedgerService struct {
	db          *gorm.DB
	users       *repository.UserRepository
	missions    *repository.MissionRepository
	events      *repository.ImpactRepository
	publisher   Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	lockTimeout time.Duration
}

func NewLedgerService(
	db *gorm.DB,
	publisher Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
	lockTimeout time.Duration,
) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		db:          db,
		users:       repository.NewUserRepository(db),
		missions:    repository.NewMissionRepository(db),
		events:      repository.NewImpactRepository(db),
		publisher:   publisher,
		logger:      logger,
		metrics:     m,
		lockTimeout: lockTimeout,
	}
}

// OpenAccount creates a user whose starting balance is recorded as
// InitialGems, the base of the reconciliation invariant.
func (s *LedgerService) OpenAccount(ctx context.Context, displayName string, initialGems int64) (*models.User, error) {
	if displayName == "" {
		return nil, fmt.Errorf("%w: displayName is required", domain.ErrValidation)
	}
	if initialGems < 0 {
		return nil, fmt.Errorf("%w: initialGems must not be negative", domain.ErrValidation)
	}
	u := &models.User{DisplayName: displayName, Gems: initialGems, InitialGems: initialGems}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "account opened", slog.String("user_id", u.ID), slog.Int64("initial_gems", initialGems))
	return u, nil
}

// AwardGems adds amount (negative for corrections) to the balance. A
// correction that would leave the balance below zero fails with
// ErrInsufficientFunds.
func (s *LedgerService) AwardGems(ctx context.Context, userID string, amount int64, metadata map[string]any) (*BalanceChange, error) {
	var change BalanceChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		rows, err := users.AddGems(ctx, userID, amount)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if rows == 0 {
			// Zero rows is either a missing user, a correction below zero, or
			// (on MySQL) an update that changed nothing.
			exists, err := users.Exists(ctx, userID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
			}
			if amount < 0 {
				return domain.ErrInsufficientFunds
			}
		}
		event, err := s.appendEvent(ctx, tx, &userID, nil, domain.EventTypeGems, amount, metadata)
		if err != nil {
			return err
		}
		u, err := users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		change = BalanceChange{UserID: userID, Gems: u.Gems, Delta: amount, EventID: event.ID}
		return nil
	})
	s.record("award_gems", err)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "gems awarded",
		slog.String("user_id", userID), slog.Int64("amount", amount), slog.Int64("balance", change.Gems))
	s.notify(ctx, domain.TopicUserGems, domain.SocketEventUserGems, change)
	return &change, nil
}

// Spend debits amount under a row lock so concurrent spends serialize per
// user. It waits at most lockTimeout for the lock and then fails with
// ErrLockTimeout, which callers may retry.
func (s *LedgerService) Spend(ctx context.Context, userID string, amount int64, metadata map[string]any) (*BalanceChange, error) {
	if amount < 0 {
		s.record("spend", domain.ErrValidation)
		return nil, fmt.Errorf("%w: spend amount must not be negative", domain.ErrValidation)
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var change BalanceChange
	err := s.db.WithContext(lockCtx).Transaction(func(tx *gorm.DB) error {
		if err := database.SetLockWaitTimeout(tx, s.lockTimeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
		users := s.users.WithTx(tx)
		u, err := users.GetForUpdate(lockCtx, userID)
		if err != nil {
			return err
		}
		if u.Gems < amount {
			return domain.ErrInsufficientFunds
		}
		if _, err := users.AddGems(lockCtx, userID, -amount); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		event, err := s.appendEvent(lockCtx, tx, &userID, nil, domain.EventTypeGems, -amount, metadata)
		if err != nil {
			return err
		}
		change = BalanceChange{UserID: userID, Gems: u.Gems - amount, Delta: -amount, EventID: event.ID}
		return nil
	})
	if err != nil && ctx.Err() == nil && database.IsLockTimeout(err) {
		err = fmt.Errorf("%w: user %s busy, retry later", domain.ErrLockTimeout, userID)
	}
	s.record("spend", err)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "gems spent",
		slog.String("user_id", userID), slog.Int64("amount", amount), slog.Int64("balance", change.Gems))
	s.notify(ctx, domain.TopicUserGems, domain.SocketEventUserGems, change)
	return &change, nil
}

// AddHeartsToMission increments mission progress with a relative update; no
// row lock is taken. userID may be empty for system contributions.
func (s *LedgerService) AddHeartsToMission(ctx context.Context, userID, missionID string, amount int64, metadata map[string]any) (*ProgressChange, error) {
	if amount < 0 {
		s.record("add_hearts", domain.ErrValidation)
		return nil, fmt.Errorf("%w: hearts must not be negative", domain.ErrValidation)
	}
	var uid *string
	if userID != "" {
		uid = &userID
	}
	var change ProgressChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if uid != nil {
			exists, err := s.users.WithTx(tx).Exists(ctx, userID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
			}
		}
		missions := s.missions.WithTx(tx)
		rows, err := missions.AddProgress(ctx, missionID, amount)
		if err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		if rows == 0 {
			exists, err := missions.Exists(ctx, missionID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("mission %s: %w", missionID, domain.ErrNotFound)
			}
		}
		event, err := s.appendEvent(ctx, tx, uid, &missionID, domain.EventTypeHeart, amount, metadata)
		if err != nil {
			return err
		}
		m, err := missions.GetByID(ctx, missionID)
		if err != nil {
			return err
		}
		change = ProgressChange{
			MissionID: missionID, Progress: m.Progress, Goal: m.Goal, Status: m.Status,
			Delta: amount, EventID: event.ID,
		}
		return nil
	})
	s.record("add_hearts", err)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "hearts added",
		slog.String("mission_id", missionID), slog.String("user_id", userID),
		slog.Int64("amount", amount), slog.Int64("progress", change.Progress))
	s.notify(ctx, domain.TopicMissionProgress, domain.SocketEventMissionProgress, change)
	return &change, nil
}

// Reconcile recomputes a balance from the event log.
func (s *LedgerService) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	var rec Reconciliation
	// One transaction so the balance and the sum come from the same snapshot
	// on MySQL's repeatable-read default.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.users.WithTx(tx).GetByID(ctx, userID)
		if err != nil {
			return err
		}
		sum, err := s.events.WithTx(tx).SumGems(ctx, userID)
		if err != nil {
			return err
		}
		rec = Reconciliation{
			UserID: userID, Gems: u.Gems, InitialGems: u.InitialGems, EventSum: sum,
			Consistent: u.Gems == u.InitialGems+sum,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rec.Consistent {
		s.logger.ErrorContext(ctx, "ledger reconciliation mismatch",
			slog.String("user_id", userID), slog.Int64("gems", rec.Gems),
			slog.Int64("initial_gems", rec.InitialGems), slog.Int64("event_sum", rec.EventSum))
	}
	return &rec, nil
}

func (s *LedgerService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// Events lists a user's newest impact events first.
func (s *LedgerService) Events(ctx context.Context, userID string, limit int) ([]models.ImpactEvent, error) {
	if limit <= 0 || limit > domain.MaxPageSize {
		limit = domain.DefaultPageSize
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.events.ListByUser(ctx, userID, limit)
}

func (s *LedgerService) appendEvent(ctx context.Context, tx *gorm.DB, userID, missionID *string, eventType string, amount int64, metadata map[string]any) (*models.ImpactEvent, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	event := &models.ImpactEvent{
		UserID:    userID,
		MissionID: missionID,
		Type:      eventType,
		Amount:    amount,
		Metadata:  datatypes.JSONMap(metadata),
	}
	if err := s.events.WithTx(tx).Create(ctx, event); err != nil {
		return nil, fmt.Errorf("append impact event: %w", err)
	}
	return event, nil
}

func (s *LedgerService) notify(ctx context.Context, topic, event string, data any) {
	payload, err := json.Marshal(domain.Envelope{Event: event, Data: data})
	if err != nil {
		s.logger.ErrorContext(ctx, "encode notification", slog.String("topic", topic), slog.Any("error", err))
		return
	}
	// The write is committed; a cancelled request must not suppress the
	// notification.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), topic, payload); err != nil {
		s.metrics.PublishFailed(topic)
		s.logger.WarnContext(ctx, "notification not published",
			slog.String("topic", topic), slog.Any("error", err))
	}
}

func (s *LedgerService) record(operation string, err error) {
	s.metrics.LedgerOp(operation, Outcome(err))
}

// Outcome labels an error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}
