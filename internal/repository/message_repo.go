package repository

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"clubimpact/internal/domain"
	"clubimpact/internal/models"

	"gorm.io/gorm"
)

// MessageCursor points just past the oldest message of a history page.
// Its string form is "<RFC3339Nano>_<id>"; a bare timestamp is also accepted
// and means "strictly older than this instant".
type MessageCursor struct {
	CreatedAt time.Time
	ID        uint
}

func (c MessageCursor) String() string {
	return c.CreatedAt.UTC().Format(time.RFC3339Nano) + "_" + strconv.FormatUint(uint64(c.ID), 10)
}

func ParseMessageCursor(s string) (*MessageCursor, error) {
	ts, idPart, hasID := strings.Cut(s, "_")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor must be an ISO-8601 timestamp", domain.ErrValidation)
	}
	cur := &MessageCursor{CreatedAt: t.UTC()}
	if hasID {
		id, err := strconv.ParseUint(idPart, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: malformed cursor id", domain.ErrValidation)
		}
		cur.ID = uint(id)
	}
	return cur, nil
}

// MessagePage is one page of history in ascending order. NextCursor is nil
// on the last (oldest) page.
type MessagePage struct {
	Messages   []models.ClubMessage
	NextCursor *MessageCursor
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *models.ClubMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Page walks a club's history backwards from before (nil = newest). limit is
// clamped to [1, domain.MaxPageSize].
func (r *MessageRepository) Page(ctx context.Context, clubID string, before *MessageCursor, limit int) (*MessagePage, error) {
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}
	if limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}
	q := r.db.WithContext(ctx).Where("club_id = ?", clubID)
	if before != nil {
		if before.ID > 0 {
			q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", before.CreatedAt, before.CreatedAt, before.ID)
		} else {
			q = q.Where("created_at < ?", before.CreatedAt)
		}
	}
	var list []models.ClubMessage
	// One extra row tells us whether an older page exists.
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&list).Error; err != nil {
		return nil, err
	}
	page := &MessagePage{}
	if len(list) > limit {
		list = list[:limit]
		oldest := list[len(list)-1]
		page.NextCursor = &MessageCursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID}
	}
	slices.Reverse(list)
	page.Messages = list
	return page, nil
}
