package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// Repository is the notification inbox store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	Page(ctx context.Context, filter inboxFilter) ([]models.Notification, *pagination.Cursor, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (readOutcome, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type inboxFilter struct {
	UserID     uuid.UUID
	Limit      int
	After      *pagination.Cursor
	UnreadOnly bool
}

type readOutcome int

const (
	readMissing readOutcome = iota
	readAlready
	readChanged
)

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func (r *gormRepository) inbox(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *gormRepository) Page(ctx context.Context, filter inboxFilter) ([]models.Notification, *pagination.Cursor, error) {
	q := r.inbox(ctx, filter.UserID)
	if filter.UnreadOnly {
		q = q.Where("read = ?", false)
	}
	var rows []models.Notification
	if err := pagination.Keyset(q, filter.After, filter.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Page(rows, filter.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return rows, next, nil
}

func (r *gormRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.inbox(ctx, userID).Where("read = ?", false).Count(&n).Error
	return n, err
}

// MarkRead flips a single unread row. The follow-up lookup only runs when
// nothing changed, to tell an already-read row from a foreign or missing one.
func (r *gormRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (readOutcome, error) {
	res := r.inbox(ctx, userID).
		Where("id = ? AND read = ?", notificationID, false).
		UpdateColumn("read", true)
	if res.Error != nil {
		return readMissing, res.Error
	}
	if res.RowsAffected > 0 {
		return readChanged, nil
	}

	var n int64
	if err := r.inbox(ctx, userID).Where("id = ?", notificationID).Count(&n).Error; err != nil {
		return readMissing, err
	}
	if n == 0 {
		return readMissing, nil
	}
	return readAlready, nil
}

func (r *gormRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.inbox(ctx, userID).Where("read = ?", false).UpdateColumn("read", true)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore purges read rows older than cutoff across all users.
func (r *gormRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
