package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/domain"
)

// CreateNotification appends one feed entry.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Create(n).Error
}

// DeleteExpiredNotifications removes entries whose ExpiresAt is at or before
// now and returns how many were removed.
func DeleteExpiredNotifications(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}

// ListNotifications returns the newest live entries, up to limit.
func ListNotifications(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("expires_at > ?", now.UTC()).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
