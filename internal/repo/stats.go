// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries: the admin overview
// counts and the (count, last update) pair the HTTP layer turns into an ETag
// for application listings.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/domain"
)

// Overview aggregates applications for the admin dashboard.
type Overview struct {
	Total     int64                          `json:"total"`
	ByStatus  map[domain.Status]int64        `json:"by_status"`
	ByPayment map[domain.PaymentStatus]int64 `json:"by_payment_status"`
}

// ApplicationsOverview counts applications by workflow and payment status.
// Every known status is present in the maps, zero when absent.
func ApplicationsOverview(ctx context.Context, db *gorm.DB, programID string) (*Overview, error) {
	base := func() *gorm.DB {
		q := db.WithContext(ctx).Model(&domain.Application{})
		if programID != "" {
			q = q.Where("program_id = ?", programID)
		}
		return q
	}

	out := &Overview{
		ByStatus:  make(map[domain.Status]int64, len(domain.Statuses)),
		ByPayment: make(map[domain.PaymentStatus]int64, len(domain.PaymentStatuses)),
	}
	for _, s := range domain.Statuses {
		out.ByStatus[s] = 0
	}
	for _, s := range domain.PaymentStatuses {
		out.ByPayment[s] = 0
	}

	var byStatus []struct {
		Status string
		N      int64
	}
	if err := base().Select("status, COUNT(*) AS n").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, r := range byStatus {
		out.ByStatus[domain.Status(r.Status)] += r.N
		out.Total += r.N
	}

	var byPayment []struct {
		Status string
		N      int64
	}
	if err := base().Select("payment_status AS status, COUNT(*) AS n").Group("payment_status").Scan(&byPayment).Error; err != nil {
		return nil, err
	}
	for _, r := range byPayment {
		out.ByPayment[domain.PaymentStatus(r.Status)] += r.N
	}
	return out, nil
}

// ApplicationsStats returns the row count and greatest UpdatedAt for the
// applications matching f. maxUpdatedAt is nil when nothing matches.
func ApplicationsStats(ctx context.Context, db *gorm.DB, f ApplicationFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	q := f.apply(db.WithContext(ctx).Model(&domain.Application{}))

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q = f.apply(db.WithContext(ctx).Model(&domain.Application{}))
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
