// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers programs, payment orders, and domain task
// sets. Programs and task sets are maintained by admin tooling outside this
// service; the write helpers here exist for seeding and tests.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/domain"
)

// ErrOrderConsumed is returned when a payment order was already bound to an
// application.
var ErrOrderConsumed = errors.New("payment order already used")

// CreateProgram inserts p, assigning an ID when empty.
func CreateProgram(ctx context.Context, db *gorm.DB, p *domain.Program) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Currency == "" {
		p.Currency = "INR"
	}
	return db.WithContext(ctx).Create(p).Error
}

// GetProgram fetches a program by ID or returns ErrNotFound.
func GetProgram(ctx context.Context, db *gorm.DB, id string) (*domain.Program, error) {
	var p domain.Program
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePaymentOrder records a freshly created gateway order.
func CreatePaymentOrder(ctx context.Context, db *gorm.DB, o *domain.PaymentOrder) error {
	if o.Status == "" {
		o.Status = domain.OrderCreated
	}
	return db.WithContext(ctx).Create(o).Error
}

// GetPaymentOrder fetches an order by gateway ID or returns ErrNotFound.
func GetPaymentOrder(ctx context.Context, db *gorm.DB, orderID string) (*domain.PaymentOrder, error) {
	var o domain.PaymentOrder
	if err := db.WithContext(ctx).Where("order_id = ?", orderID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ConsumePaymentOrder binds the order to applicationID. The conditional
// update makes the order single-use even under concurrent callbacks.
func ConsumePaymentOrder(ctx context.Context, db *gorm.DB, orderID, applicationID string) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, domain.OrderCreated).
		Updates(map[string]any{
			"status":         domain.OrderConsumed,
			"application_id": applicationID,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderConsumed
	}
	return nil
}

// CreateDomainTask inserts a task set, assigning an ID when empty.
func CreateDomainTask(ctx context.Context, db *gorm.DB, t *domain.DomainTask) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(t).Error
}

// GetActiveDomainTask returns the newest active task set for a program, or
// ErrNotFound.
func GetActiveDomainTask(ctx context.Context, db *gorm.DB, programID string) (*domain.DomainTask, error) {
	var t domain.DomainTask
	err := db.WithContext(ctx).
		Where("program_id = ? AND is_active = ?", programID, true).
		Order("updated_at desc").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}
