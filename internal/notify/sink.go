package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/repo"
)

// Notification types written to the admin feed.
const (
	TypeApplicationSubmitted = "application.submitted"
	TypeStatusChanged        = "application.status_changed"
	TypePaymentReceived      = "payment.received"
)

// DefaultNotificationTTL is how long feed entries are kept.
const DefaultNotificationTTL = 30 * 24 * time.Hour

// Sink appends notifications to the admin feed.
type Sink interface {
	Record(ctx context.Context, n *domain.Notification) error
}

// GormSink stores notifications in the notifications table.
type GormSink struct {
	DB  *gorm.DB
	TTL time.Duration

	// TEST SEAM
	Now func() time.Time
}

// NewGormSink returns a sink whose rows expire after ttl.
func NewGormSink(db *gorm.DB, ttl time.Duration) *GormSink {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	return &GormSink{DB: db, TTL: ttl, Now: time.Now}
}

// Record fills ID and timestamps when missing and inserts the row.
func (s *GormSink) Record(ctx context.Context, n *domain.Notification) error {
	now := s.now()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.ExpiresAt.IsZero() {
		n.ExpiresAt = n.CreatedAt.Add(s.ttl())
	}
	return repo.CreateNotification(ctx, s.DB, n)
}

// PurgeExpired deletes rows whose TTL has passed and returns how many.
func (s *GormSink) PurgeExpired(ctx context.Context) (int64, error) {
	return repo.DeleteExpiredNotifications(ctx, s.DB, s.now())
}

func (s *GormSink) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *GormSink) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultNotificationTTL
	}
	return s.TTL
}

// Payload marshals v into a JSON column value. Marshal failures yield an
// empty object; the payload is informational only.
func Payload(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}
