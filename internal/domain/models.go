// Package domain defines the persistence models for programs, applications,
// payment orders, domain tasks, and admin notifications. These types are
// mapped with GORM and form the core data layer of the internship backend.
package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Program is an internship listing with capacity, dates, and fee.
//
// Fields:
//   - TotalSlots / FilledSlots: the capacity ledger. FilledSlots is moved only
//     by the status workflow (transitions into and out of "selected").
//   - StartDate / EndDate: the internship window; EndDate gates certificates.
//   - ApplicationDeadline: last day to apply (clamped to StartDate, see
//     ledger.EffectiveDeadline).
//   - FeeAmount: minor currency units (paise for INR). Zero means free.
type Program struct {
	ID                  string    `json:"id"                   gorm:"type:char(36);primaryKey"`
	Title               string    `json:"title"                gorm:"type:varchar(255);not null"`
	Domain              string    `json:"domain"               gorm:"type:varchar(128);not null"`
	TotalSlots          int       `json:"total_slots"          gorm:"not null;default:0"`
	FilledSlots         int       `json:"filled_slots"         gorm:"not null;default:0"`
	StartDate           time.Time `json:"start_date"           gorm:"not null;index"`
	EndDate             time.Time `json:"end_date"             gorm:"not null"`
	ApplicationDeadline time.Time `json:"application_deadline" gorm:"not null"`
	FeeAmount           int64     `json:"fee_amount"           gorm:"not null;default:0"`
	Currency            string    `json:"currency"             gorm:"type:varchar(8);not null;default:'INR'"`
	IsActive            bool      `json:"is_active"            gorm:"not null;default:true"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName returns the database table name for Program.
func (Program) TableName() string { return "programs" }

// BeforeSave normalizes program dates to UTC. SQLite compares stored
// timestamps as text, so mixed offsets would break date-range queries.
func (p *Program) BeforeSave(*gorm.DB) error {
	p.StartDate = p.StartDate.UTC()
	p.EndDate = p.EndDate.UTC()
	p.ApplicationDeadline = p.ApplicationDeadline.UTC()
	return nil
}

// Payment is the payment sub-record embedded in an Application.
type Payment struct {
	Status         PaymentStatus `json:"status"          gorm:"type:varchar(16);not null;default:'pending'"`
	OrderID        string        `json:"order_id"        gorm:"type:varchar(64)"`
	TransactionRef string        `json:"transaction_ref" gorm:"type:varchar(64)"`
	Amount         int64         `json:"amount"          gorm:"not null;default:0"`
	Currency       string        `json:"currency"        gorm:"type:varchar(8)"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	ChangedAt      *time.Time    `json:"changed_at,omitempty"`
}

// Application is one candidate submission that reached creation.
//
// Code is the human-shareable identity, assigned once before the first write.
// Together with Email it acts as the capability token for document fetches.
// The applicant fields are a snapshot taken at submission time.
type Application struct {
	ID        string  `json:"id"         gorm:"type:char(36);primaryKey"`
	Code      string  `json:"code"       gorm:"type:varchar(16);not null;uniqueIndex:ux_application_code"`
	ProgramID *string `json:"program_id" gorm:"type:char(36);index:idx_app_email_program,priority:2"`

	Name        string `json:"name"        gorm:"type:varchar(255);not null"`
	Email       string `json:"email"       gorm:"type:varchar(255);not null;index:idx_app_email_program,priority:1"`
	Phone       string `json:"phone"       gorm:"type:varchar(32);not null"`
	Institution string `json:"institution" gorm:"type:varchar(255);not null"`
	Skills      string `json:"skills"      gorm:"type:text"`
	Message     string `json:"message,omitempty"    gorm:"type:text"`
	ResumeRef   string `json:"resume_ref,omitempty" gorm:"type:varchar(512)"`

	Status  Status         `json:"status"  gorm:"type:varchar(16);not null;index"`
	History []StatusChange `json:"history" gorm:"foreignKey:ApplicationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	Payment Payment `json:"payment" gorm:"embedded;embeddedPrefix:payment_"`

	OfferLetterDownloaded      bool       `json:"offer_letter_downloaded"     gorm:"not null;default:false"`
	OfferLetterDownloadedAt    *time.Time `json:"offer_letter_downloaded_at,omitempty"`
	TaskAssignmentDownloaded   bool       `json:"task_assignment_downloaded"  gorm:"not null;default:false"`
	TaskAssignmentDownloadedAt *time.Time `json:"task_assignment_downloaded_at,omitempty"`
	CertificateDownloaded      bool       `json:"certificate_downloaded"      gorm:"not null;default:false"`
	CertificateDownloadedAt    *time.Time `json:"certificate_downloaded_at,omitempty"`

	Notes     string    `json:"notes,omitempty" gorm:"type:text"`
	CreatedBy Creator   `json:"created_by"      gorm:"type:varchar(16);not null;default:'applicant'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Program *Program `json:"program,omitempty" gorm:"foreignKey:ProgramID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Application.
func (Application) TableName() string { return "applications" }

// StatusChange is one append-only entry in an application's workflow history.
type StatusChange struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	ApplicationID string    `json:"application_id" gorm:"type:char(36);not null;index:idx_history_app,priority:1"`
	Status        Status    `json:"status"         gorm:"type:varchar(16);not null"`
	Actor         string    `json:"actor"          gorm:"type:varchar(128);not null"`
	Comment       string    `json:"comment,omitempty" gorm:"type:text"`
	At            time.Time `json:"at"             gorm:"not null;index:idx_history_app,priority:2"`
}

// TableName returns the database table name for StatusChange.
func (StatusChange) TableName() string { return "application_status_history" }

// ApplicationClaim reserves an (email, program) pair. It is written in the
// same transaction as the application when the claim-based duplicate guard is
// active; the unique index turns a concurrent second submission into a
// constraint violation instead of a second row.
type ApplicationClaim struct {
	Email         string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_claim_email_program,priority:1"`
	ProgramKey    string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_claim_email_program,priority:2"`
	ApplicationID string    `gorm:"type:char(36);primaryKey"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the database table name for ApplicationClaim.
func (ApplicationClaim) TableName() string { return "application_claims" }

// PaymentOrder records a gateway order created for a program so that a
// verified payment can be bound to the program it was paid for, and used at
// most once.
type PaymentOrder struct {
	OrderID       string    `json:"order_id"  gorm:"type:varchar(64);primaryKey"`
	ProgramID     string    `json:"program_id" gorm:"type:char(36);not null;index"`
	Amount        int64     `json:"amount"    gorm:"not null"`
	Currency      string    `json:"currency"  gorm:"type:varchar(8);not null"`
	Receipt       string    `json:"receipt"   gorm:"type:varchar(64);not null"`
	Status        string    `json:"status"    gorm:"type:varchar(16);not null;default:'created'"`
	ApplicationID *string   `json:"application_id,omitempty" gorm:"type:char(36)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for PaymentOrder.
func (PaymentOrder) TableName() string { return "payment_orders" }

// Payment order states.
const (
	OrderCreated  = "created"
	OrderConsumed = "consumed"
)

// DomainTask is the active task set for a program. It is maintained by admin
// tooling and only read here, to render the task assignment document.
type DomainTask struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	ProgramID string         `json:"program_id" gorm:"type:char(36);not null;index"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null"`
	Items     datatypes.JSON `json:"items"`
	IsActive  bool           `json:"is_active"  gorm:"not null;default:true;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName returns the database table name for DomainTask.
func (DomainTask) TableName() string { return "domain_tasks" }

// Notification is an append-only admin-facing event. Rows past ExpiresAt are
// purged by the scheduler.
type Notification struct {
	ID        string         `json:"id"      gorm:"type:char(36);primaryKey"`
	Type      string         `json:"type"    gorm:"type:varchar(64);not null;index"`
	Title     string         `json:"title"   gorm:"type:varchar(255);not null"`
	Message   string         `json:"message" gorm:"type:text"`
	Payload   datatypes.JSON `json:"payload"`
	Read      bool           `json:"read"    gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at" gorm:"not null;index"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
