package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid              PaymentStatus = "unpaid"
	PaymentStatusHeldEscrow          PaymentStatus = "held_escrow"
	PaymentStatusReleased            PaymentStatus = "released"
	PaymentStatusCapturedTransferred PaymentStatus = "captured_transferred"
	PaymentStatusRefunded            PaymentStatus = "refunded"
	PaymentStatusCancelled           PaymentStatus = "cancelled"
)

// PartnerBooking is a customer-partner transaction whose payment is held in escrow.
type PartnerBooking struct {
	ID                    string          `json:"id" gorm:"type:uuid;primaryKey"`
	PartnerID             string          `json:"partner_id" gorm:"type:uuid;not null;index"`
	CustomerID            string          `json:"customer_id" gorm:"type:uuid;not null;index"`
	TotalAmount           decimal.Decimal `json:"total_amount" gorm:"type:numeric(12,2);not null"`
	Currency              string          `json:"currency" gorm:"type:varchar(3);not null"`
	ServiceType           string          `json:"service_type" gorm:"type:varchar(50);not null"`
	CommissionRate        decimal.Decimal `json:"commission_rate" gorm:"type:numeric(5,4);not null;default:0"`
	CommissionAmount      decimal.Decimal `json:"commission_amount" gorm:"type:numeric(12,2);not null;default:0"`
	PartnerEarnings       decimal.Decimal `json:"partner_earnings" gorm:"type:numeric(12,2);not null;default:0"`
	Status                BookingStatus   `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	PaymentStatus         PaymentStatus   `json:"payment_status" gorm:"type:varchar(30);not null;default:'unpaid';index"`
	StripePaymentIntentID *string         `json:"stripe_payment_intent_id" gorm:"type:varchar(255);index"`
	StripeTransferID      *string         `json:"stripe_transfer_id" gorm:"type:varchar(255)"`
	RejectionReason       *string         `json:"rejection_reason" gorm:"type:text"`
	ApprovedBy            *string         `json:"approved_by" gorm:"type:uuid"`
	AcceptedAt            *time.Time      `json:"accepted_at"`
	CompletedAt           *time.Time      `json:"completed_at"`
	CancelledAt           *time.Time      `json:"cancelled_at"`
	CreatedAt             time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the PartnerBooking model
func (PartnerBooking) TableName() string {
	return "partner_bookings"
}

// BeforeCreate assigns an id when the caller did not supply one
func (b *PartnerBooking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BookingStatusPending
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = PaymentStatusUnpaid
	}
	return nil
}

// SplitBalances reports whether commission and partner earnings add up to the total.
func (b *PartnerBooking) SplitBalances() bool {
	return b.CommissionAmount.Add(b.PartnerEarnings).Equal(b.TotalAmount)
}

// IsHeld reports whether the customer's payment is currently authorized but not captured.
func (b *PartnerBooking) IsHeld() bool {
	return b.PaymentStatus == PaymentStatusHeldEscrow
}

// PaymentIntentID returns the gateway intent id or "" when none was created yet.
func (b *PartnerBooking) PaymentIntentID() string {
	if b.StripePaymentIntentID == nil {
		return ""
	}
	return *b.StripePaymentIntentID
}
