package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OperationKind string

const (
	OperationRelease      OperationKind = "release"
	OperationAdminRelease OperationKind = "admin_release"
	OperationCancel       OperationKind = "cancel"
	OperationAdminRefund  OperationKind = "admin_refund"
)

// Releases reports whether the operation moves money to the partner.
func (k OperationKind) Releases() bool {
	return k == OperationRelease || k == OperationAdminRelease
}

type OperationStep string

const (
	StepStarted     OperationStep = "started"
	StepCaptured    OperationStep = "captured"
	StepTransferred OperationStep = "transferred"
	StepCancelled   OperationStep = "cancelled"
	StepCompleted   OperationStep = "completed"
	StepFailed      OperationStep = "failed"
)

// EscrowOperation is the persisted record of a multi-step gateway sequence on a booking.
// Each step is saved before the next gateway call so an interrupted sequence can be resumed.
type EscrowOperation struct {
	ID                 string        `json:"id" gorm:"type:uuid;primaryKey"`
	BookingID          string        `json:"booking_id" gorm:"type:uuid;not null;index"`
	Kind               OperationKind `json:"kind" gorm:"type:varchar(20);not null"`
	IdempotencyKey     string        `json:"idempotency_key" gorm:"type:varchar(120);uniqueIndex;not null"`
	Step               OperationStep `json:"step" gorm:"type:varchar(20);not null;default:'started';index"`
	PaymentIntentID    string        `json:"payment_intent_id" gorm:"type:varchar(255)"`
	TransferID         *string       `json:"transfer_id" gorm:"type:varchar(255)"`
	AmountCents        int64         `json:"amount_cents"`
	Currency           string        `json:"currency" gorm:"type:varchar(3)"`
	DestinationAccount string        `json:"destination_account" gorm:"type:varchar(255)"`
	ActorID            string        `json:"actor_id" gorm:"type:uuid"`
	Reason             *string       `json:"reason" gorm:"type:text"`
	Attempts           int           `json:"attempts" gorm:"default:0"`
	LastError          *string       `json:"last_error" gorm:"type:text"`
	CreatedAt          time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the EscrowOperation model
func (EscrowOperation) TableName() string {
	return "escrow_operations"
}

func (o *EscrowOperation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Step == "" {
		o.Step = StepStarted
	}
	return nil
}

// OperationKey is the idempotency key shared by every attempt of kind on bookingID.
func OperationKey(kind OperationKind, bookingID string) string {
	return fmt.Sprintf("%s:%s", kind, bookingID)
}

// GatewayKey derives the idempotency key sent to the gateway for one step of the operation.
func (o *EscrowOperation) GatewayKey(step string) string {
	return o.ID + ":" + step
}

// Terminal reports whether no further gateway work remains.
func (o *EscrowOperation) Terminal() bool {
	return o.Step == StepCompleted || o.Step == StepFailed
}
