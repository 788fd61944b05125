package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotifNewBooking        NotificationType = "new_booking"
	NotifBookingAccepted   NotificationType = "booking_accepted"
	NotifBookingRejected   NotificationType = "booking_rejected"
	NotifPaymentReleased   NotificationType = "payment_released"
	NotifPaymentApproved   NotificationType = "payment_approved"
	NotifPaymentRefunded   NotificationType = "payment_refunded"
	NotifPaymentExpired    NotificationType = "payment_expired"
	NotifAccountUpdated    NotificationType = "account_updated"
	NotifOperationFailed   NotificationType = "escrow_operation_failed"
	NotifDocumentSubmitted NotificationType = "document_submitted"
)

// PartnerNotification is shown on the partner dashboard.
type PartnerNotification struct {
	ID        string           `json:"id" gorm:"type:uuid;primaryKey"`
	PartnerID string           `json:"partner_id" gorm:"type:uuid;not null;index"`
	BookingID *string          `json:"booking_id" gorm:"type:uuid"`
	Type      NotificationType `json:"type" gorm:"type:varchar(50);not null"`
	Title     string           `json:"title" gorm:"not null"`
	Message   string           `json:"message" gorm:"type:text;not null"`
	Read      bool             `json:"read" gorm:"default:false"`
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the PartnerNotification model
func (PartnerNotification) TableName() string {
	return "partner_notifications"
}

func (n *PartnerNotification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// Notification is the generic per-user feed (customers and admins).
type Notification struct {
	ID        string           `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    string           `json:"user_id" gorm:"type:uuid;not null;index"`
	Type      NotificationType `json:"type" gorm:"type:varchar(50);not null"`
	Title     string           `json:"title" gorm:"not null"`
	Message   string           `json:"message" gorm:"type:text;not null"`
	Data      datatypes.JSON   `json:"data"`
	Read      bool             `json:"read" gorm:"default:false"`
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
