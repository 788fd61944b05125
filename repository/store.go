// Package repository is the relational store used by the escrow and onboarding services.
package repository

import (
	"context"
	"errors"
	"time"

	"luxe-escrow-server/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type BookingFilter struct {
	PartnerID     string
	CustomerID    string
	Status        models.BookingStatus
	PaymentStatus models.PaymentStatus
	Limit         int
	Offset        int
}

type OperationFilter struct {
	BookingID     string
	Steps         []models.OperationStep
	UpdatedBefore *time.Time
	Limit         int
}

// Store reads and writes the marketplace tables. Implementations return ErrNotFound
// for missing rows and ErrDuplicate for unique-key violations.
type Store interface {
	// WithTx runs fn inside one transaction; fn receives a Store bound to it.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	GetBooking(ctx context.Context, id string) (*models.PartnerBooking, error)
	// LockBooking loads a booking and holds a row lock until the surrounding transaction ends.
	LockBooking(ctx context.Context, id string) (*models.PartnerBooking, error)
	FindBookingByPaymentIntent(ctx context.Context, intentID string) (*models.PartnerBooking, error)
	CreateBooking(ctx context.Context, b *models.PartnerBooking) error
	SaveBooking(ctx context.Context, b *models.PartnerBooking) error
	ListBookings(ctx context.Context, f BookingFilter) ([]models.PartnerBooking, error)

	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error)

	GetPartnerAccount(ctx context.Context, partnerID string) (*models.PartnerStripeAccount, error)
	GetPartnerAccountByStripeID(ctx context.Context, stripeAccountID string) (*models.PartnerStripeAccount, error)
	// SavePartnerAccount upserts by partner id and mirrors the gateway flags onto users.
	SavePartnerAccount(ctx context.Context, a *models.PartnerStripeAccount) error

	GetOperation(ctx context.Context, id string) (*models.EscrowOperation, error)
	FindOperation(ctx context.Context, idempotencyKey string) (*models.EscrowOperation, error)
	CreateOperation(ctx context.Context, op *models.EscrowOperation) error
	SaveOperation(ctx context.Context, op *models.EscrowOperation) error
	ListOperations(ctx context.Context, f OperationFilter) ([]models.EscrowOperation, error)

	CreatePartnerNotification(ctx context.Context, n *models.PartnerNotification) error
	ListPartnerNotifications(ctx context.Context, partnerID string, limit int) ([]models.PartnerNotification, error)
	MarkPartnerNotificationRead(ctx context.Context, id, partnerID string) error
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error

	CreatePartnerDocument(ctx context.Context, d *models.PartnerDocument) error
	ListPartnerDocuments(ctx context.Context, partnerID string) ([]models.PartnerDocument, error)
}
