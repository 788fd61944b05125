package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"luxe-escrow-server/models"
)

const defaultListLimit = 50

// GormStore implements Store on a gorm connection (Supabase Postgres in production).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 200 {
		return defaultListLimit
	}
	return limit
}

func (s *GormStore) GetBooking(ctx context.Context, id string) (*models.PartnerBooking, error) {
	var b models.PartnerBooking
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get booking "+id)
	}
	return &b, nil
}

func (s *GormStore) LockBooking(ctx context.Context, id string) (*models.PartnerBooking, error) {
	var b models.PartnerBooking
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "lock booking "+id)
	}
	return &b, nil
}

func (s *GormStore) FindBookingByPaymentIntent(ctx context.Context, intentID string) (*models.PartnerBooking, error) {
	var b models.PartnerBooking
	if err := s.db.WithContext(ctx).First(&b, "stripe_payment_intent_id = ?", intentID).Error; err != nil {
		return nil, translate(err, "find booking by intent "+intentID)
	}
	return &b, nil
}

func (s *GormStore) CreateBooking(ctx context.Context, b *models.PartnerBooking) error {
	return translate(s.db.WithContext(ctx).Create(b).Error, "create booking")
}

func (s *GormStore) SaveBooking(ctx context.Context, b *models.PartnerBooking) error {
	return translate(s.db.WithContext(ctx).Save(b).Error, "save booking "+b.ID)
}

func (s *GormStore) ListBookings(ctx context.Context, f BookingFilter) ([]models.PartnerBooking, error) {
	q := s.db.WithContext(ctx).Model(&models.PartnerBooking{})
	if f.PartnerID != "" {
		q = q.Where("partner_id = ?", f.PartnerID)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}

	var bookings []models.PartnerBooking
	err := q.Order("created_at DESC").
		Limit(limitOrDefault(f.Limit)).
		Offset(f.Offset).
		Find(&bookings).Error
	return bookings, translate(err, "list bookings")
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get user "+id)
	}
	return &u, nil
}

func (s *GormStore) ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Where("role = ?", role).Find(&users).Error
	return users, translate(err, "list users")
}

func (s *GormStore) GetPartnerAccount(ctx context.Context, partnerID string) (*models.PartnerStripeAccount, error) {
	var a models.PartnerStripeAccount
	if err := s.db.WithContext(ctx).First(&a, "partner_id = ?", partnerID).Error; err != nil {
		return nil, translate(err, "get partner account "+partnerID)
	}
	return &a, nil
}

func (s *GormStore) GetPartnerAccountByStripeID(ctx context.Context, stripeAccountID string) (*models.PartnerStripeAccount, error) {
	var a models.PartnerStripeAccount
	if err := s.db.WithContext(ctx).First(&a, "stripe_account_id = ?", stripeAccountID).Error; err != nil {
		return nil, translate(err, "get partner account by stripe id "+stripeAccountID)
	}
	return &a, nil
}

func (s *GormStore) SavePartnerAccount(ctx context.Context, a *models.PartnerStripeAccount) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PartnerStripeAccount
		err := tx.First(&existing, "partner_id = ?", a.PartnerID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(a).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			a.ID = existing.ID
			a.CreatedAt = existing.CreatedAt
			if err := tx.Save(a).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.User{}).
			Where("id = ?", a.PartnerID).
			Updates(map[string]interface{}{
				"stripe_account_id":      a.StripeAccountID,
				"stripe_charges_enabled": a.ChargesEnabled,
				"stripe_payouts_enabled": a.PayoutsEnabled,
			}).Error
	})
	return translate(err, "save partner account "+a.PartnerID)
}

func (s *GormStore) GetOperation(ctx context.Context, id string) (*models.EscrowOperation, error) {
	var op models.EscrowOperation
	if err := s.db.WithContext(ctx).First(&op, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get escrow operation "+id)
	}
	return &op, nil
}

func (s *GormStore) FindOperation(ctx context.Context, idempotencyKey string) (*models.EscrowOperation, error) {
	var op models.EscrowOperation
	if err := s.db.WithContext(ctx).First(&op, "idempotency_key = ?", idempotencyKey).Error; err != nil {
		return nil, translate(err, "find escrow operation "+idempotencyKey)
	}
	return &op, nil
}

func (s *GormStore) CreateOperation(ctx context.Context, op *models.EscrowOperation) error {
	return translate(s.db.WithContext(ctx).Create(op).Error, "create escrow operation")
}

func (s *GormStore) SaveOperation(ctx context.Context, op *models.EscrowOperation) error {
	return translate(s.db.WithContext(ctx).Save(op).Error, "save escrow operation "+op.ID)
}

func (s *GormStore) ListOperations(ctx context.Context, f OperationFilter) ([]models.EscrowOperation, error) {
	q := s.db.WithContext(ctx).Model(&models.EscrowOperation{})
	if f.BookingID != "" {
		q = q.Where("booking_id = ?", f.BookingID)
	}
	if len(f.Steps) > 0 {
		q = q.Where("step IN ?", f.Steps)
	}
	if f.UpdatedBefore != nil {
		q = q.Where("updated_at < ?", *f.UpdatedBefore)
	}

	var ops []models.EscrowOperation
	err := q.Order("updated_at ASC").Limit(limitOrDefault(f.Limit)).Find(&ops).Error
	return ops, translate(err, "list escrow operations")
}

func (s *GormStore) CreatePartnerNotification(ctx context.Context, n *models.PartnerNotification) error {
	return translate(s.db.WithContext(ctx).Create(n).Error, "create partner notification")
}

func (s *GormStore) ListPartnerNotifications(ctx context.Context, partnerID string, limit int) ([]models.PartnerNotification, error) {
	var out []models.PartnerNotification
	err := s.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC").
		Limit(limitOrDefault(limit)).
		Find(&out).Error
	return out, translate(err, "list partner notifications")
}

func (s *GormStore) MarkPartnerNotificationRead(ctx context.Context, id, partnerID string) error {
	res := s.db.WithContext(ctx).
		Model(&models.PartnerNotification{}).
		Where("id = ? AND partner_id = ?", id, partnerID).
		Update("read", true)
	if res.Error != nil {
		return translate(res.Error, "mark partner notification read")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("partner notification %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return translate(s.db.WithContext(ctx).Create(n).Error, "create notification")
}

func (s *GormStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var out []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limitOrDefault(limit)).
		Find(&out).Error
	return out, translate(err, "list notifications")
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return translate(res.Error, "mark notification read")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreatePartnerDocument(ctx context.Context, d *models.PartnerDocument) error {
	return translate(s.db.WithContext(ctx).Create(d).Error, "create partner document")
}

func (s *GormStore) ListPartnerDocuments(ctx context.Context, partnerID string) ([]models.PartnerDocument, error) {
	var out []models.PartnerDocument
	err := s.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC").
		Find(&out).Error
	return out, translate(err, "list partner documents")
}
