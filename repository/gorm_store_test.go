package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"luxe-escrow-server/database"
	"luxe-escrow-server/models"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps the in-memory database alive for the whole test.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGormStore(db)
}

func TestBookingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	intent := "pi_123"
	b := &models.PartnerBooking{
		PartnerID:             "partner-1",
		CustomerID:            "customer-1",
		TotalAmount:           decimal.RequireFromString("500.00"),
		Currency:              "eur",
		ServiceType:           "adventure",
		CommissionRate:        decimal.RequireFromString("0.15"),
		CommissionAmount:      decimal.RequireFromString("75.00"),
		PartnerEarnings:       decimal.RequireFromString("425.00"),
		PaymentStatus:         models.PaymentStatusHeldEscrow,
		StripePaymentIntentID: &intent,
	}
	if err := s.CreateBooking(ctx, b); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if b.ID == "" || b.Status != models.BookingStatusPending {
		t.Fatalf("defaults not applied: id=%q status=%q", b.ID, b.Status)
	}

	got, err := s.FindBookingByPaymentIntent(ctx, intent)
	if err != nil {
		t.Fatalf("FindBookingByPaymentIntent: %v", err)
	}
	if !got.PartnerEarnings.Equal(decimal.RequireFromString("425")) || !got.SplitBalances() {
		t.Errorf("decimal columns did not round-trip: %+v", got)
	}

	got.Status = models.BookingStatusConfirmed
	if err := s.SaveBooking(ctx, got); err != nil {
		t.Fatalf("SaveBooking: %v", err)
	}

	err = s.WithTx(ctx, func(tx Store) error {
		locked, err := tx.LockBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if locked.Status != models.BookingStatusConfirmed {
			t.Errorf("locked status = %s, want confirmed", locked.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	if _, err := s.GetBooking(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBooking(missing) = %v, want ErrNotFound", err)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateBooking(ctx, &models.PartnerBooking{ID: "rolled-back", PartnerID: "p", CustomerID: "c", Currency: "eur"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx = %v, want boom", err)
	}
	if _, err := s.GetBooking(ctx, "rolled-back"); !errors.Is(err, ErrNotFound) {
		t.Errorf("booking survived rollback: %v", err)
	}
}

func TestListBookingsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, ps := range []models.PaymentStatus{models.PaymentStatusHeldEscrow, models.PaymentStatusReleased, models.PaymentStatusHeldEscrow} {
		b := &models.PartnerBooking{PartnerID: "partner-1", CustomerID: "c", Currency: "eur", PaymentStatus: ps}
		if i == 2 {
			b.PartnerID = "partner-2"
		}
		if err := s.CreateBooking(ctx, b); err != nil {
			t.Fatalf("CreateBooking: %v", err)
		}
	}

	held, err := s.ListBookings(ctx, BookingFilter{PaymentStatus: models.PaymentStatusHeldEscrow})
	if err != nil || len(held) != 2 {
		t.Fatalf("held bookings = %d, err %v", len(held), err)
	}
	mine, err := s.ListBookings(ctx, BookingFilter{PartnerID: "partner-1"})
	if err != nil || len(mine) != 2 {
		t.Fatalf("partner-1 bookings = %d, err %v", len(mine), err)
	}
}

func TestOperationIdempotencyKeyIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := models.OperationKey(models.OperationRelease, "booking-1")
	first := &models.EscrowOperation{BookingID: "booking-1", Kind: models.OperationRelease, IdempotencyKey: key}
	if err := s.CreateOperation(ctx, first); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}
	dup := &models.EscrowOperation{BookingID: "booking-1", Kind: models.OperationRelease, IdempotencyKey: key}
	if err := s.CreateOperation(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate CreateOperation = %v, want ErrDuplicate", err)
	}

	found, err := s.FindOperation(ctx, key)
	if err != nil || found.ID != first.ID {
		t.Fatalf("FindOperation = %+v, %v", found, err)
	}

	found.Step = models.StepCaptured
	if err := s.SaveOperation(ctx, found); err != nil {
		t.Fatalf("SaveOperation: %v", err)
	}

	cutoff := time.Now().Add(time.Minute)
	stale, err := s.ListOperations(ctx, OperationFilter{
		Steps:         []models.OperationStep{models.StepStarted, models.StepCaptured},
		UpdatedBefore: &cutoff,
	})
	if err != nil || len(stale) != 1 {
		t.Fatalf("stale operations = %d, err %v", len(stale), err)
	}
	done, err := s.ListOperations(ctx, OperationFilter{Steps: []models.OperationStep{models.StepCompleted}})
	if err != nil || len(done) != 0 {
		t.Fatalf("completed operations = %d, err %v", len(done), err)
	}
}

func TestSavePartnerAccountMirrorsUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.db.Create(&models.User{ID: "partner-1", Email: "p@example.com", Role: models.RolePartner}).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	acct := &models.PartnerStripeAccount{PartnerID: "partner-1", StripeAccountID: "acct_1", RequirementsDue: []string{"external_account"}}
	if err := s.SavePartnerAccount(ctx, acct); err != nil {
		t.Fatalf("SavePartnerAccount: %v", err)
	}
	firstID := acct.ID

	update := &models.PartnerStripeAccount{PartnerID: "partner-1", StripeAccountID: "acct_1", ChargesEnabled: true, PayoutsEnabled: true}
	if err := s.SavePartnerAccount(ctx, update); err != nil {
		t.Fatalf("SavePartnerAccount update: %v", err)
	}
	if update.ID != firstID {
		t.Errorf("upsert created a second row: %s vs %s", update.ID, firstID)
	}

	byStripe, err := s.GetPartnerAccountByStripeID(ctx, "acct_1")
	if err != nil || !byStripe.PayoutsEnabled {
		t.Fatalf("GetPartnerAccountByStripeID = %+v, %v", byStripe, err)
	}

	u, err := s.GetUser(ctx, "partner-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.StripeAccountID == nil || *u.StripeAccountID != "acct_1" || !u.StripePayoutsEnabled {
		t.Errorf("user not mirrored: %+v", u)
	}
}

func TestNotificationsReadFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := &models.PartnerNotification{PartnerID: "partner-1", Type: models.NotifNewBooking, Title: "t", Message: "m"}
	if err := s.CreatePartnerNotification(ctx, n); err != nil {
		t.Fatalf("CreatePartnerNotification: %v", err)
	}
	if err := s.MarkPartnerNotificationRead(ctx, n.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign mark read = %v, want ErrNotFound", err)
	}
	if err := s.MarkPartnerNotificationRead(ctx, n.ID, "partner-1"); err != nil {
		t.Fatalf("MarkPartnerNotificationRead: %v", err)
	}
	list, err := s.ListPartnerNotifications(ctx, "partner-1", 10)
	if err != nil || len(list) != 1 || !list[0].Read {
		t.Fatalf("ListPartnerNotifications = %+v, %v", list, err)
	}

	un := &models.Notification{UserID: "user-1", Type: models.NotifBookingAccepted, Title: "t", Message: "m", Data: []byte(`{"booking_id":"b1"}`)}
	if err := s.CreateNotification(ctx, un); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if err := s.MarkNotificationRead(ctx, un.ID, "user-1"); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	feed, err := s.ListNotifications(ctx, "user-1", 0)
	if err != nil || len(feed) != 1 || !feed[0].Read {
		t.Fatalf("ListNotifications = %+v, %v", feed, err)
	}
}
