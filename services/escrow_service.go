package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"luxe-escrow-server/models"
	"luxe-escrow-server/payments"
	"luxe-escrow-server/repository"
	"luxe-escrow-server/utils"
)

// EscrowService moves booking payments through hold, release, cancel and refund.
type EscrowService struct {
	store   repository.Store
	gateway payments.Gateway
	notify  *Notifier
	now     func() time.Time
}

func NewEscrowService(store repository.Store, gateway payments.Gateway, notifier *Notifier) *EscrowService {
	return &EscrowService{
		store:   store,
		gateway: gateway,
		notify:  notifier,
		now:     time.Now,
	}
}

type BookingPaymentInput struct {
	BookingID   string
	PartnerID   string
	CustomerID  string
	Amount      decimal.Decimal
	Currency    string
	ServiceType string
}

type BookingPaymentResult struct {
	ClientSecret    string     `json:"clientSecret"`
	PaymentIntentID string     `json:"paymentIntentId"`
	Commission      Commission `json:"commission"`
}

// ReleaseResult is returned once the partner's share has been transferred.
type ReleaseResult struct {
	Transfer *payments.Transfer     `json:"transfer"`
	Booking  *models.PartnerBooking `json:"booking"`
}

// CreateBookingPayment authorizes the customer's payment for a booking without capturing it.
func (s *EscrowService) CreateBookingPayment(ctx context.Context, in BookingPaymentInput) (*BookingPaymentResult, error) {
	if in.BookingID == "" || in.PartnerID == "" || in.CustomerID == "" {
		return nil, E(KindValidation, "bookingId, partnerId and customerId are required")
	}
	if !in.Amount.IsPositive() {
		return nil, E(KindValidation, "Amount must be greater than zero")
	}
	if !utils.WithinChargeLimit(in.Amount) {
		return nil, E(KindValidation, "Amount cannot exceed %s", utils.FromMinorUnits(utils.MaxMinorUnits).StringFixed(2))
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, E(KindValidation, "Amount cannot have more than two decimal places")
	}
	currency := utils.NormalizeCurrency(in.Currency)
	if !utils.IsCurrencyCode(currency) {
		return nil, E(KindValidation, "Currency must be a 3-letter ISO code")
	}
	serviceType := strings.ToLower(strings.TrimSpace(in.ServiceType))

	acct, err := s.partnerAccount(ctx, s.store, in.PartnerID)
	if err != nil {
		return nil, err
	}
	if !acct.ChargesEnabled {
		return nil, E(KindForbidden, "Partner account is not enabled for charges yet")
	}

	existing, err := s.store.GetBooking(ctx, in.BookingID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, Wrap(KindInternal, err, "Failed to load booking")
	}
	if existing != nil {
		if existing.PartnerID != in.PartnerID || existing.CustomerID != in.CustomerID {
			return nil, E(KindForbidden, "Booking does not belong to this partner and customer")
		}
		if existing.IsHeld() {
			if !existing.TotalAmount.Equal(in.Amount) {
				return nil, E(KindConflict, "Booking already holds a payment for a different amount")
			}
			return s.replayBookingPayment(ctx, existing)
		}
		if existing.Status != models.BookingStatusPending || existing.PaymentStatus != models.PaymentStatusUnpaid {
			return nil, E(KindInvalidState, "Booking cannot take a payment in status %s/%s", existing.Status, existing.PaymentStatus)
		}
	}

	commission := CalculateCommission(in.Amount, serviceType)
	cents := utils.ToMinorUnits(in.Amount)
	intent, err := s.gateway.CreatePaymentIntent(ctx, payments.PaymentIntentInput{
		AmountCents:   cents,
		Currency:      currency,
		TransferGroup: in.BookingID,
		Description:   fmt.Sprintf("%s booking %s", serviceType, in.BookingID),
		Metadata: map[string]string{
			"booking_id":        in.BookingID,
			"partner_id":        in.PartnerID,
			"customer_id":       in.CustomerID,
			"service_type":      serviceType,
			"commission_rate":   commission.Rate.String(),
			"commission_amount": commission.Amount.StringFixed(2),
			"partner_earnings":  commission.PartnerEarnings.StringFixed(2),
		},
		IdempotencyKey: fmt.Sprintf("booking-payment:%s:%d", in.BookingID, cents),
	})
	if err != nil {
		log.Printf("❌ Failed to create payment intent for booking %s: %v", in.BookingID, err)
		return nil, Wrap(KindUpstream, err, "Failed to create payment")
	}

	hold := func(b *models.PartnerBooking) {
		b.TotalAmount = in.Amount
		b.Currency = currency
		b.ServiceType = serviceType
		b.CommissionRate = commission.Rate
		b.CommissionAmount = commission.Amount
		b.PartnerEarnings = commission.PartnerEarnings
		b.StripePaymentIntentID = &intent.ID
		b.PaymentStatus = models.PaymentStatusHeldEscrow
	}

	var booking *models.PartnerBooking
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.LockBooking(ctx, in.BookingID)
		if errors.Is(err, repository.ErrNotFound) {
			b = &models.PartnerBooking{
				ID:         in.BookingID,
				PartnerID:  in.PartnerID,
				CustomerID: in.CustomerID,
				Status:     models.BookingStatusPending,
			}
			hold(b)
			if err := tx.CreateBooking(ctx, b); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return E(KindConflict, "Booking payment is already being created")
				}
				return Wrap(KindInternal, err, "Failed to create booking")
			}
			booking = b
			return nil
		}
		if err != nil {
			return Wrap(KindInternal, err, "Failed to load booking")
		}
		if b.IsHeld() && b.PaymentIntentID() == intent.ID {
			booking = b
			return nil
		}
		if b.Status != models.BookingStatusPending || b.PaymentStatus != models.PaymentStatusUnpaid {
			return E(KindConflict, "Booking changed while the payment was being created")
		}
		hold(b)
		if err := tx.SaveBooking(ctx, b); err != nil {
			return Wrap(KindInternal, err, "Failed to save booking payment")
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Payment %s held in escrow for booking %s (%s %s)", intent.ID, booking.ID, in.Amount.StringFixed(2), currency)
	s.notify.Partner(ctx, booking.PartnerID, booking.ID, models.NotifNewBooking,
		"New booking received",
		fmt.Sprintf("A new %s of %s is awaiting your confirmation.", bookingLabel(serviceType), displayAmount(in.Amount, currency)))
	s.notify.Event(ctx, "booking.payment_held", bookingEvent(booking))

	return &BookingPaymentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Commission:      commission,
	}, nil
}

func (s *EscrowService) replayBookingPayment(ctx context.Context, b *models.PartnerBooking) (*BookingPaymentResult, error) {
	intent, err := s.gateway.GetPaymentIntent(ctx, b.PaymentIntentID())
	if err != nil {
		return nil, Wrap(KindUpstream, err, "Failed to load existing payment")
	}
	return &BookingPaymentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Commission:      bookingCommission(b),
	}, nil
}

// AcceptBooking confirms a pending booking. The held payment is not touched.
func (s *EscrowService) AcceptBooking(ctx context.Context, bookingID, partnerID string) (*models.PartnerBooking, error) {
	if bookingID == "" || partnerID == "" {
		return nil, E(KindValidation, "bookingId and partnerId are required")
	}

	var booking *models.PartnerBooking
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if err := ownedBy(partnerID)(b); err != nil {
			return err
		}
		if b.Status != models.BookingStatusPending {
			return E(KindInvalidState, "Booking cannot be accepted in status %s", b.Status)
		}
		now := s.now()
		b.Status = models.BookingStatusConfirmed
		b.AcceptedAt = &now
		if err := tx.SaveBooking(ctx, b); err != nil {
			return Wrap(KindInternal, err, "Failed to accept booking")
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Booking %s accepted by partner %s", booking.ID, partnerID)
	s.notify.User(ctx, booking.CustomerID, models.NotifBookingAccepted,
		"Booking confirmed",
		"Your booking has been confirmed by the partner.",
		map[string]interface{}{"booking_id": booking.ID})
	s.notify.Event(ctx, "booking.accepted", bookingEvent(booking))
	return booking, nil
}

// RejectBooking cancels a pending or confirmed booking. A held payment is voided, never transferred.
func (s *EscrowService) RejectBooking(ctx context.Context, bookingID, partnerID, reason string) (*models.PartnerBooking, error) {
	if bookingID == "" || partnerID == "" {
		return nil, E(KindValidation, "bookingId and partnerId are required")
	}
	reasonPtr := optionalText(reason)

	var unpaid *models.PartnerBooking
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if err := ownedBy(partnerID)(b); err != nil {
			return err
		}
		if b.IsHeld() {
			return nil
		}
		_, err = tx.FindOperation(ctx, models.OperationKey(models.OperationCancel, b.ID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return Wrap(KindInternal, err, "Failed to load escrow operation")
		}
		if err := rejectable(b); err != nil {
			return err
		}

		now := s.now()
		b.Status = models.BookingStatusCancelled
		b.CancelledAt = &now
		b.RejectionReason = reasonPtr
		if err := tx.SaveBooking(ctx, b); err != nil {
			return Wrap(KindInternal, err, "Failed to reject booking")
		}
		unpaid = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if unpaid != nil {
		log.Printf("✅ Unpaid booking %s rejected by partner %s", unpaid.ID, partnerID)
		s.announceRejection(ctx, unpaid)
		return unpaid, nil
	}

	op, err := s.beginOperation(ctx, operationRequest{
		bookingID: bookingID,
		kind:      models.OperationCancel,
		actorID:   partnerID,
		reason:    reasonPtr,
		authorize: ownedBy(partnerID),
		validate: func(ctx context.Context, tx repository.Store, b *models.PartnerBooking) (string, error) {
			if err := rejectable(b); err != nil {
				return "", err
			}
			if !b.IsHeld() {
				return "", E(KindInvalidState, "Booking payment is not held in escrow (status %s)", b.PaymentStatus)
			}
			return "", nil
		},
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.advance(ctx, op); err != nil {
		return nil, err
	}
	return s.reloadBooking(ctx, bookingID)
}

// CaptureAndTransfer captures the held payment and sends the partner's share to their connected account.
func (s *EscrowService) CaptureAndTransfer(ctx context.Context, bookingID, partnerID string) (*ReleaseResult, error) {
	if bookingID == "" || partnerID == "" {
		return nil, E(KindValidation, "bookingId and partnerId are required")
	}

	op, err := s.beginOperation(ctx, operationRequest{
		bookingID: bookingID,
		kind:      models.OperationRelease,
		actorID:   partnerID,
		authorize: ownedBy(partnerID),
		validate: func(ctx context.Context, tx repository.Store, b *models.PartnerBooking) (string, error) {
			if !b.IsHeld() {
				return "", E(KindInvalidState, "Payment is not held in escrow (status %s)", b.PaymentStatus)
			}
			if b.Status != models.BookingStatusConfirmed {
				return "", E(KindInvalidState, "Booking must be confirmed before payment is released (status %s)", b.Status)
			}
			return s.payoutDestination(ctx, tx, b)
		},
	})
	if err != nil {
		return nil, err
	}
	if op, err = s.advance(ctx, op); err != nil {
		return nil, err
	}
	return s.releaseResult(ctx, op)
}

// AdminApprovePayment releases a held payment on an admin's authority and completes the booking.
func (s *EscrowService) AdminApprovePayment(ctx context.Context, bookingID, partnerID, adminID string) (*ReleaseResult, error) {
	if bookingID == "" {
		return nil, E(KindValidation, "bookingId is required")
	}
	if err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	op, err := s.beginOperation(ctx, operationRequest{
		bookingID: bookingID,
		kind:      models.OperationAdminRelease,
		actorID:   adminID,
		authorize: func(b *models.PartnerBooking) error {
			if partnerID != "" && partnerID != b.PartnerID {
				return E(KindValidation, "Partner does not match booking")
			}
			return nil
		},
		validate: func(ctx context.Context, tx repository.Store, b *models.PartnerBooking) (string, error) {
			if !b.IsHeld() {
				return "", E(KindInvalidState, "Payment is not held in escrow (status %s)", b.PaymentStatus)
			}
			return s.payoutDestination(ctx, tx, b)
		},
	})
	if err != nil {
		return nil, err
	}
	if op, err = s.advance(ctx, op); err != nil {
		return nil, err
	}
	return s.releaseResult(ctx, op)
}

// AdminRejectPayment voids a held payment and cancels the booking.
func (s *EscrowService) AdminRejectPayment(ctx context.Context, bookingID, adminID, reason string) (*models.PartnerBooking, error) {
	if bookingID == "" {
		return nil, E(KindValidation, "bookingId is required")
	}
	if err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	op, err := s.beginOperation(ctx, operationRequest{
		bookingID: bookingID,
		kind:      models.OperationAdminRefund,
		actorID:   adminID,
		reason:    optionalText(reason),
		validate: func(ctx context.Context, tx repository.Store, b *models.PartnerBooking) (string, error) {
			if !b.IsHeld() {
				return "", E(KindInvalidState, "Payment is not held in escrow (status %s)", b.PaymentStatus)
			}
			return "", nil
		},
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.advance(ctx, op); err != nil {
		return nil, err
	}
	return s.reloadBooking(ctx, bookingID)
}

// HandleIntentCanceled cancels a booking whose authorization was voided by the gateway,
// typically because the hold expired. Bookings with an operation in flight are left to it.
func (s *EscrowService) HandleIntentCanceled(ctx context.Context, intentID string) error {
	b, err := s.store.FindBookingByPaymentIntent(ctx, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("⚠️ No booking for canceled payment intent %s", intentID)
		return nil
	}
	if err != nil {
		return Wrap(KindInternal, err, "Failed to load booking")
	}

	var expired *models.PartnerBooking
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := lockBooking(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if !b.IsHeld() || b.PaymentIntentID() != intentID {
			return nil
		}
		inFlight, err := tx.ListOperations(ctx, repository.OperationFilter{BookingID: b.ID, Steps: inFlightSteps})
		if err != nil {
			return Wrap(KindInternal, err, "Failed to load escrow operations")
		}
		if len(inFlight) > 0 {
			return nil
		}
		now := s.now()
		b.Status = models.BookingStatusCancelled
		b.PaymentStatus = models.PaymentStatusCancelled
		b.CancelledAt = &now
		if err := tx.SaveBooking(ctx, b); err != nil {
			return Wrap(KindInternal, err, "Failed to cancel booking")
		}
		expired = b
		return nil
	})
	if err != nil || expired == nil {
		return err
	}

	log.Printf("⚠️ Payment hold %s expired, booking %s cancelled", intentID, expired.ID)
	s.notify.Partner(ctx, expired.PartnerID, expired.ID, models.NotifPaymentExpired,
		"Payment authorization expired",
		"The customer's payment authorization expired and the booking was cancelled.")
	s.notify.User(ctx, expired.CustomerID, models.NotifPaymentExpired,
		"Booking cancelled",
		"Your payment authorization expired and the booking was cancelled. You have not been charged.",
		map[string]interface{}{"booking_id": expired.ID})
	s.notify.Event(ctx, "booking.payment_expired", bookingEvent(expired))
	return nil
}

// RequireAdmin fails with KindForbidden unless userID belongs to an admin.
func (s *EscrowService) RequireAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return E(KindValidation, "adminId is required")
	}
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return E(KindForbidden, "Admin access required")
	}
	if err != nil {
		return Wrap(KindInternal, err, "Failed to load user")
	}
	if !u.IsAdmin() {
		return E(KindForbidden, "Admin access required")
	}
	return nil
}

func (s *EscrowService) ListBookings(ctx context.Context, f repository.BookingFilter) ([]models.PartnerBooking, error) {
	bookings, err := s.store.ListBookings(ctx, f)
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to list bookings")
	}
	return bookings, nil
}

func (s *EscrowService) ListOperations(ctx context.Context, f repository.OperationFilter) ([]models.EscrowOperation, error) {
	ops, err := s.store.ListOperations(ctx, f)
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to list escrow operations")
	}
	return ops, nil
}

func (s *EscrowService) partnerAccount(ctx context.Context, store repository.Store, partnerID string) (*models.PartnerStripeAccount, error) {
	acct, err := store.GetPartnerAccount(ctx, partnerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, E(KindNotFound, "Partner has no connected account")
	}
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to load partner account")
	}
	return acct, nil
}

// payoutDestination checks the partner can receive the transfer and that the customer
// actually authorized the payment, then returns the connected account id.
func (s *EscrowService) payoutDestination(ctx context.Context, tx repository.Store, b *models.PartnerBooking) (string, error) {
	acct, err := s.partnerAccount(ctx, tx, b.PartnerID)
	if err != nil {
		return "", err
	}
	if !acct.PayoutsEnabled {
		return "", E(KindForbidden, "Partner account is not enabled for payouts")
	}
	if b.PaymentIntentID() == "" {
		return "", E(KindInvalidState, "Booking has no payment")
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, b.PaymentIntentID())
	if err != nil {
		return "", Wrap(KindUpstream, err, "Failed to load payment")
	}
	switch intent.Status {
	case payments.IntentRequiresCapture, payments.IntentSucceeded:
		return acct.StripeAccountID, nil
	case payments.IntentCanceled:
		return "", E(KindInvalidState, "Payment authorization was cancelled")
	default:
		return "", E(KindInvalidState, "Payment has not been authorized by the customer yet (status %s)", intent.Status)
	}
}

func (s *EscrowService) reloadBooking(ctx context.Context, bookingID string) (*models.PartnerBooking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to reload booking")
	}
	return b, nil
}

func (s *EscrowService) releaseResult(ctx context.Context, op *models.EscrowOperation) (*ReleaseResult, error) {
	b, err := s.reloadBooking(ctx, op.BookingID)
	if err != nil {
		return nil, err
	}
	res := &ReleaseResult{Booking: b}
	if op.TransferID != nil {
		res.Transfer = &payments.Transfer{
			ID:            *op.TransferID,
			AmountCents:   op.AmountCents,
			Currency:      op.Currency,
			Destination:   op.DestinationAccount,
			TransferGroup: op.BookingID,
		}
	}
	return res, nil
}

func lockBooking(ctx context.Context, tx repository.Store, bookingID string) (*models.PartnerBooking, error) {
	b, err := tx.LockBooking(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, E(KindNotFound, "Booking not found")
	}
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to load booking")
	}
	return b, nil
}

func ownedBy(partnerID string) func(*models.PartnerBooking) error {
	return func(b *models.PartnerBooking) error {
		if b.PartnerID != partnerID {
			return E(KindForbidden, "Booking does not belong to this partner")
		}
		return nil
	}
}

func rejectable(b *models.PartnerBooking) error {
	if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusConfirmed {
		return E(KindInvalidState, "Booking cannot be rejected in status %s", b.Status)
	}
	return nil
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func displayAmount(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + strings.ToUpper(currency)
}

func bookingLabel(serviceType string) string {
	if serviceType == "" {
		return "booking"
	}
	return strings.ReplaceAll(serviceType, "-", " ") + " booking"
}

func bookingEvent(b *models.PartnerBooking) map[string]interface{} {
	return map[string]interface{}{
		"booking_id":     b.ID,
		"partner_id":     b.PartnerID,
		"customer_id":    b.CustomerID,
		"status":         b.Status,
		"payment_status": b.PaymentStatus,
		"total_amount":   b.TotalAmount.StringFixed(2),
		"currency":       b.Currency,
	}
}
