package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"luxe-escrow-server/models"
	"luxe-escrow-server/payments"
	"luxe-escrow-server/repository"
	"luxe-escrow-server/utils"
)

var inFlightSteps = []models.OperationStep{
	models.StepStarted,
	models.StepCaptured,
	models.StepTransferred,
	models.StepCancelled,
}

// stepRank orders steps so a slower attempt never moves an operation backwards.
func stepRank(step models.OperationStep) int {
	switch step {
	case models.StepStarted:
		return 0
	case models.StepCaptured, models.StepCancelled:
		return 1
	case models.StepTransferred:
		return 2
	default:
		return 3
	}
}

type operationRequest struct {
	bookingID string
	kind      models.OperationKind
	actorID   string
	reason    *string
	// authorize runs on every call, including replays of an existing operation.
	authorize func(b *models.PartnerBooking) error
	// validate runs only before a new operation is created and returns the payout destination.
	validate func(ctx context.Context, tx repository.Store, b *models.PartnerBooking) (string, error)
}

// beginOperation locks the booking and finds or creates the operation for req.
// A repeated request gets the existing operation back so it resumes instead of starting over.
func (s *EscrowService) beginOperation(ctx context.Context, req operationRequest) (*models.EscrowOperation, error) {
	var op *models.EscrowOperation
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := lockBooking(ctx, tx, req.bookingID)
		if err != nil {
			return err
		}
		if req.authorize != nil {
			if err := req.authorize(b); err != nil {
				return err
			}
		}

		existing, err := tx.FindOperation(ctx, models.OperationKey(req.kind, b.ID))
		if err == nil {
			if existing.Step == models.StepFailed {
				return E(KindConflict, "Escrow operation %s failed and must be retried by an admin", existing.ID)
			}
			op = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return Wrap(KindInternal, err, "Failed to load escrow operation")
		}

		inFlight, err := tx.ListOperations(ctx, repository.OperationFilter{BookingID: b.ID, Steps: inFlightSteps})
		if err != nil {
			return Wrap(KindInternal, err, "Failed to load escrow operations")
		}
		if len(inFlight) > 0 {
			return E(KindConflict, "Another escrow operation (%s) is in progress for this booking", inFlight[0].Kind)
		}

		destination, err := req.validate(ctx, tx, b)
		if err != nil {
			return err
		}

		cents := utils.ToMinorUnits(b.TotalAmount)
		if req.kind.Releases() {
			cents = bookingCommission(b).TransferCents()
		}
		op = &models.EscrowOperation{
			BookingID:          b.ID,
			Kind:               req.kind,
			IdempotencyKey:     models.OperationKey(req.kind, b.ID),
			Step:               models.StepStarted,
			PaymentIntentID:    b.PaymentIntentID(),
			AmountCents:        cents,
			Currency:           b.Currency,
			DestinationAccount: destination,
			ActorID:            req.actorID,
			Reason:             req.reason,
		}
		if err := tx.CreateOperation(ctx, op); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return E(KindConflict, "Escrow operation already in progress for this booking")
			}
			return Wrap(KindInternal, err, "Failed to record escrow operation")
		}
		log.Printf("🔄 Escrow operation %s (%s) started for booking %s", op.ID, op.Kind, op.BookingID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// advance runs op from its persisted step to a terminal one. It stops at the first
// gateway failure, leaving the operation where it was for a later resume.
func (s *EscrowService) advance(ctx context.Context, op *models.EscrowOperation) (*models.EscrowOperation, error) {
	for !op.Terminal() {
		var err error
		switch op.Step {
		case models.StepStarted:
			if op.Kind.Releases() {
				op, err = s.capture(ctx, op)
			} else {
				op, err = s.cancelIntent(ctx, op)
			}
		case models.StepCaptured:
			op, err = s.transfer(ctx, op)
		case models.StepTransferred, models.StepCancelled:
			op, err = s.finish(ctx, op)
		default:
			return op, E(KindInternal, "Escrow operation %s is in unknown step %s", op.ID, op.Step)
		}
		if err != nil {
			return op, err
		}
	}
	if op.Step == models.StepFailed {
		return op, E(KindConflict, "Escrow operation %s failed: %s", op.ID, lastError(op))
	}
	return op, nil
}

func (s *EscrowService) capture(ctx context.Context, op *models.EscrowOperation) (*models.EscrowOperation, error) {
	intent, err := s.gateway.GetPaymentIntent(ctx, op.PaymentIntentID)
	if err != nil {
		return op, s.stepFailed(ctx, op, err, "Failed to load payment before capture; operation %s will be retried", op.ID)
	}

	switch intent.Status {
	case payments.IntentSucceeded:
		log.Printf("⚠️ Payment %s already captured, skipping capture for operation %s", intent.ID, op.ID)
	case payments.IntentRequiresCapture:
		if _, err := s.gateway.CapturePaymentIntent(ctx, intent.ID, op.GatewayKey("capture")); err != nil {
			return op, s.stepFailed(ctx, op, err, "Failed to capture payment; operation %s will be retried", op.ID)
		}
		log.Printf("✅ Payment %s captured for booking %s", intent.ID, op.BookingID)
	case payments.IntentCanceled:
		return s.markFailed(ctx, op, fmt.Sprintf("payment %s was cancelled before capture", intent.ID))
	default:
		return op, s.stepFailed(ctx, op, fmt.Errorf("payment status %s", intent.Status),
			"Payment is not ready to capture; operation %s will be retried", op.ID)
	}

	next, _, err := s.persistStep(ctx, op, models.StepCaptured, nil)
	return next, err
}

func (s *EscrowService) transfer(ctx context.Context, op *models.EscrowOperation) (*models.EscrowOperation, error) {
	intent, err := s.gateway.GetPaymentIntent(ctx, op.PaymentIntentID)
	if err != nil {
		return op, s.stepFailed(ctx, op, err, "Payment captured, transfer pending; operation %s will be retried", op.ID)
	}

	// A transfer whose response was lost is still listed under the booking's group.
	existing, err := s.gateway.ListTransfers(ctx, op.BookingID)
	if err != nil {
		return op, s.stepFailed(ctx, op, err, "Payment captured, transfer pending; operation %s will be retried", op.ID)
	}
	for i := range existing {
		if existing[i].Destination == op.DestinationAccount {
			t := existing[i]
			log.Printf("⚠️ Transfer %s already exists for booking %s, adopting it for operation %s", t.ID, op.BookingID, op.ID)
			return s.recordTransfer(ctx, op, &t)
		}
	}

	t, err := s.gateway.CreateTransfer(ctx, payments.TransferInput{
		AmountCents:       op.AmountCents,
		Currency:          op.Currency,
		Destination:       op.DestinationAccount,
		TransferGroup:     op.BookingID,
		SourceTransaction: intent.LatestChargeID,
		Metadata: map[string]string{
			"booking_id":   op.BookingID,
			"operation_id": op.ID,
		},
		IdempotencyKey: op.GatewayKey("transfer"),
	})
	if err != nil {
		return op, s.stepFailed(ctx, op, err, "Payment captured, transfer pending; operation %s will be retried", op.ID)
	}
	log.Printf("✅ Transfer %s of %d %s sent to %s", t.ID, t.AmountCents, t.Currency, t.Destination)
	return s.recordTransfer(ctx, op, t)
}

func (s *EscrowService) recordTransfer(ctx context.Context, op *models.EscrowOperation, t *payments.Transfer) (*models.EscrowOperation, error) {
	next, _, err := s.persistStep(ctx, op, models.StepTransferred, func(_ repository.Store, o *models.EscrowOperation, _ *models.PartnerBooking) error {
		o.TransferID = &t.ID
		return nil
	})
	return next, err
}

func (s *EscrowService) cancelIntent(ctx context.Context, op *models.EscrowOperation) (*models.EscrowOperation, error) {
	intent, err := s.gateway.GetPaymentIntent(ctx, op.PaymentIntentID)
	if err != nil {
		return op, s.stepFailed(ctx, op, err, "Failed to load payment before cancelling; operation %s will be retried", op.ID)
	}

	switch intent.Status {
	case payments.IntentCanceled:
		log.Printf("⚠️ Payment %s already cancelled, skipping cancel for operation %s", intent.ID, op.ID)
	case payments.IntentSucceeded:
		return s.markFailed(ctx, op, fmt.Sprintf("payment %s was already captured and needs a refund", intent.ID))
	default:
		reason := "abandoned"
		if op.Kind == models.OperationAdminRefund {
			reason = "requested_by_customer"
		}
		if _, err := s.gateway.CancelPaymentIntent(ctx, intent.ID, reason, op.GatewayKey("cancel")); err != nil {
			return op, s.stepFailed(ctx, op, err, "Failed to cancel payment; operation %s will be retried", op.ID)
		}
		log.Printf("✅ Payment %s cancelled for booking %s", intent.ID, op.BookingID)
	}

	next, _, err := s.persistStep(ctx, op, models.StepCancelled, nil)
	return next, err
}

// finish applies the outcome to the booking in the same transaction that completes the operation.
func (s *EscrowService) finish(ctx context.Context, op *models.EscrowOperation) (*models.EscrowOperation, error) {
	var booking *models.PartnerBooking
	next, moved, err := s.persistStep(ctx, op, models.StepCompleted, func(tx repository.Store, o *models.EscrowOperation, b *models.PartnerBooking) error {
		s.applyOutcome(o, b)
		if err := tx.SaveBooking(ctx, b); err != nil {
			return Wrap(KindInternal, err, "Failed to record escrow outcome on booking")
		}
		booking = b
		return nil
	})
	if err != nil {
		return op, err
	}
	if moved {
		log.Printf("✅ Escrow operation %s (%s) completed for booking %s", next.ID, next.Kind, next.BookingID)
		s.announce(ctx, next, booking)
	}
	return next, nil
}

func (s *EscrowService) applyOutcome(o *models.EscrowOperation, b *models.PartnerBooking) {
	now := s.now()
	switch o.Kind {
	case models.OperationRelease:
		b.Status = models.BookingStatusInProgress
		b.PaymentStatus = models.PaymentStatusReleased
		b.StripeTransferID = o.TransferID
	case models.OperationAdminRelease:
		actor := o.ActorID
		b.Status = models.BookingStatusCompleted
		b.PaymentStatus = models.PaymentStatusCapturedTransferred
		b.StripeTransferID = o.TransferID
		b.ApprovedBy = &actor
		b.CompletedAt = &now
	case models.OperationCancel:
		b.Status = models.BookingStatusCancelled
		b.PaymentStatus = models.PaymentStatusCancelled
		b.RejectionReason = o.Reason
		b.CancelledAt = &now
	case models.OperationAdminRefund:
		b.Status = models.BookingStatusCancelled
		b.PaymentStatus = models.PaymentStatusRefunded
		b.RejectionReason = o.Reason
		b.CancelledAt = &now
	}
}

func (s *EscrowService) announce(ctx context.Context, op *models.EscrowOperation, b *models.PartnerBooking) {
	amount := displayAmount(utils.FromMinorUnits(op.AmountCents), op.Currency)
	switch op.Kind {
	case models.OperationRelease:
		s.notify.Partner(ctx, b.PartnerID, b.ID, models.NotifPaymentReleased,
			"Payment released",
			fmt.Sprintf("%s has been transferred to your account.", amount))
		s.notify.Event(ctx, "booking.payment_released", bookingEvent(b))
	case models.OperationAdminRelease:
		s.notify.Partner(ctx, b.PartnerID, b.ID, models.NotifPaymentApproved,
			"Payment approved",
			fmt.Sprintf("An administrator approved the payment. %s has been transferred to your account.", amount))
		s.notify.Event(ctx, "booking.payment_approved", bookingEvent(b))
	case models.OperationCancel:
		s.announceRejection(ctx, b)
	case models.OperationAdminRefund:
		s.notify.Partner(ctx, b.PartnerID, b.ID, models.NotifPaymentRefunded,
			"Booking cancelled by admin",
			"An administrator cancelled this booking and released the customer's payment.")
		s.notify.User(ctx, b.CustomerID, models.NotifPaymentRefunded,
			"Payment refunded",
			fmt.Sprintf("Your booking was cancelled and the hold of %s was released.", amount),
			map[string]interface{}{"booking_id": b.ID})
		s.notify.Event(ctx, "booking.payment_refunded", bookingEvent(b))
	}
}

func (s *EscrowService) announceRejection(ctx context.Context, b *models.PartnerBooking) {
	message := "The partner could not take your booking."
	if b.RejectionReason != nil {
		message = fmt.Sprintf("The partner could not take your booking: %s", *b.RejectionReason)
	}
	if b.PaymentStatus == models.PaymentStatusCancelled {
		message += " Your payment hold has been released."
	}
	s.notify.User(ctx, b.CustomerID, models.NotifBookingRejected, "Booking rejected", message,
		map[string]interface{}{"booking_id": b.ID})
	s.notify.Event(ctx, "booking.rejected", bookingEvent(b))
}

type stepFunc func(tx repository.Store, o *models.EscrowOperation, b *models.PartnerBooking) error

// persistStep moves op to next under the booking lock. When another attempt already got at
// least as far, the stored record is returned unchanged and moved is false.
func (s *EscrowService) persistStep(ctx context.Context, op *models.EscrowOperation, next models.OperationStep, apply stepFunc) (*models.EscrowOperation, bool, error) {
	var current *models.EscrowOperation
	moved := false
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := lockBooking(ctx, tx, op.BookingID)
		if err != nil {
			return err
		}
		current, err = tx.GetOperation(ctx, op.ID)
		if err != nil {
			return Wrap(KindInternal, err, "Failed to reload escrow operation")
		}
		if stepRank(current.Step) >= stepRank(next) {
			return nil
		}

		current.LastError = nil
		if apply != nil {
			if err := apply(tx, current, b); err != nil {
				return err
			}
		}
		current.Step = next
		if err := tx.SaveOperation(ctx, current); err != nil {
			return Wrap(KindInternal, err, "Failed to record escrow step")
		}
		moved = true
		return nil
	})
	if err != nil {
		log.Printf("❌ Failed to move escrow operation %s to %s: %v", op.ID, next, err)
		return op, false, err
	}
	return current, moved, nil
}

// stepFailed records a failed attempt and returns the client-facing error.
func (s *EscrowService) stepFailed(ctx context.Context, op *models.EscrowOperation, cause error, format string, args ...interface{}) error {
	log.Printf("❌ Escrow operation %s (%s) failed at step %s: %v", op.ID, op.Kind, op.Step, cause)

	msg := cause.Error()
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.LockBooking(ctx, op.BookingID); err != nil {
			return err
		}
		current, err := tx.GetOperation(ctx, op.ID)
		if err != nil {
			return err
		}
		if current.Step != op.Step {
			return nil
		}
		current.Attempts++
		current.LastError = &msg
		return tx.SaveOperation(ctx, current)
	})
	if err != nil {
		log.Printf("❌ Failed to record attempt on escrow operation %s: %v", op.ID, err)
	}
	return Wrap(KindUpstream, cause, format, args...)
}

// markFailed parks op in the terminal failed step and alerts every admin.
func (s *EscrowService) markFailed(ctx context.Context, op *models.EscrowOperation, reason string) (*models.EscrowOperation, error) {
	next, moved, err := s.persistStep(ctx, op, models.StepFailed, func(_ repository.Store, o *models.EscrowOperation, _ *models.PartnerBooking) error {
		o.LastError = &reason
		return nil
	})
	if err != nil {
		return op, err
	}
	if moved {
		log.Printf("❌ Escrow operation %s (%s) on booking %s marked failed: %s", next.ID, next.Kind, next.BookingID, reason)
		s.notify.Admins(ctx, models.NotifOperationFailed,
			"Escrow operation failed",
			fmt.Sprintf("Operation %s (%s) on booking %s needs attention: %s", next.ID, next.Kind, next.BookingID, reason),
			map[string]interface{}{
				"operation_id": next.ID,
				"booking_id":   next.BookingID,
				"kind":         next.Kind,
			})
		s.notify.Event(ctx, "escrow.operation_failed", next)
	}
	return next, nil
}

// ResumeOperation continues an operation from its persisted step. A failed operation is
// reopened first; gateway idempotency keys make repeating an earlier step safe.
func (s *EscrowService) ResumeOperation(ctx context.Context, operationID string) (*models.EscrowOperation, error) {
	op, err := s.store.GetOperation(ctx, operationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, E(KindNotFound, "Escrow operation not found")
	}
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to load escrow operation")
	}
	if op.Step == models.StepCompleted {
		return op, nil
	}
	if op.Step == models.StepFailed {
		if op, err = s.reopen(ctx, op); err != nil {
			return nil, err
		}
	}
	return s.advance(ctx, op)
}

// RetryOperation is ResumeOperation on an admin's request.
func (s *EscrowService) RetryOperation(ctx context.Context, operationID, adminID string) (*models.EscrowOperation, error) {
	if err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	log.Printf("🔄 Admin %s retrying escrow operation %s", adminID, operationID)
	return s.ResumeOperation(ctx, operationID)
}

func (s *EscrowService) reopen(ctx context.Context, op *models.EscrowOperation) (*models.EscrowOperation, error) {
	var current *models.EscrowOperation
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := lockBooking(ctx, tx, op.BookingID); err != nil {
			return err
		}
		var err error
		current, err = tx.GetOperation(ctx, op.ID)
		if err != nil {
			return Wrap(KindInternal, err, "Failed to reload escrow operation")
		}
		if current.Step != models.StepFailed {
			return nil
		}
		current.Step = models.StepStarted
		if current.Kind.Releases() && current.TransferID != nil {
			current.Step = models.StepTransferred
		}
		current.Attempts = 0
		if err := tx.SaveOperation(ctx, current); err != nil {
			return Wrap(KindInternal, err, "Failed to reopen escrow operation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// ReconcileSummary counts what one reconciliation pass did.
type ReconcileSummary struct {
	Scanned   int
	Completed int
	Pending   int
	Failed    int
}

// ResumeStaleOperations resumes operations untouched for olderThan. Operations that already
// used maxAttempts are marked failed instead.
func (s *EscrowService) ResumeStaleOperations(ctx context.Context, olderThan time.Duration, maxAttempts, limit int) (ReconcileSummary, error) {
	var summary ReconcileSummary

	cutoff := s.now().Add(-olderThan)
	ops, err := s.store.ListOperations(ctx, repository.OperationFilter{
		Steps:         inFlightSteps,
		UpdatedBefore: &cutoff,
		Limit:         limit,
	})
	if err != nil {
		return summary, Wrap(KindInternal, err, "Failed to list stale escrow operations")
	}

	for i := range ops {
		op := &ops[i]
		summary.Scanned++

		if op.Attempts >= maxAttempts {
			reason := fmt.Sprintf("gave up after %d attempts: %s", op.Attempts, lastError(op))
			if _, err := s.markFailed(ctx, op, reason); err != nil {
				log.Printf("❌ Failed to mark escrow operation %s failed: %v", op.ID, err)
				continue
			}
			summary.Failed++
			continue
		}

		next, err := s.advance(ctx, op)
		switch {
		case next != nil && next.Step == models.StepFailed:
			summary.Failed++
		case err != nil:
			log.Printf("⚠️ Escrow operation %s still pending: %v", op.ID, err)
			summary.Pending++
		default:
			summary.Completed++
		}
	}
	return summary, nil
}

func lastError(op *models.EscrowOperation) string {
	if op.LastError == nil {
		return "unknown error"
	}
	return *op.LastError
}
