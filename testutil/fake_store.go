// Package testutil holds in-memory stand-ins for the store and payment gateway.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"luxe-escrow-server/models"
	"luxe-escrow-server/repository"
)

// ErrMockStore is a generic failure tests can return from the *Func hooks.
var ErrMockStore = errors.New("store error")

// FakeStore is an in-memory repository.Store. Transactions are serialized, which stands in
// for the row lock, and a transaction whose callback fails is rolled back.
type FakeStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	bookings             map[string]models.PartnerBooking
	users                map[string]models.User
	accounts             map[string]models.PartnerStripeAccount
	operations           map[string]models.EscrowOperation
	partnerNotifications []models.PartnerNotification
	notifications        []models.Notification
	documents            []models.PartnerDocument

	// Optional failure hooks; nil means the in-memory behaviour.
	SaveBookingFunc   func(b *models.PartnerBooking) error
	SaveOperationFunc func(op *models.EscrowOperation) error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		bookings:   make(map[string]models.PartnerBooking),
		users:      make(map[string]models.User),
		accounts:   make(map[string]models.PartnerStripeAccount),
		operations: make(map[string]models.EscrowOperation),
	}
}

type snapshot struct {
	bookings             map[string]models.PartnerBooking
	users                map[string]models.User
	accounts             map[string]models.PartnerStripeAccount
	operations           map[string]models.EscrowOperation
	partnerNotifications int
	notifications        int
	documents            int
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *FakeStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := snapshot{
		bookings:             copyMap(s.bookings),
		users:                copyMap(s.users),
		accounts:             copyMap(s.accounts),
		operations:           copyMap(s.operations),
		partnerNotifications: len(s.partnerNotifications),
		notifications:        len(s.notifications),
		documents:            len(s.documents),
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.bookings = snap.bookings
		s.users = snap.users
		s.accounts = snap.accounts
		s.operations = snap.operations
		s.partnerNotifications = s.partnerNotifications[:snap.partnerNotifications]
		s.notifications = s.notifications[:snap.notifications]
		s.documents = s.documents[:snap.documents]
		s.mu.Unlock()
		return err
	}
	return nil
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, repository.ErrNotFound)
}

// PutUser seeds a user row.
func (s *FakeStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutBooking seeds a booking row as-is.
func (s *FakeStore) PutBooking(b models.PartnerBooking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = time.Now()
	s.bookings[b.ID] = b
}

// PutAccount seeds a partner account row without touching users.
func (s *FakeStore) PutAccount(a models.PartnerStripeAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.accounts[a.PartnerID] = a
}

// Operations returns every stored escrow operation.
func (s *FakeStore) Operations() []models.EscrowOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EscrowOperation, 0, len(s.operations))
	for _, op := range s.operations {
		out = append(out, op)
	}
	return out
}

// PartnerNotifications returns a copy of the partner notification log.
func (s *FakeStore) PartnerNotifications() []models.PartnerNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PartnerNotification(nil), s.partnerNotifications...)
}

// Notifications returns a copy of the user notification log.
func (s *FakeStore) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

func (s *FakeStore) GetBooking(ctx context.Context, id string) (*models.PartnerBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, notFound("booking", id)
	}
	return &b, nil
}

func (s *FakeStore) LockBooking(ctx context.Context, id string) (*models.PartnerBooking, error) {
	return s.GetBooking(ctx, id)
}

func (s *FakeStore) FindBookingByPaymentIntent(ctx context.Context, intentID string) (*models.PartnerBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.PaymentIntentID() == intentID {
			return &b, nil
		}
	}
	return nil, notFound("booking with intent", intentID)
}

func (s *FakeStore) CreateBooking(ctx context.Context, b *models.PartnerBooking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, exists := s.bookings[b.ID]; exists {
		return fmt.Errorf("booking %s: %w", b.ID, repository.ErrDuplicate)
	}
	if b.Status == "" {
		b.Status = models.BookingStatusPending
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentStatusUnpaid
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	s.bookings[b.ID] = *b
	return nil
}

func (s *FakeStore) SaveBooking(ctx context.Context, b *models.PartnerBooking) error {
	if s.SaveBookingFunc != nil {
		if err := s.SaveBookingFunc(b); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b.UpdatedAt = time.Now()
	s.bookings[b.ID] = *b
	return nil
}

func (s *FakeStore) ListBookings(ctx context.Context, f repository.BookingFilter) ([]models.PartnerBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PartnerBooking
	for _, b := range s.bookings {
		if f.PartnerID != "" && b.PartnerID != f.PartnerID {
			continue
		}
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.PaymentStatus != "" && b.PaymentStatus != f.PaymentStatus {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Offset, f.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *FakeStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (s *FakeStore) ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FakeStore) GetPartnerAccount(ctx context.Context, partnerID string) (*models.PartnerStripeAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[partnerID]
	if !ok {
		return nil, notFound("partner account", partnerID)
	}
	return &a, nil
}

func (s *FakeStore) GetPartnerAccountByStripeID(ctx context.Context, stripeAccountID string) (*models.PartnerStripeAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.StripeAccountID == stripeAccountID {
			return &a, nil
		}
	}
	return nil, notFound("partner account", stripeAccountID)
}

func (s *FakeStore) SavePartnerAccount(ctx context.Context, a *models.PartnerStripeAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.accounts[a.PartnerID]; ok {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	} else {
		for _, other := range s.accounts {
			if other.StripeAccountID == a.StripeAccountID {
				return fmt.Errorf("partner account %s: %w", a.StripeAccountID, repository.ErrDuplicate)
			}
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = time.Now()
	s.accounts[a.PartnerID] = *a

	if u, ok := s.users[a.PartnerID]; ok {
		acct := a.StripeAccountID
		u.StripeAccountID = &acct
		u.StripeChargesEnabled = a.ChargesEnabled
		u.StripePayoutsEnabled = a.PayoutsEnabled
		s.users[u.ID] = u
	}
	return nil
}

func (s *FakeStore) GetOperation(ctx context.Context, id string) (*models.EscrowOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operations[id]
	if !ok {
		return nil, notFound("escrow operation", id)
	}
	return &op, nil
}

func (s *FakeStore) FindOperation(ctx context.Context, idempotencyKey string) (*models.EscrowOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.operations {
		if op.IdempotencyKey == idempotencyKey {
			return &op, nil
		}
	}
	return nil, notFound("escrow operation", idempotencyKey)
}

func (s *FakeStore) CreateOperation(ctx context.Context, op *models.EscrowOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.operations {
		if existing.IdempotencyKey == op.IdempotencyKey {
			return fmt.Errorf("escrow operation %s: %w", op.IdempotencyKey, repository.ErrDuplicate)
		}
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Step == "" {
		op.Step = models.StepStarted
	}
	op.CreatedAt = time.Now()
	op.UpdatedAt = op.CreatedAt
	s.operations[op.ID] = *op
	return nil
}

func (s *FakeStore) SaveOperation(ctx context.Context, op *models.EscrowOperation) error {
	if s.SaveOperationFunc != nil {
		if err := s.SaveOperationFunc(op); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	op.UpdatedAt = time.Now()
	s.operations[op.ID] = *op
	return nil
}

func (s *FakeStore) ListOperations(ctx context.Context, f repository.OperationFilter) ([]models.EscrowOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EscrowOperation
	for _, op := range s.operations {
		if f.BookingID != "" && op.BookingID != f.BookingID {
			continue
		}
		if len(f.Steps) > 0 && !hasStep(f.Steps, op.Step) {
			continue
		}
		if f.UpdatedBefore != nil && !op.UpdatedAt.Before(*f.UpdatedBefore) {
			continue
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return page(out, 0, f.Limit), nil
}

func hasStep(steps []models.OperationStep, step models.OperationStep) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

func (s *FakeStore) CreatePartnerNotification(ctx context.Context, n *models.PartnerNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now()
	s.partnerNotifications = append(s.partnerNotifications, *n)
	return nil
}

func (s *FakeStore) ListPartnerNotifications(ctx context.Context, partnerID string, limit int) ([]models.PartnerNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PartnerNotification
	for i := len(s.partnerNotifications) - 1; i >= 0; i-- {
		if s.partnerNotifications[i].PartnerID == partnerID {
			out = append(out, s.partnerNotifications[i])
		}
	}
	return page(out, 0, limit), nil
}

func (s *FakeStore) MarkPartnerNotificationRead(ctx context.Context, id, partnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.partnerNotifications {
		if s.partnerNotifications[i].ID == id && s.partnerNotifications[i].PartnerID == partnerID {
			s.partnerNotifications[i].Read = true
			return nil
		}
	}
	return notFound("partner notification", id)
}

func (s *FakeStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *FakeStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == userID {
			out = append(out, s.notifications[i])
		}
	}
	return page(out, 0, limit), nil
}

func (s *FakeStore) MarkNotificationRead(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].UserID == userID {
			s.notifications[i].Read = true
			return nil
		}
	}
	return notFound("notification", id)
}

func (s *FakeStore) CreatePartnerDocument(ctx context.Context, d *models.PartnerDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = models.DocumentStatusSubmitted
	}
	d.CreatedAt = time.Now()
	s.documents = append(s.documents, *d)
	return nil
}

func (s *FakeStore) ListPartnerDocuments(ctx context.Context, partnerID string) ([]models.PartnerDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PartnerDocument
	for i := len(s.documents) - 1; i >= 0; i-- {
		if s.documents[i].PartnerID == partnerID {
			out = append(out, s.documents[i])
		}
	}
	return out, nil
}

var _ repository.Store = (*FakeStore)(nil)
