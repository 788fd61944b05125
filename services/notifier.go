package services

import (
	"context"
	"encoding/json"
	"log"

	"luxe-escrow-server/models"
	"luxe-escrow-server/repository"
)

// Pusher delivers a realtime message to a connected user.
type Pusher interface {
	Notify(userID, msgType string, data interface{})
}

// EventPublisher publishes a domain event on the message bus.
type EventPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v interface{}) error
}

// Notifier writes notification rows and fans them out. Every method is fire-and-forget:
// failures are logged and never fail the state transition that triggered them.
type Notifier struct {
	store  repository.Store
	push   Pusher
	events EventPublisher
}

// NewNotifier builds a notifier; push and events may be nil.
func NewNotifier(store repository.Store, push Pusher, events EventPublisher) *Notifier {
	return &Notifier{store: store, push: push, events: events}
}

// Partner records a dashboard notification for partnerID.
func (n *Notifier) Partner(ctx context.Context, partnerID, bookingID string, typ models.NotificationType, title, message string) {
	notif := &models.PartnerNotification{
		PartnerID: partnerID,
		Type:      typ,
		Title:     title,
		Message:   message,
	}
	if bookingID != "" {
		notif.BookingID = &bookingID
	}

	if err := n.store.CreatePartnerNotification(ctx, notif); err != nil {
		log.Printf("❌ Failed to create partner notification %s for %s: %v", typ, partnerID, err)
		return
	}
	log.Printf("🔔 Partner notification %s sent to %s", typ, partnerID)

	if n.push != nil {
		n.push.Notify(partnerID, "notification", notif)
	}
}

// User records a notification in the generic per-user feed.
func (n *Notifier) User(ctx context.Context, userID string, typ models.NotificationType, title, message string, data map[string]interface{}) {
	notif := &models.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.Printf("⚠️ Dropping notification data for %s: %v", userID, err)
		} else {
			notif.Data = raw
		}
	}

	if err := n.store.CreateNotification(ctx, notif); err != nil {
		log.Printf("❌ Failed to create notification %s for %s: %v", typ, userID, err)
		return
	}
	log.Printf("🔔 Notification %s sent to %s", typ, userID)

	if n.push != nil {
		n.push.Notify(userID, "notification", notif)
	}
}

// Admins sends the same notification to every admin user.
func (n *Notifier) Admins(ctx context.Context, typ models.NotificationType, title, message string, data map[string]interface{}) {
	admins, err := n.store.ListUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		log.Printf("❌ Failed to list admins for %s notification: %v", typ, err)
		return
	}
	if len(admins) == 0 {
		log.Printf("⚠️ No admin users to notify about %s", typ)
		return
	}
	for _, admin := range admins {
		n.User(ctx, admin.ID, typ, title, message, data)
	}
}

// Event publishes payload under routingKey when a bus is configured.
func (n *Notifier) Event(ctx context.Context, routingKey string, payload interface{}) {
	if n.events == nil {
		return
	}
	if err := n.events.PublishJSON(ctx, routingKey, payload); err != nil {
		log.Printf("⚠️ Failed to publish %s event: %v", routingKey, err)
	}
}
