package services

import (
	"context"
	"errors"

	"luxe-escrow-server/models"
	"luxe-escrow-server/repository"
)

const notificationPageSize = 50

// NotificationService serves the partner dashboard feed and the per-user feed.
type NotificationService struct {
	store repository.Store
}

func NewNotificationService(store repository.Store) *NotificationService {
	return &NotificationService{store: store}
}

func (s *NotificationService) PartnerFeed(ctx context.Context, partnerID string) ([]models.PartnerNotification, error) {
	if partnerID == "" {
		return nil, E(KindValidation, "partnerId is required")
	}
	list, err := s.store.ListPartnerNotifications(ctx, partnerID, notificationPageSize)
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to fetch notifications")
	}
	return list, nil
}

func (s *NotificationService) MarkPartnerRead(ctx context.Context, id, partnerID string) error {
	if id == "" || partnerID == "" {
		return E(KindValidation, "Notification id and partnerId are required")
	}
	return markRead(s.store.MarkPartnerNotificationRead(ctx, id, partnerID))
}

func (s *NotificationService) UserFeed(ctx context.Context, userID string) ([]models.Notification, error) {
	if userID == "" {
		return nil, E(KindValidation, "userId is required")
	}
	list, err := s.store.ListNotifications(ctx, userID, notificationPageSize)
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to fetch notifications")
	}
	return list, nil
}

func (s *NotificationService) MarkUserRead(ctx context.Context, id, userID string) error {
	if id == "" || userID == "" {
		return E(KindValidation, "Notification id and userId are required")
	}
	return markRead(s.store.MarkNotificationRead(ctx, id, userID))
}

// markRead hides other users' notifications behind NotFound.
func markRead(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return E(KindNotFound, "Notification not found")
	}
	if err != nil {
		return Wrap(KindInternal, err, "Failed to mark notification as read")
	}
	return nil
}
