// Package notify persists operator notifications and fans them out to live
// subscribers.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/agsys/smart-irrigation/internal/storage"
)

// Event kind used when broadcasting notifications
const EventNotification = "notification"

// Store persists notifications
type Store interface {
	InsertNotification(ctx context.Context, n *storage.Notification) (int64, error)
	GetFarmNotifications(ctx context.Context, farmID string, limit int) ([]*storage.Notification, error)
}

// Broadcaster pushes events to live subscribers
type Broadcaster interface {
	Broadcast(kind string, payload any)
}

// Sink is the notification sink
type Sink struct {
	store Store
	live  Broadcaster
	now   func() time.Time
}

// NewSink creates a sink. live may be nil.
func NewSink(store Store, live Broadcaster) *Sink {
	return &Sink{store: store, live: live, now: time.Now}
}

// Notify stores n and then broadcasts it. Channels default to in_app and
// priority to medium.
func (s *Sink) Notify(ctx context.Context, n *storage.Notification) error {
	if n.Priority == "" {
		n.Priority = "medium"
	}
	if len(n.Channels) == 0 {
		n.Channels = []string{"in_app"}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	id, err := s.store.InsertNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	n.ID = id

	log.Printf("Notification %d for farm %s: %s", n.ID, n.FarmID, n.Title)
	if s.live != nil {
		s.live.Broadcast(EventNotification, n)
	}
	return nil
}

// Recent returns a farm's latest notifications, newest first
func (s *Sink) Recent(ctx context.Context, farmID string, limit int) ([]*storage.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	list, err := s.store.GetFarmNotifications(ctx, farmID, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*storage.Notification{}
	}
	return list, nil
}
