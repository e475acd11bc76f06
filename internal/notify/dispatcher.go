package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lucasdpb/satchel/internal/bus"
	"github.com/lucasdpb/satchel/internal/prefs"
	"github.com/lucasdpb/satchel/internal/store"
	"go.uber.org/zap"
)

// Presenter renders a notification to the user. The daemon's default
// presenter only logs; a frontend attaches its own.
type Presenter interface {
	Present(ctx context.Context, n *store.Notification, requireInteraction bool) error
}

// ViewRegistry tracks open application views so that clicking a
// notification can focus an existing one instead of opening another.
type ViewRegistry interface {
	// Focus brings an open view at target to the front, reporting
	// whether one existed.
	Focus(ctx context.Context, target string) (bool, error)
	// Open opens a new view at target.
	Open(ctx context.Context, target string) error
}

// Dispatcher persists and presents notifications and routes user
// interactions back into the application.
type Dispatcher struct {
	db        *store.DB
	bus       *bus.Bus
	logger    *zap.Logger
	presenter Presenter
	views     ViewRegistry
	prefs     *prefs.Prefs
}

// NewDispatcher builds a Dispatcher. p may be nil, in which case
// presentation is never suppressed.
func NewDispatcher(db *store.DB, b *bus.Bus, logger *zap.Logger, presenter Presenter, views ViewRegistry, p *prefs.Prefs) *Dispatcher {
	return &Dispatcher{
		db:        db,
		bus:       b,
		logger:    logger,
		presenter: presenter,
		views:     views,
		prefs:     p,
	}
}

// ShowRaw parses a push payload and shows it. Malformed payloads still
// produce a best-effort notification.
func (d *Dispatcher) ShowRaw(ctx context.Context, raw []byte) (*store.Notification, error) {
	payload, err := ParsePayload(raw)
	if err != nil {
		d.logger.Warn("malformed push payload, showing plain text", zap.Error(err))
	}
	return d.Show(ctx, payload)
}

// Show persists a notification record and hands it to the presenter.
// A payload tag replaces any earlier shown notification with the same
// tag: the old record is closed, so only the newest stays visible.
func (d *Dispatcher) Show(ctx context.Context, payload Payload) (*store.Notification, error) {
	if payload.Title == "" {
		payload.Title = DefaultTitle
	}
	if payload.Body == "" {
		payload.Body = DefaultBody
	}

	if payload.Tag != "" {
		prev, err := d.db.NotificationByTag(payload.Tag)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			if err := d.db.CloseNotification(prev.NotifID); err != nil {
				return nil, err
			}
		}
	}

	n := &store.Notification{
		NotifID:   uuid.NewString(),
		Title:     payload.Title,
		Body:      payload.Body,
		Icon:      payload.Icon,
		Tag:       payload.Tag,
		Target:    payload.URL,
		State:     store.NotifShown,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := d.db.PutNotification(n); err != nil {
		return nil, err
	}

	// A "denied" permission suppresses presentation only: the record
	// still exists, so the in-app unread list keeps working.
	suppressed := d.prefs != nil && d.prefs.NotificationsEnabled() == prefs.NotificationsDenied
	if suppressed {
		d.logger.Debug("notification permission denied, skipping presentation",
			zap.String("notif_id", n.NotifID))
	}
	if d.presenter != nil && !suppressed {
		if err := d.presenter.Present(ctx, n, payload.RequireInteraction); err != nil {
			// Presentation is best effort, the record already exists.
			d.logger.Warn("present notification failed",
				zap.String("notif_id", n.NotifID), zap.Error(err))
		}
	}

	d.logger.Info("notification shown",
		zap.String("notif_id", n.NotifID),
		zap.String("tag", n.Tag))
	d.bus.Publish(bus.Event{
		Kind:      "notification.shown",
		Timestamp: time.Now(),
		Payload:   map[string]string{"notif_id": n.NotifID, "tag": n.Tag},
	})
	return n, nil
}

// ActionDismiss closes the notification without any navigation.
const ActionDismiss = "dismiss"

// Interact handles a user interaction with a shown notification.
// "dismiss" closes it with no further effect. Any other action,
// including the default click, focuses an open view matching the
// notification target and only opens a new one when none matches.
// Interactions with a closed notification are no-ops.
func (d *Dispatcher) Interact(ctx context.Context, notifID, action string) error {
	n, err := d.db.GetNotification(notifID)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("notification %s not found", notifID)
	}
	if n.State == store.NotifClosed {
		return nil
	}

	if err := d.db.CloseNotification(notifID); err != nil {
		return err
	}
	d.bus.Publish(bus.Event{
		Kind:      "notification.closed",
		Timestamp: time.Now(),
		Payload:   map[string]string{"notif_id": notifID, "action": action},
	})

	if action == ActionDismiss {
		return nil
	}

	target := n.Target
	if target == "" {
		target = "/"
	}
	if d.views == nil {
		d.logger.Info("notification clicked, no view registry attached",
			zap.String("target", target))
		return nil
	}
	focused, err := d.views.Focus(ctx, target)
	if err != nil {
		return fmt.Errorf("focus view %s: %w", target, err)
	}
	if focused {
		return nil
	}
	return d.views.Open(ctx, target)
}

// MarkRead flags a notification as read without closing it.
func (d *Dispatcher) MarkRead(notifID string) error {
	return d.db.MarkNotificationRead(notifID)
}

// UnreadCount returns how many notifications are unread.
func (d *Dispatcher) UnreadCount() (int, error) {
	return d.db.UnreadNotificationCount()
}

// List returns notifications newest first, optionally unread only.
func (d *Dispatcher) List(onlyUnread bool, limit int) ([]store.Notification, error) {
	return d.db.Notifications(onlyUnread, limit)
}
