package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/telescope-scheduler/internal/application"
	"github.com/example/telescope-scheduler/internal/notify"
)

// SubscriptionStore is the access needed by the notification sweep.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]application.Subscription, error)
	GetAppointment(ctx context.Context, id string) (application.Appointment, error)
	// MarkSubscriptionStarted moves a SUBSCRIBED record to STARTED and
	// reports whether a row changed.
	MarkSubscriptionStarted(ctx context.Context, id string) (bool, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// MessagePublisher delivers a message to a topic.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, msg notify.Message) error
}

// NotificationSweep publishes start and finish notices for scheduled
// appointments. Delivery is at least once: the record only advances after a
// successful publish.
type NotificationSweep struct {
	store     SubscriptionStore
	publisher MessagePublisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewNotificationSweep wires the notification sweep.
func NewNotificationSweep(store SubscriptionStore, publisher MessagePublisher, now func() time.Time, logger *slog.Logger) *NotificationSweep {
	if now == nil {
		now = time.Now
	}
	return &NotificationSweep{store: store, publisher: publisher, now: now, logger: defaultLogger(logger)}
}

func (s *NotificationSweep) Name() string { return "notification" }

func (s *NotificationSweep) Run(ctx context.Context) error {
	logger := sweepLogger(ctx, s.logger, s.Name())
	now := s.now()

	subscriptions, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	var published, removed int
	for _, sub := range subscriptions {
		recordLogger := logger.With("subscription_id", sub.ID, "appointment_id", sub.AppointmentID)
		sent, deleted, err := s.advance(ctx, sub, now)
		if err != nil {
			recordLogger.ErrorContext(ctx, "failed to process subscription", "error", err)
			continue
		}
		published += sent
		if deleted {
			removed++
		}
	}

	logger.InfoContext(ctx, "sweep finished", "subscriptions", len(subscriptions), "published", published, "removed", removed)
	return nil
}

func (s *NotificationSweep) advance(ctx context.Context, sub application.Subscription, now time.Time) (int, bool, error) {
	appointment, err := s.store.GetAppointment(ctx, sub.AppointmentID)
	if err != nil {
		if isNotFound(err) {
			return 0, true, s.store.DeleteSubscription(ctx, sub.ID)
		}
		return 0, false, fmt.Errorf("load appointment: %w", err)
	}
	if appointment.Status == application.StatusCanceled {
		return 0, true, s.store.DeleteSubscription(ctx, sub.ID)
	}

	ended := !appointment.End.After(now)
	started := !appointment.Start.After(now)

	switch {
	case ended:
		if err := s.publish(ctx, sub, appointment, notify.EventFinished, now); err != nil {
			return 0, false, err
		}
		if err := s.store.DeleteSubscription(ctx, sub.ID); err != nil {
			return 1, false, fmt.Errorf("delete subscription: %w", err)
		}
		return 1, true, nil
	case started && sub.Status == application.SubscriptionSubscribed:
		if err := s.publish(ctx, sub, appointment, notify.EventStarting, now); err != nil {
			return 0, false, err
		}
		if _, err := s.store.MarkSubscriptionStarted(ctx, sub.ID); err != nil {
			return 1, false, fmt.Errorf("mark subscription started: %w", err)
		}
		return 1, false, nil
	default:
		return 0, false, nil
	}
}

func (s *NotificationSweep) publish(ctx context.Context, sub application.Subscription, appointment application.Appointment, event notify.Event, now time.Time) error {
	msg := notify.Message{
		Event:         event,
		AppointmentID: appointment.ID,
		UserID:        appointment.UserID,
		TelescopeID:   appointment.TelescopeID,
		Start:         appointment.Start,
		End:           appointment.End,
		SentAt:        now,
	}
	if err := s.publisher.Publish(ctx, sub.Topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}
