package sqlite

import (
	"context"

	"github.com/example/telescope-scheduler/internal/persistence"
)

// SubscriptionRepository implements persistence.SubscriptionRepository using SQLite
type SubscriptionRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSubscriptionRepository creates a new SQLite subscription repository
func NewSubscriptionRepository(pool *ConnectionPool) *SubscriptionRepository {
	return &SubscriptionRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// ListSubscriptions returns every pending subscription in creation order.
func (r *SubscriptionRepository) ListSubscriptions(ctx context.Context) ([]persistence.Subscription, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT id, appointment_id, user_id, topic, status, created_at FROM subscriptions ORDER BY created_at, id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var subscriptions []persistence.Subscription
	for rows.Next() {
		var (
			s         persistence.Subscription
			createdAt int64
		)
		if err := rows.Scan(&s.ID, &s.AppointmentID, &s.UserID, &s.Topic, &s.Status, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		s.CreatedAt = fromMillis(createdAt)
		subscriptions = append(subscriptions, s)
	}
	return subscriptions, r.mapper.MapError(rows.Err())
}

// MarkSubscriptionStarted moves a SUBSCRIBED record to STARTED and reports
// whether it changed.
func (r *SubscriptionRepository) MarkSubscriptionStarted(ctx context.Context, id string) (bool, error) {
	result, err := r.helper.Exec(ctx, `UPDATE subscriptions SET status = 'STARTED' WHERE id = ? AND status = 'SUBSCRIBED'`, id)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteSubscription removes a subscription. Deleting a missing record is
// not an error.
func (r *SubscriptionRepository) DeleteSubscription(ctx context.Context, id string) error {
	_, err := r.helper.Exec(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	return r.mapper.MapError(err)
}
