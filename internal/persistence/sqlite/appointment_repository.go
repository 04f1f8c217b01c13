package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/telescope-scheduler/internal/persistence"
)

// AppointmentRepository implements persistence.AppointmentRepository using SQLite
type AppointmentRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAppointmentRepository creates a new SQLite appointment repository
func NewAppointmentRepository(pool *ConnectionPool) *AppointmentRepository {
	return &AppointmentRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const appointmentColumns = `id, user_id, telescope_id, start_at, end_at, public, priority, type, status, target, created_at, updated_at`

// GetAppointment retrieves an appointment by ID.
func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (persistence.Appointment, error) {
	return getAppointment(ctx, r.pool.DB(), r.mapper, id)
}

// ListAppointmentsForUser returns the user's appointments ordered by start.
func (r *AppointmentRepository) ListAppointmentsForUser(ctx context.Context, userID string) ([]persistence.Appointment, error) {
	return queryAppointments(ctx, r.pool.DB(), r.mapper,
		`SELECT `+appointmentColumns+` FROM appointments WHERE user_id = ? ORDER BY start_at, id`, userID)
}

// ListAppointmentsByStatus returns appointments whose status is one of
// statuses, ordered by start.
func (r *AppointmentRepository) ListAppointmentsByStatus(ctx context.Context, statuses []string) ([]persistence.Appointment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(statuses)
	return queryAppointments(ctx, r.pool.DB(), r.mapper,
		`SELECT `+appointmentColumns+` FROM appointments WHERE status IN (`+placeholders+`) ORDER BY start_at, id`, args...)
}

// ListEndedBefore returns appointments in statuses whose end is at or
// before now.
func (r *AppointmentRepository) ListEndedBefore(ctx context.Context, statuses []string, now time.Time) ([]persistence.Appointment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(statuses)
	args = append(args, toMillis(now))
	return queryAppointments(ctx, r.pool.DB(), r.mapper,
		`SELECT `+appointmentColumns+` FROM appointments WHERE status IN (`+placeholders+`) AND end_at <= ? ORDER BY end_at, id`, args...)
}

// ListStartedBefore returns appointments in status whose start is at or
// before now.
func (r *AppointmentRepository) ListStartedBefore(ctx context.Context, status string, now time.Time) ([]persistence.Appointment, error) {
	return queryAppointments(ctx, r.pool.DB(), r.mapper,
		`SELECT `+appointmentColumns+` FROM appointments WHERE status = ? AND start_at <= ? ORDER BY start_at, id`,
		status, toMillis(now))
}

// TransitionStatus moves the appointment to status to when its current
// status is one of from. It reports whether a row changed.
func (r *AppointmentRepository) TransitionStatus(ctx context.Context, id string, from []string, to string, at time.Time) (bool, error) {
	return transitionStatus(ctx, r.pool.DB(), r.mapper, id, from, to, at)
}

// CompleteAppointment stores samples and marks the appointment COMPLETED
// when its status is one of from. Nothing is written otherwise.
func (r *AppointmentRepository) CompleteAppointment(ctx context.Context, id string, from []string, samples []persistence.RFData, at time.Time) (bool, error) {
	var completed bool
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		changed, err := transitionStatus(ctx, tx, r.mapper, id, from, "COMPLETED", at)
		if err != nil || !changed {
			return err
		}
		if err := insertRFData(ctx, tx, r.mapper, id, samples); err != nil {
			return err
		}
		completed = true
		return nil
	})
	return completed, err
}

// rfDataBatch is the number of rows per INSERT. Four parameters per row keeps
// a statement under SQLite's historical limit of 999 host parameters.
const rfDataBatch = 200

// insertRFData writes samples with one multi-row INSERT per batch.
func insertRFData(ctx context.Context, tx *sql.Tx, mapper *ErrorMapper, appointmentID string, samples []persistence.RFData) error {
	for batch := range slices.Chunk(samples, rfDataBatch) {
		var query strings.Builder
		query.WriteString(`INSERT INTO rf_data (id, appointment_id, captured_at, intensity) VALUES `)
		args := make([]any, 0, 4*len(batch))
		for i, sample := range batch {
			if i > 0 {
				query.WriteString(", ")
			}
			query.WriteString("(?, ?, ?, ?)")
			args = append(args, sample.ID, appointmentID, toMillis(sample.CapturedAt), sample.Intensity)
		}
		if _, err := tx.ExecContext(ctx, query.String(), args...); err != nil {
			return fmt.Errorf("insert rf data: %w", mapper.MapError(err))
		}
	}
	return nil
}

// ListRFData returns the samples captured for an appointment in time order.
func (r *AppointmentRepository) ListRFData(ctx context.Context, appointmentID string) ([]persistence.RFData, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT id, appointment_id, captured_at, intensity FROM rf_data WHERE appointment_id = ? ORDER BY captured_at, id`,
		appointmentID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var samples []persistence.RFData
	for rows.Next() {
		var (
			sample     persistence.RFData
			capturedAt int64
		)
		if err := rows.Scan(&sample.ID, &sample.AppointmentID, &capturedAt, &sample.Intensity); err != nil {
			return nil, r.mapper.MapError(err)
		}
		sample.CapturedAt = fromMillis(capturedAt)
		samples = append(samples, sample)
	}
	return samples, r.mapper.MapError(rows.Err())
}

// WithinReservation runs fn inside a BEGIN IMMEDIATE transaction. Every
// conflict check and insert fn performs sees a database no other writer can
// change until fn returns.
func (r *AppointmentRepository) WithinReservation(ctx context.Context, fn func(tx persistence.ReservationTx) error) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&reservationTx{tx: tx, mapper: r.mapper})
	})
}

type reservationTx struct {
	tx     *sql.Tx
	mapper *ErrorMapper
}

func (t *reservationTx) GetAppointment(ctx context.Context, id string) (persistence.Appointment, error) {
	return getAppointment(ctx, t.tx, t.mapper, id)
}

// FindOverlapping returns appointments on telescopeID in statuses whose
// half-open interval intersects [start, end).
func (t *reservationTx) FindOverlapping(ctx context.Context, telescopeID string, start, end time.Time, statuses []string) ([]persistence.Appointment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(statuses)
	args = append([]any{telescopeID, toMillis(end), toMillis(start)}, args...)
	return queryAppointments(ctx, t.tx, t.mapper, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE telescope_id = ? AND start_at < ? AND end_at > ? AND status IN (`+placeholders+`)
		ORDER BY start_at, id`, args...)
}

func (t *reservationTx) ListForUserByStatus(ctx context.Context, userID string, statuses []string) ([]persistence.Appointment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(statuses)
	args = append([]any{userID}, args...)
	return queryAppointments(ctx, t.tx, t.mapper,
		`SELECT `+appointmentColumns+` FROM appointments WHERE user_id = ? AND status IN (`+placeholders+`) ORDER BY start_at, id`, args...)
}

func (t *reservationTx) GetAllottedTimeCap(ctx context.Context, userID string) (persistence.AllottedTimeCap, error) {
	return scanCap(t.tx.QueryRowContext(ctx, `SELECT user_id, limit_ms FROM allotted_time_caps WHERE user_id = ?`, userID), t.mapper)
}

func (t *reservationTx) CreateAppointment(ctx context.Context, a persistence.Appointment) error {
	if a.ID == "" || !a.End.After(a.Start) {
		return persistence.ErrConstraintViolation
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.UserID,
		a.TelescopeID,
		toMillis(a.Start),
		toMillis(a.End),
		boolToInt(a.Public),
		a.Priority,
		a.Type,
		a.Status,
		a.Target,
		toMillis(a.CreatedAt),
		toMillis(a.UpdatedAt),
	)
	return t.mapper.MapError(err)
}

func (t *reservationTx) TransitionStatus(ctx context.Context, id string, from []string, to string, at time.Time) (bool, error) {
	return transitionStatus(ctx, t.tx, t.mapper, id, from, to, at)
}

func (t *reservationTx) CreateSubscription(ctx context.Context, s persistence.Subscription) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO subscriptions (id, appointment_id, user_id, topic, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.AppointmentID, s.UserID, s.Topic, s.Status, toMillis(s.CreatedAt),
	)
	return t.mapper.MapError(err)
}

func (t *reservationTx) DeleteSubscriptionsForAppointment(ctx context.Context, appointmentID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE appointment_id = ?`, appointmentID)
	return t.mapper.MapError(err)
}

func getAppointment(ctx context.Context, q querier, mapper *ErrorMapper, id string) (persistence.Appointment, error) {
	if id == "" {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	a, err := scanAppointment(q.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id))
	if err != nil {
		return persistence.Appointment{}, mapper.MapError(err)
	}
	return a, nil
}

func queryAppointments(ctx context.Context, q querier, mapper *ErrorMapper, query string, args ...any) ([]persistence.Appointment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapper.MapError(err)
	}
	defer rows.Close()

	var appointments []persistence.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, mapper.MapError(err)
		}
		appointments = append(appointments, a)
	}
	return appointments, mapper.MapError(rows.Err())
}

func transitionStatus(ctx context.Context, q querier, mapper *ErrorMapper, id string, from []string, to string, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	placeholders, args := inClause(from)
	args = append([]any{to, toMillis(at), id}, args...)
	result, err := q.ExecContext(ctx,
		`UPDATE appointments SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return false, mapper.MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanAppointment(row scanner) (persistence.Appointment, error) {
	var (
		a                            persistence.Appointment
		start, end, created, updated int64
		public                       int
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.TelescopeID,
		&start,
		&end,
		&public,
		&a.Priority,
		&a.Type,
		&a.Status,
		&a.Target,
		&created,
		&updated,
	)
	if err != nil {
		return persistence.Appointment{}, err
	}
	a.Start = fromMillis(start)
	a.End = fromMillis(end)
	a.Public = public == 1
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return a, nil
}
