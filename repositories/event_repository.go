package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/club-events/models"
)

const eventColumns = `
	e.id, e.title, e.description, e.event_date, e.starts_at, e.ends_at, e.capacity, e.deadline,
	e.contact_name, e.contact_email, e.score_value, e.auto_allocate, e.notify_on_deadline,
	e.allocation_processed, e.created_at`

type postgresEventRepository struct {
	db SQLExecutor
}

func NewPostgresEventRepository(db SQLExecutor) EventRepository {
	return &postgresEventRepository{db: db}
}

func (r *postgresEventRepository) Create(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (
			title, description, event_date, starts_at, ends_at, capacity, deadline,
			contact_name, contact_email, score_value, auto_allocate, notify_on_deadline
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, allocation_processed, created_at`

	err := r.db.QueryRowContext(ctx, query,
		e.Title, e.Description, e.EventDate, e.StartsAt, e.EndsAt, e.Capacity, e.Deadline,
		e.ContactName, e.ContactEmail, e.ScoreValue, e.AutoAllocate, e.NotifyOnDeadline,
	).Scan(&e.ID, &e.AllocationProcessed, &e.CreatedAt)

	return r.handleEventError(err)
}

func (r *postgresEventRepository) scanEvent(row rowScanner, e *models.Event) error {
	return row.Scan(
		&e.ID, &e.Title, &e.Description, &e.EventDate, &e.StartsAt, &e.EndsAt, &e.Capacity, &e.Deadline,
		&e.ContactName, &e.ContactEmail, &e.ScoreValue, &e.AutoAllocate, &e.NotifyOnDeadline,
		&e.AllocationProcessed, &e.CreatedAt,
	)
}

func (r *postgresEventRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Event, error) {
	e := &models.Event{}
	if err := r.scanEvent(r.db.QueryRowContext(ctx, query, args...), e); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return e, nil
}

func (r *postgresEventRepository) GetByID(ctx context.Context, id int) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresEventRepository) GetByIDForUpdate(ctx context.Context, id int) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id = $1 FOR UPDATE`
	return r.findOne(ctx, query, id)
}

func (r *postgresEventRepository) List(ctx context.Context) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e ORDER BY e.event_date ASC, e.id ASC`
	return r.list(ctx, query)
}

func (r *postgresEventRepository) ListByMember(ctx context.Context, username string) ([]models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events e
		JOIN participations p ON p.event_id = e.id
		WHERE p.username = $1
		ORDER BY e.event_date ASC, e.id ASC`
	return r.list(ctx, query, username)
}

func (r *postgresEventRepository) ListDueForAllocation(ctx context.Context, day time.Time) ([]models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events e
		WHERE e.allocation_processed = FALSE
		AND e.deadline IS NOT NULL
		AND e.deadline <= $1
		AND (e.auto_allocate OR e.notify_on_deadline)
		ORDER BY e.deadline ASC, e.id ASC`
	return r.list(ctx, query, day.Format(models.DateLayout))
}

func (r *postgresEventRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		var e models.Event
		if err := r.scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

func (r *postgresEventRepository) Update(ctx context.Context, e *models.Event) error {
	query := `
		UPDATE events SET
			title = $1,
			description = $2,
			event_date = $3,
			starts_at = $4,
			ends_at = $5,
			capacity = $6,
			deadline = $7,
			contact_name = $8,
			contact_email = $9,
			score_value = $10,
			auto_allocate = $11,
			notify_on_deadline = $12
		WHERE id = $13`

	result, err := r.db.ExecContext(ctx, query,
		e.Title, e.Description, e.EventDate, e.StartsAt, e.EndsAt, e.Capacity, e.Deadline,
		e.ContactName, e.ContactEmail, e.ScoreValue, e.AutoAllocate, e.NotifyOnDeadline,
		e.ID,
	)
	if err != nil {
		return r.handleEventError(err)
	}
	return checkAffectedRows(result, ErrEventNotFound)
}

func (r *postgresEventRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return r.handleEventError(err)
	}
	return checkAffectedRows(result, ErrEventNotFound)
}

func (r *postgresEventRepository) MarkAllocationProcessed(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `UPDATE events SET allocation_processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark event %d as processed: %w", id, err)
	}
	return checkAffectedRows(result, ErrEventNotFound)
}

func (r *postgresEventRepository) handleEventError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := asPQError(err); ok && pqErr.Code == pqCheckViolation {
		return fmt.Errorf("%w: %s", ErrEventInvalid, pqErr.Constraint)
	}
	return fmt.Errorf("event query failed: %w", err)
}
