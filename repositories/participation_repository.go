package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/club-events/models"
)

type postgresParticipationRepository struct {
	db SQLExecutor
}

func NewPostgresParticipationRepository(db SQLExecutor) ParticipationRepository {
	return &postgresParticipationRepository{db: db}
}

// Create relies on the (event_id, username) unique constraint instead of a
// prior SELECT; a conflicting insert returns no row.
func (r *postgresParticipationRepository) Create(ctx context.Context, p *models.Participation) error {
	query := `
		INSERT INTO participations (event_id, username, origin, score_credited)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT participations_event_id_username_key DO NOTHING
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.EventID,
		p.Username,
		p.Origin,
		p.ScoreCredited,
	).Scan(&p.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrParticipationConflict
		}
		if pqErr, ok := asPQError(err); ok {
			switch pqErr.Code {
			case pqUniqueViolation:
				return ErrParticipationConflict
			case pqForeignKeyViolation:
				switch pqErr.Constraint {
				case "participations_username_fkey":
					return ErrParticipationMemberInvalid
				case "participations_event_id_fkey":
					return ErrParticipationEventInvalid
				}
			}
		}
		return fmt.Errorf("failed to create participation: %w", err)
	}
	return nil
}

func (r *postgresParticipationRepository) Delete(ctx context.Context, eventID int, username string) (*models.Participation, error) {
	query := `
		DELETE FROM participations
		WHERE event_id = $1 AND username = $2
		RETURNING event_id, username, origin, score_credited, created_at`

	p := &models.Participation{}
	err := r.db.QueryRowContext(ctx, query, eventID, username).Scan(
		&p.EventID, &p.Username, &p.Origin, &p.ScoreCredited, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipationNotFound
		}
		return nil, fmt.Errorf("failed to delete participation: %w", err)
	}
	return p, nil
}

func (r *postgresParticipationRepository) DeleteByMember(ctx context.Context, username string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM participations WHERE username = $1`, username)
	if err != nil {
		return 0, fmt.Errorf("failed to delete participations of %s: %w", username, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return int(n), nil
}

func (r *postgresParticipationRepository) ListByEvent(ctx context.Context, eventID int) ([]models.Participation, error) {
	query := `
		SELECT
			p.event_id, p.username, p.origin, p.score_credited, p.created_at,
			m.email, m.role, m.score, m.created_at
		FROM participations p
		JOIN members m ON m.username = p.username
		WHERE p.event_id = $1
		ORDER BY p.created_at ASC, p.username ASC`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of event %d: %w", eventID, err)
	}
	defer rows.Close()

	participations := make([]models.Participation, 0)
	for rows.Next() {
		var p models.Participation
		m := &models.Member{}
		if err := rows.Scan(
			&p.EventID, &p.Username, &p.Origin, &p.ScoreCredited, &p.CreatedAt,
			&m.Email, &m.Role, &m.Score, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan participation row: %w", err)
		}
		m.Username = p.Username
		p.Member = m
		participations = append(participations, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participation rows: %w", err)
	}
	return participations, nil
}

func (r *postgresParticipationRepository) ListByMember(ctx context.Context, username string) ([]models.Participation, error) {
	query := `
		SELECT event_id, username, origin, score_credited, created_at
		FROM participations
		WHERE username = $1
		ORDER BY created_at ASC, event_id ASC`

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list participations of %s: %w", username, err)
	}
	defer rows.Close()

	participations := make([]models.Participation, 0)
	for rows.Next() {
		var p models.Participation
		if err := rows.Scan(&p.EventID, &p.Username, &p.Origin, &p.ScoreCredited, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participation row: %w", err)
		}
		participations = append(participations, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participation rows: %w", err)
	}
	return participations, nil
}

func (r *postgresParticipationRepository) CountByEvent(ctx context.Context, eventID int) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participations WHERE event_id = $1`, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count participants of event %d: %w", eventID, err)
	}
	return n, nil
}
