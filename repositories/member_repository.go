package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/club-events/models"
)

const memberColumns = `username, email, password_hash, role, score, created_at`

type postgresMemberRepository struct {
	db SQLExecutor
}

func NewPostgresMemberRepository(db SQLExecutor) MemberRepository {
	return &postgresMemberRepository{db: db}
}

func (r *postgresMemberRepository) Create(ctx context.Context, m *models.Member) error {
	query := `
		INSERT INTO members (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING score, created_at`

	err := r.db.QueryRowContext(ctx, query,
		m.Username,
		m.Email,
		m.PasswordHash,
		m.Role,
	).Scan(&m.Score, &m.CreatedAt)
	if err != nil {
		if pqErr, ok := asPQError(err); ok && pqErr.Code == pqUniqueViolation {
			return ErrMemberConflict
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

func (r *postgresMemberRepository) scanMember(row rowScanner, m *models.Member) error {
	return row.Scan(
		&m.Username,
		&m.Email,
		&m.PasswordHash,
		&m.Role,
		&m.Score,
		&m.CreatedAt,
	)
}

func (r *postgresMemberRepository) GetByUsername(ctx context.Context, username string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE username = $1`

	m := &models.Member{}
	if err := r.scanMember(r.db.QueryRowContext(ctx, query, username), m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (r *postgresMemberRepository) List(ctx context.Context) ([]models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members ORDER BY username ASC`
	return r.list(ctx, query)
}

func (r *postgresMemberRepository) ListAllocationCandidates(ctx context.Context, eventID int) ([]models.Member, error) {
	query := `
		SELECT m.username, m.email, m.password_hash, m.role, m.score, m.created_at
		FROM members m
		WHERE NOT EXISTS (
			SELECT 1 FROM participations p
			WHERE p.event_id = $1 AND p.username = m.username
		)
		ORDER BY m.score ASC, m.username ASC
		FOR KEY SHARE OF m`
	return r.list(ctx, query, eventID)
}

func (r *postgresMemberRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Member, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.Member, 0)
	for rows.Next() {
		var m models.Member
		if err := r.scanMember(rows, &m); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return members, nil
}

func (r *postgresMemberRepository) Update(ctx context.Context, m *models.Member) error {
	query := `
		UPDATE members SET
			email = $1,
			role = $2,
			password_hash = $3
		WHERE username = $4`

	result, err := r.db.ExecContext(ctx, query, m.Email, m.Role, m.PasswordHash, m.Username)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) Delete(ctx context.Context, username string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) AdjustScore(ctx context.Context, username string, delta int) (int, error) {
	query := `UPDATE members SET score = score + $1 WHERE username = $2 RETURNING score`

	var score int
	if err := r.db.QueryRowContext(ctx, query, delta, username).Scan(&score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrMemberNotFound
		}
		return 0, fmt.Errorf("failed to adjust score for %s: %w", username, err)
	}
	return score, nil
}
