package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const defaultTxTimeout = 30 * time.Second

type postgresStore struct {
	members        MemberRepository
	events         EventRepository
	participations ParticipationRepository
}

func newPostgresStore(exec SQLExecutor) *postgresStore {
	return &postgresStore{
		members:        NewPostgresMemberRepository(exec),
		events:         NewPostgresEventRepository(exec),
		participations: NewPostgresParticipationRepository(exec),
	}
}

func (s *postgresStore) Members() MemberRepository               { return s.members }
func (s *postgresStore) Events() EventRepository                 { return s.events }
func (s *postgresStore) Participations() ParticipationRepository { return s.participations }

// PostgresDatabase is the Database backed by a *sql.DB.
type PostgresDatabase struct {
	*postgresStore
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresDatabase(db *sql.DB) *PostgresDatabase {
	return &PostgresDatabase{
		postgresStore: newPostgresStore(db),
		db:            db,
		timeout:       defaultTxTimeout,
	}
}

// RunInTx commits when fn returns nil and rolls back otherwise. A timeout is
// applied when ctx carries no deadline so a stuck statement cannot hold row
// locks forever.
func (d *PostgresDatabase) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(newPostgresStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
