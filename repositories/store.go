package repositories

import (
	"context"
	"time"

	"github.com/Dosada05/club-events/models"
)

type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByUsername(ctx context.Context, username string) (*models.Member, error)
	List(ctx context.Context) ([]models.Member, error)
	// Update writes email, role and password hash. Score is never written here.
	Update(ctx context.Context, member *models.Member) error
	Delete(ctx context.Context, username string) error
	// AdjustScore atomically adds delta to the member's score and returns the new value.
	AdjustScore(ctx context.Context, username string, delta int) (int, error)
	// ListAllocationCandidates returns members without a participation in the
	// event, lowest score first. Inside a transaction the returned members
	// cannot be deleted until it ends.
	ListAllocationCandidates(ctx context.Context, eventID int) ([]models.Member, error)
}

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id int) (*models.Event, error)
	// GetByIDForUpdate reads the event and locks its row until the surrounding
	// transaction ends. Outside a transaction it behaves like GetByID.
	GetByIDForUpdate(ctx context.Context, id int) (*models.Event, error)
	List(ctx context.Context) ([]models.Event, error)
	ListByMember(ctx context.Context, username string) ([]models.Event, error)
	// Update writes the editable fields. AllocationProcessed is left untouched.
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id int) error
	// ListDueForAllocation returns unprocessed events whose deadline is on or
	// before day and that have auto allocation or deadline notification enabled.
	ListDueForAllocation(ctx context.Context, day time.Time) ([]models.Event, error)
	MarkAllocationProcessed(ctx context.Context, id int) error
}

type ParticipationRepository interface {
	// Create inserts the participation unless one already exists for the pair,
	// in which case ErrParticipationConflict is returned.
	Create(ctx context.Context, p *models.Participation) error
	// Delete removes the participation and returns the removed row.
	Delete(ctx context.Context, eventID int, username string) (*models.Participation, error)
	DeleteByMember(ctx context.Context, username string) (int, error)
	ListByEvent(ctx context.Context, eventID int) ([]models.Participation, error)
	ListByMember(ctx context.Context, username string) ([]models.Participation, error)
	CountByEvent(ctx context.Context, eventID int) (int, error)
}

// Store groups the repositories that share one connection or transaction.
type Store interface {
	Members() MemberRepository
	Events() EventRepository
	Participations() ParticipationRepository
}

// TxManager runs fn inside a transaction. The Store handed to fn is bound to
// that transaction; returning an error rolls everything back.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// Database is a Store that can also open transactions.
type Database interface {
	Store
	TxManager
}
