//go:build integration

package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Dosada05/club-events/db"
	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/repositories"
)

// PostgresServiceSuite runs the registration and allocation services against
// a real Postgres, where transactions from different goroutines do interleave.
type PostgresServiceSuite struct {
	suite.Suite
	conn *sql.DB
	db   repositories.Database
	f    *fixture
}

func (s *PostgresServiceSuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("club"),
		tcpostgres.WithUsername("club"),
		tcpostgres.WithPassword("club"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(s.T(), container)
	s.Require().NoError(err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.conn, err = db.Connect(dsn, 10*time.Second, discardLogger())
	s.Require().NoError(err)
	s.Require().NoError(db.Migrate(ctx, s.conn))
	s.db = repositories.NewPostgresDatabase(s.conn)
}

func (s *PostgresServiceSuite) TearDownSuite() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *PostgresServiceSuite) SetupTest() {
	_, err := s.conn.Exec(`TRUNCATE participations, events, members RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
	s.f = newFixtureOn(s.T(), s.db, 1)
}

func (s *PostgresServiceSuite) TestConcurrentDuplicateJoin() {
	ctx := context.Background()
	t := s.T()
	s.f.addMember(t, "alice", 0)
	ev := s.f.addEvent(t, models.Event{Capacity: 10, ScoreValue: 10})

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.ErrorIs(err, ErrAlreadyRegistered)
	}
	s.Equal(1, succeeded)
	s.Equal(10, s.f.score(t, "alice"))
	s.Equal(1, s.f.count(t, ev.ID))
}

func (s *PostgresServiceSuite) TestConcurrentJoinsNeverExceedCapacity() {
	ctx := context.Background()
	t := s.T()
	const members, capacity = 25, 5
	ev := s.f.addEvent(t, models.Event{Capacity: capacity, ScoreValue: 2})
	for i := 0; i < members; i++ {
		s.f.addMember(t, fmt.Sprintf("m%02d", i), 0)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined, full := 0, 0
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := s.f.registration.Join(ctx, ev.ID, name, JoinOptions{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				joined++
			} else if s.ErrorIs(err, ErrCapacityExceeded) {
				full++
			}
		}(fmt.Sprintf("m%02d", i))
	}
	wg.Wait()

	s.Equal(capacity, joined)
	s.Equal(members-capacity, full)
	s.Equal(capacity, s.f.count(t, ev.ID))
	s.f.requireScoreInvariant(t)
}

func (s *PostgresServiceSuite) TestOverlappingSchedulersProcessOnce() {
	ctx := context.Background()
	t := s.T()
	ev := s.f.addEvent(t, models.Event{
		Capacity:         3,
		ScoreValue:       1,
		AutoAllocate:     true,
		NotifyOnDeadline: true,
		ContactEmail:     strPtr("board@club.test"),
		Deadline:         dayPtr(testToday),
	})
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		s.f.addMember(t, name, 0)
	}

	// Each scheduler gets its own allocation service, as two processes would.
	other := NewAllocationService(s.db, s.f.registration, NewSeededShuffler(7, 8), s.f.sender, s.f.roster, nil, discardLogger(), nil,
		WithAllocationClock(func() time.Time { return testToday }))

	var wg sync.WaitGroup
	summaries := make([]RunSummary, 2)
	for i, alloc := range []Allocator{s.f.allocation, other} {
		sched, err := NewDeadlineScheduler(s.db.Events(), alloc, SchedulerConfig{
			Location:     time.UTC,
			Concurrency:  2,
			EventTimeout: 10 * time.Second,
		}, discardLogger(), nil)
		s.Require().NoError(err)

		wg.Add(1)
		go func(i int, sched *DeadlineScheduler) {
			defer wg.Done()
			var err error
			summaries[i], err = sched.RunOnce(ctx, testToday)
			s.NoError(err)
		}(i, sched)
	}
	wg.Wait()

	s.Equal(1, summaries[0].Processed+summaries[1].Processed)
	s.Zero(summaries[0].Failed + summaries[1].Failed)
	s.Equal(3, s.f.count(t, ev.ID))
	s.Len(s.f.sender.Notifications(), 4)
	s.f.requireScoreInvariant(t)

	got, err := s.db.Events().GetByID(ctx, ev.ID)
	s.Require().NoError(err)
	s.True(got.AllocationProcessed)
}

func (s *PostgresServiceSuite) TestAllocationSkipsRegisteredCandidate() {
	ctx := context.Background()
	t := s.T()
	ev := s.f.addEvent(t, models.Event{Capacity: 3, ScoreValue: 4, AutoAllocate: true, Deadline: dayPtr(testToday)})
	for _, name := range []string{"anna", "carl", "dora"} {
		s.f.addMember(t, name, 0)
	}
	_, err := s.f.registration.Join(ctx, ev.ID, "anna", JoinOptions{})
	s.Require().NoError(err)

	s.f.allocation.db = staleCandidateDB{
		Database: s.db,
		extra:    []models.Member{{Username: "anna", Score: -1}},
	}

	res, err := s.f.allocation.Allocate(ctx, ev.ID)
	s.Require().NoError(err)
	s.Equal([]string{"anna"}, res.Skipped)
	s.Require().Len(res.Selected, 1)
	s.Contains([]string{"carl", "dora"}, res.Selected[0].Username)

	s.Equal(2, s.f.count(t, ev.ID))
	s.Equal(4, s.f.score(t, "anna"))
	s.f.requireScoreInvariant(t)

	got, err := s.db.Events().GetByID(ctx, ev.ID)
	s.Require().NoError(err)
	s.True(got.AllocationProcessed)
}

func TestPostgresServiceSuite(t *testing.T) {
	suite.Run(t, new(PostgresServiceSuite))
}
