package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/repositories"
)

var testToday = time.Date(2026, 5, 12, 6, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSender collects queued notifications. With fail set every Enqueue
// is rejected.
type recordingSender struct {
	mu   sync.Mutex
	sent []models.Notification
	fail bool
}

func (r *recordingSender) Enqueue(_ context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.Join(ErrNotificationFailed, errors.New("queue full"))
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingSender) Notifications() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

type recordingRoster struct {
	mu      sync.Mutex
	updates map[int]int
}

func (r *recordingRoster) PublishRoster(eventID int, _ []models.Participation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updates == nil {
		r.updates = make(map[int]int)
	}
	r.updates[eventID]++
}

func (r *recordingRoster) Updates(eventID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[eventID]
}

type fixture struct {
	db           repositories.Database
	sender       *recordingSender
	roster       *recordingRoster
	registration *RegistrationService
	allocation   *AllocationService
	events       *EventService
}

func newFixture(t *testing.T, seed uint64) *fixture {
	t.Helper()
	return newFixtureOn(t, repositories.NewMemoryDatabase(), seed)
}

// newFixtureOn wires the services over db, which may be any store.
func newFixtureOn(t *testing.T, db repositories.Database, seed uint64) *fixture {
	t.Helper()
	f := &fixture{
		db:     db,
		sender: &recordingSender{},
		roster: &recordingRoster{},
	}
	logger := discardLogger()
	ledger := NewScoreLedger()
	f.registration = NewRegistrationService(f.db, ledger, f.sender, f.roster, logger, nil)
	f.allocation = NewAllocationService(f.db, f.registration, NewSeededShuffler(seed, seed+1), f.sender, f.roster, nil, logger, nil,
		WithAllocationClock(func() time.Time { return testToday }))
	f.events = NewEventService(f.db, ledger, f.roster, logger)
	return f
}

func (f *fixture) addMember(t *testing.T, username string, score int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.db.Members().Create(ctx, &models.Member{
		Username: username,
		Email:    username + "@club.test",
		Role:     models.RoleMember,
	}))
	if score != 0 {
		_, err := f.db.Members().AdjustScore(ctx, username, score)
		require.NoError(t, err)
	}
}

func (f *fixture) addEvent(t *testing.T, e models.Event) *models.Event {
	t.Helper()
	if e.Title == "" {
		e.Title = "Field cleanup"
	}
	if e.EventDate.IsZero() {
		e.EventDate = testToday.AddDate(0, 0, 7)
	}
	require.NoError(t, f.db.Events().Create(context.Background(), &e))
	return &e
}

func (f *fixture) score(t *testing.T, username string) int {
	t.Helper()
	m, err := f.db.Members().GetByUsername(context.Background(), username)
	require.NoError(t, err)
	return m.Score
}

func (f *fixture) count(t *testing.T, eventID int) int {
	t.Helper()
	n, err := f.db.Participations().CountByEvent(context.Background(), eventID)
	require.NoError(t, err)
	return n
}

// requireScoreInvariant checks that every member's score equals the sum of
// the score credited by their participations.
func (f *fixture) requireScoreInvariant(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	members, err := f.db.Members().List(ctx)
	require.NoError(t, err)
	for _, m := range members {
		ps, err := f.db.Participations().ListByMember(ctx, m.Username)
		require.NoError(t, err)
		sum := 0
		for _, p := range ps {
			sum += p.ScoreCredited
		}
		require.Equalf(t, sum, m.Score, "score of %s", m.Username)
	}
}

func dayPtr(t time.Time) *time.Time {
	return &t
}

func strPtr(s string) *string {
	return &s
}

// staleCandidateDB prepends extra members to every allocation candidate list,
// as if they changed between the list being read and the insert.
type staleCandidateDB struct {
	repositories.Database
	extra []models.Member
}

func (d staleCandidateDB) RunInTx(ctx context.Context, fn func(repositories.Store) error) error {
	return d.Database.RunInTx(ctx, func(store repositories.Store) error {
		return fn(staleCandidateStore{Store: store, extra: d.extra})
	})
}

type staleCandidateStore struct {
	repositories.Store
	extra []models.Member
}

func (s staleCandidateStore) Members() repositories.MemberRepository {
	return staleCandidates{MemberRepository: s.Store.Members(), extra: s.extra}
}

type staleCandidates struct {
	repositories.MemberRepository
	extra []models.Member
}

func (c staleCandidates) ListAllocationCandidates(ctx context.Context, eventID int) ([]models.Member, error) {
	candidates, err := c.MemberRepository.ListAllocationCandidates(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return append(append([]models.Member{}, c.extra...), candidates...), nil
}

// adjustRecordingDB records the members whose score is adjusted inside
// transactions, in call order.
type adjustRecordingDB struct {
	repositories.Database
	mu       sync.Mutex
	adjusted []string
}

func (d *adjustRecordingDB) RunInTx(ctx context.Context, fn func(repositories.Store) error) error {
	return d.Database.RunInTx(ctx, func(store repositories.Store) error {
		return fn(adjustRecordingStore{Store: store, db: d})
	})
}

func (d *adjustRecordingDB) Adjusted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.adjusted...)
}

type adjustRecordingStore struct {
	repositories.Store
	db *adjustRecordingDB
}

func (s adjustRecordingStore) Members() repositories.MemberRepository {
	return adjustRecordingMembers{MemberRepository: s.Store.Members(), db: s.db}
}

type adjustRecordingMembers struct {
	repositories.MemberRepository
	db *adjustRecordingDB
}

func (m adjustRecordingMembers) AdjustScore(ctx context.Context, username string, delta int) (int, error) {
	m.db.mu.Lock()
	m.db.adjusted = append(m.db.adjusted, username)
	m.db.mu.Unlock()
	return m.MemberRepository.AdjustScore(ctx, username, delta)
}
