package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/club-events/models"
)

type participationKey struct {
	eventID  int
	username string
}

type memoryParticipation struct {
	models.Participation
	seq int64
}

type memoryState struct {
	members        map[string]models.Member
	events         map[int]models.Event
	participations map[participationKey]memoryParticipation
	nextEventID    int
	nextSeq        int64
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		members:        make(map[string]models.Member, len(s.members)),
		events:         make(map[int]models.Event, len(s.events)),
		participations: make(map[participationKey]memoryParticipation, len(s.participations)),
		nextEventID:    s.nextEventID,
		nextSeq:        s.nextSeq,
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.participations {
		c.participations[k] = v
	}
	return c
}

// MemoryDatabase is an in-process Database with the same contract as the
// Postgres one: unique (event, member) pairs, cascading deletes and
// all-or-nothing transactions. A single mutex serialises transactions.
type MemoryDatabase struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		state: &memoryState{
			members:        make(map[string]models.Member),
			events:         make(map[int]models.Event),
			participations: make(map[participationKey]memoryParticipation),
			nextEventID:    1,
		},
		now: time.Now,
	}
}

func (d *MemoryDatabase) view(inTx bool) *memoryStore {
	return &memoryStore{db: d, inTx: inTx}
}

func (d *MemoryDatabase) Members() MemberRepository               { return d.view(false) }
func (d *MemoryDatabase) Events() EventRepository                 { return &memoryEvents{d.view(false)} }
func (d *MemoryDatabase) Participations() ParticipationRepository { return &memoryParticipations{d.view(false)} }

func (d *MemoryDatabase) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := d.state.clone()
	if err := fn(&memoryTxStore{d.view(true)}); err != nil {
		d.state = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		d.state = snapshot
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type memoryTxStore struct {
	s *memoryStore
}

func (t *memoryTxStore) Members() MemberRepository               { return t.s }
func (t *memoryTxStore) Events() EventRepository                 { return &memoryEvents{t.s} }
func (t *memoryTxStore) Participations() ParticipationRepository { return &memoryParticipations{t.s} }

// memoryStore implements MemberRepository directly; events and participations
// are thin wrappers so method names do not collide.
type memoryStore struct {
	db   *MemoryDatabase
	inTx bool
}

func (s *memoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.db.mu.Lock()
	return s.db.mu.Unlock
}

func (s *memoryStore) st() *memoryState { return s.db.state }

// --- members ---

func (s *memoryStore) Create(_ context.Context, m *models.Member) error {
	defer s.lock()()
	if _, ok := s.st().members[m.Username]; ok {
		return ErrMemberConflict
	}
	m.Score = 0
	m.CreatedAt = s.db.now()
	s.st().members[m.Username] = *m
	return nil
}

func (s *memoryStore) GetByUsername(_ context.Context, username string) (*models.Member, error) {
	defer s.lock()()
	m, ok := s.st().members[username]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return &m, nil
}

func (s *memoryStore) List(_ context.Context) ([]models.Member, error) {
	defer s.lock()()
	members := make([]models.Member, 0, len(s.st().members))
	for _, m := range s.st().members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}

func (s *memoryStore) Update(_ context.Context, m *models.Member) error {
	defer s.lock()()
	existing, ok := s.st().members[m.Username]
	if !ok {
		return ErrMemberNotFound
	}
	existing.Email = m.Email
	existing.Role = m.Role
	existing.PasswordHash = m.PasswordHash
	s.st().members[m.Username] = existing
	return nil
}

func (s *memoryStore) Delete(_ context.Context, username string) error {
	defer s.lock()()
	if _, ok := s.st().members[username]; !ok {
		return ErrMemberNotFound
	}
	delete(s.st().members, username)
	for k := range s.st().participations {
		if k.username == username {
			delete(s.st().participations, k)
		}
	}
	return nil
}

func (s *memoryStore) AdjustScore(_ context.Context, username string, delta int) (int, error) {
	defer s.lock()()
	m, ok := s.st().members[username]
	if !ok {
		return 0, ErrMemberNotFound
	}
	m.Score += delta
	s.st().members[username] = m
	return m.Score, nil
}

func (s *memoryStore) ListAllocationCandidates(_ context.Context, eventID int) ([]models.Member, error) {
	defer s.lock()()
	members := make([]models.Member, 0)
	for _, m := range s.st().members {
		if _, taken := s.st().participations[participationKey{eventID, m.Username}]; taken {
			continue
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Username < members[j].Username
	})
	return members, nil
}

// --- events ---

type memoryEvents struct {
	s *memoryStore
}

func (r *memoryEvents) Create(_ context.Context, e *models.Event) error {
	defer r.s.lock()()
	st := r.s.st()
	e.ID = st.nextEventID
	st.nextEventID++
	e.AllocationProcessed = false
	e.CreatedAt = r.s.db.now()
	stored := *e
	stored.Participants = nil
	st.events[e.ID] = stored
	return nil
}

func (r *memoryEvents) GetByID(_ context.Context, id int) (*models.Event, error) {
	defer r.s.lock()()
	e, ok := r.s.st().events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &e, nil
}

func (r *memoryEvents) GetByIDForUpdate(ctx context.Context, id int) (*models.Event, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryEvents) List(_ context.Context) ([]models.Event, error) {
	defer r.s.lock()()
	return r.sorted(func(models.Event) bool { return true }), nil
}

func (r *memoryEvents) ListByMember(_ context.Context, username string) ([]models.Event, error) {
	defer r.s.lock()()
	st := r.s.st()
	return r.sorted(func(e models.Event) bool {
		_, ok := st.participations[participationKey{e.ID, username}]
		return ok
	}), nil
}

func (r *memoryEvents) ListDueForAllocation(_ context.Context, day time.Time) ([]models.Event, error) {
	defer r.s.lock()()
	due := r.sorted(func(e models.Event) bool {
		return e.WantsDeadlineRun() && e.AllocationState(day) == models.AllocationDue
	})
	sort.SliceStable(due, func(i, j int) bool { return due[i].Deadline.Before(*due[j].Deadline) })
	return due, nil
}

func (r *memoryEvents) sorted(keep func(models.Event) bool) []models.Event {
	events := make([]models.Event, 0)
	for _, e := range r.s.st().events {
		if keep(e) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].EventDate.Equal(events[j].EventDate) {
			return events[i].EventDate.Before(events[j].EventDate)
		}
		return events[i].ID < events[j].ID
	})
	return events
}

func (r *memoryEvents) Update(_ context.Context, e *models.Event) error {
	defer r.s.lock()()
	existing, ok := r.s.st().events[e.ID]
	if !ok {
		return ErrEventNotFound
	}
	updated := *e
	updated.Participants = nil
	updated.AllocationProcessed = existing.AllocationProcessed
	updated.CreatedAt = existing.CreatedAt
	r.s.st().events[e.ID] = updated
	return nil
}

func (r *memoryEvents) Delete(_ context.Context, id int) error {
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(st.events, id)
	for k := range st.participations {
		if k.eventID == id {
			delete(st.participations, k)
		}
	}
	return nil
}

func (r *memoryEvents) MarkAllocationProcessed(_ context.Context, id int) error {
	defer r.s.lock()()
	e, ok := r.s.st().events[id]
	if !ok {
		return ErrEventNotFound
	}
	e.AllocationProcessed = true
	r.s.st().events[id] = e
	return nil
}

// --- participations ---

type memoryParticipations struct {
	s *memoryStore
}

func (r *memoryParticipations) Create(_ context.Context, p *models.Participation) error {
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.members[p.Username]; !ok {
		return ErrParticipationMemberInvalid
	}
	if _, ok := st.events[p.EventID]; !ok {
		return ErrParticipationEventInvalid
	}
	key := participationKey{p.EventID, p.Username}
	if _, ok := st.participations[key]; ok {
		return ErrParticipationConflict
	}
	p.CreatedAt = r.s.db.now()
	stored := *p
	stored.Member = nil
	st.nextSeq++
	st.participations[key] = memoryParticipation{Participation: stored, seq: st.nextSeq}
	return nil
}

func (r *memoryParticipations) Delete(_ context.Context, eventID int, username string) (*models.Participation, error) {
	defer r.s.lock()()
	key := participationKey{eventID, username}
	p, ok := r.s.st().participations[key]
	if !ok {
		return nil, ErrParticipationNotFound
	}
	delete(r.s.st().participations, key)
	removed := p.Participation
	return &removed, nil
}

func (r *memoryParticipations) DeleteByMember(_ context.Context, username string) (int, error) {
	defer r.s.lock()()
	n := 0
	for k := range r.s.st().participations {
		if k.username == username {
			delete(r.s.st().participations, k)
			n++
		}
	}
	return n, nil
}

func (r *memoryParticipations) ListByEvent(_ context.Context, eventID int) ([]models.Participation, error) {
	defer r.s.lock()()
	st := r.s.st()
	out := r.collect(func(k participationKey) bool { return k.eventID == eventID })
	for i := range out {
		if m, ok := st.members[out[i].Username]; ok {
			member := m
			out[i].Member = &member
		}
	}
	return out, nil
}

func (r *memoryParticipations) ListByMember(_ context.Context, username string) ([]models.Participation, error) {
	defer r.s.lock()()
	return r.collect(func(k participationKey) bool { return k.username == username }), nil
}

func (r *memoryParticipations) CountByEvent(_ context.Context, eventID int) (int, error) {
	defer r.s.lock()()
	n := 0
	for k := range r.s.st().participations {
		if k.eventID == eventID {
			n++
		}
	}
	return n, nil
}

func (r *memoryParticipations) collect(keep func(participationKey) bool) []models.Participation {
	rows := make([]memoryParticipation, 0)
	for k, p := range r.s.st().participations {
		if keep(k) {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]models.Participation, len(rows))
	for i, row := range rows {
		out[i] = row.Participation
	}
	return out
}
