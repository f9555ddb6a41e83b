package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/club-events/models"
)

func TestJoinCreditsScoreAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	ev := f.addEvent(t, models.Event{Capacity: 5, ScoreValue: 10})

	res, err := f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Score)
	assert.Equal(t, models.OriginManual, res.Participation.Origin)
	assert.Equal(t, 10, res.Participation.ScoreCredited)
	assert.Empty(t, res.Warnings)

	assert.Equal(t, 10, f.score(t, "alice"))
	sent := f.sender.Notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"alice@club.test"}, sent[0].To)
	require.NotNil(t, sent[0].Attachment)
	assert.Equal(t, "event.ics", sent[0].Attachment.Filename)
	assert.Equal(t, 1, f.roster.Updates(ev.ID))
}

func TestJoinUnknownEventOrMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	ev := f.addEvent(t, models.Event{})

	_, err := f.registration.Join(ctx, ev.ID+1, "alice", JoinOptions{})
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = f.registration.Join(ctx, ev.ID, "ghost", JoinOptions{})
	assert.ErrorIs(t, err, ErrMemberNotFound)
	assert.Empty(t, f.sender.Notifications())
}

func TestJoinTwiceFailsWithoutCreditingAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	ev := f.addEvent(t, models.Event{ScoreValue: 4})

	_, err := f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	require.NoError(t, err)
	_, err = f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, 4, f.score(t, "alice"))
	assert.Len(t, f.sender.Notifications(), 1)
}

func TestJoinDuplicateReportedBeforeCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	ev := f.addEvent(t, models.Event{Capacity: 1, ScoreValue: 2})

	_, err := f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	require.NoError(t, err)
	_, err = f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestJoinFullEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	f.addMember(t, "bob", 0)
	ev := f.addEvent(t, models.Event{Capacity: 1, ScoreValue: 3})

	_, err := f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	require.NoError(t, err)

	_, err = f.registration.Join(ctx, ev.ID, "bob", JoinOptions{})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 0, f.score(t, "bob"))
	assert.Equal(t, 1, f.count(t, ev.ID))

	_, err = f.registration.Join(ctx, ev.ID, "bob", JoinOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(t, ev.ID))
	assert.Equal(t, 3, f.score(t, "bob"))
}

func TestJoinUnlimitedCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	ev := f.addEvent(t, models.Event{Capacity: 0, ScoreValue: 1})
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("m%02d", i)
		f.addMember(t, name, 0)
		_, err := f.registration.Join(ctx, ev.ID, name, JoinOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, 20, f.count(t, ev.ID))
}

func TestJoinNotificationFailureIsWarning(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.sender.fail = true
	f.addMember(t, "alice", 0)
	ev := f.addEvent(t, models.Event{ScoreValue: 5})

	res, err := f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], ErrNotificationFailed.Error())
	assert.Equal(t, 5, f.score(t, "alice"))
	assert.Equal(t, 1, f.count(t, ev.ID))
}

func TestConcurrentDuplicateJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	ev := f.addEvent(t, models.Event{Capacity: 10, ScoreValue: 10})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
		}(i)
	}
	wg.Wait()

	succeeded, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, ErrAlreadyRegistered):
			duplicates++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, duplicates)
	assert.Equal(t, 10, f.score(t, "alice"))
	assert.Equal(t, 1, f.count(t, ev.ID))
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	const members, capacity = 40, 7
	ev := f.addEvent(t, models.Event{Capacity: capacity, ScoreValue: 2})
	for i := 0; i < members; i++ {
		f.addMember(t, fmt.Sprintf("m%02d", i), 0)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined, full := 0, 0
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := f.registration.Join(ctx, ev.ID, name, JoinOptions{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				joined++
			} else if assert.ErrorIs(t, err, ErrCapacityExceeded) {
				full++
			}
		}(fmt.Sprintf("m%02d", i))
	}
	wg.Wait()

	assert.Equal(t, capacity, joined)
	assert.Equal(t, members-capacity, full)
	assert.Equal(t, capacity, f.count(t, ev.ID))
	f.requireScoreInvariant(t)
}

func TestJoinWithdrawRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 7)
	ev := f.addEvent(t, models.Event{ScoreValue: 10})

	_, err := f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	require.NoError(t, err)
	assert.Equal(t, 17, f.score(t, "alice"))

	require.NoError(t, f.registration.Withdraw(ctx, ev.ID, "alice"))
	assert.Equal(t, 7, f.score(t, "alice"))
	assert.Zero(t, f.count(t, ev.ID))

	assert.ErrorIs(t, f.registration.Withdraw(ctx, ev.ID, "alice"), ErrNotRegistered)
	assert.Equal(t, 7, f.score(t, "alice"))
}

func TestWithdrawDebitsCreditedAmountAfterEventEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	ev := f.addEvent(t, models.Event{ScoreValue: 10})

	_, err := f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	require.NoError(t, err)

	_, err = f.events.Update(ctx, ev.ID, EventInput{
		Title:      ev.Title,
		EventDate:  ev.EventDate.Format(models.DateLayout),
		ScoreValue: 25,
	})
	require.NoError(t, err)

	require.NoError(t, f.registration.Withdraw(ctx, ev.ID, "alice"))
	assert.Equal(t, 0, f.score(t, "alice"))
}

func TestWithdrawUnknownEvent(t *testing.T) {
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	assert.ErrorIs(t, f.registration.Withdraw(context.Background(), 404, "alice"), ErrEventNotFound)
}

func TestScoreInvariantAfterRandomOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	names := []string{"anna", "bert", "carl", "dora", "emil"}
	for _, n := range names {
		f.addMember(t, n, 0)
	}
	var events []*models.Event
	for i, v := range []int{0, 3, 10} {
		events = append(events, f.addEvent(t, models.Event{Title: fmt.Sprintf("event %d", i), Capacity: 3, ScoreValue: v}))
	}

	rng := rand.New(rand.NewPCG(42, 7))
	for i := 0; i < 300; i++ {
		ev := events[rng.IntN(len(events))]
		name := names[rng.IntN(len(names))]
		switch rng.IntN(3) {
		case 0, 1:
			_, _ = f.registration.Join(ctx, ev.ID, name, JoinOptions{Force: rng.IntN(4) == 0})
		default:
			_ = f.registration.Withdraw(ctx, ev.ID, name)
		}
	}
	f.requireScoreInvariant(t)

	require.NoError(t, f.events.Delete(ctx, events[2].ID))
	f.requireScoreInvariant(t)
}

func TestListParticipantsHidesPasswordHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	require.NoError(t, f.db.Members().Create(ctx, &models.Member{
		Username: "alice", Email: "alice@club.test", Role: models.RoleMember, PasswordHash: "secret",
	}))
	ev := f.addEvent(t, models.Event{})
	_, err := f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	require.NoError(t, err)

	ps, err := f.registration.ListParticipants(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.NotNil(t, ps[0].Member)
	assert.Empty(t, ps[0].Member.PasswordHash)

	_, err = f.registration.ListParticipants(ctx, ev.ID+1)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestListMemberEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	first := f.addEvent(t, models.Event{Title: "first"})
	f.addEvent(t, models.Event{Title: "second"})
	_, err := f.registration.Join(ctx, first.ID, "alice", JoinOptions{})
	require.NoError(t, err)

	events, err := f.registration.ListMemberEvents(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, first.ID, events[0].ID)

	_, err = f.registration.ListMemberEvents(ctx, "ghost")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestRemoveMemberDropsParticipations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.addMember(t, "alice", 0)
	ev := f.addEvent(t, models.Event{ScoreValue: 2})
	_, err := f.registration.Join(ctx, ev.ID, "alice", JoinOptions{})
	require.NoError(t, err)

	require.NoError(t, f.registration.RemoveMember(ctx, "alice"))
	assert.Zero(t, f.count(t, ev.ID))
	assert.ErrorIs(t, f.registration.RemoveMember(ctx, "alice"), ErrMemberNotFound)
}
