package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/club-events/models"
)

func seedMember(t *testing.T, db *MemoryDatabase, username string) {
	t.Helper()
	require.NoError(t, db.Members().Create(context.Background(), &models.Member{
		Username: username,
		Email:    username + "@club.test",
		Role:     models.RoleMember,
	}))
}

func seedEvent(t *testing.T, db *MemoryDatabase, e *models.Event) *models.Event {
	t.Helper()
	require.NoError(t, db.Events().Create(context.Background(), e))
	return e
}

func TestMemoryParticipationUniquePair(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	seedMember(t, db, "anna")
	ev := seedEvent(t, db, &models.Event{Title: "Cleanup", EventDate: time.Now()})

	require.NoError(t, db.Participations().Create(ctx, &models.Participation{EventID: ev.ID, Username: "anna", Origin: models.OriginManual}))
	err := db.Participations().Create(ctx, &models.Participation{EventID: ev.ID, Username: "anna", Origin: models.OriginManual})
	assert.ErrorIs(t, err, ErrParticipationConflict)

	n, err := db.Participations().CountByEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryParticipationRequiresMemberAndEvent(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	seedMember(t, db, "anna")
	ev := seedEvent(t, db, &models.Event{Title: "Cleanup", EventDate: time.Now()})

	err := db.Participations().Create(ctx, &models.Participation{EventID: ev.ID, Username: "ghost"})
	assert.ErrorIs(t, err, ErrParticipationMemberInvalid)

	err = db.Participations().Create(ctx, &models.Participation{EventID: ev.ID + 100, Username: "anna"})
	assert.ErrorIs(t, err, ErrParticipationEventInvalid)
}

func TestMemoryRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	seedMember(t, db, "anna")
	ev := seedEvent(t, db, &models.Event{Title: "Cleanup", EventDate: time.Now(), ScoreValue: 3})

	boom := errors.New("boom")
	err := db.RunInTx(ctx, func(store Store) error {
		if err := store.Participations().Create(ctx, &models.Participation{EventID: ev.ID, Username: "anna", ScoreCredited: 3}); err != nil {
			return err
		}
		if _, err := store.Members().AdjustScore(ctx, "anna", 3); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	m, err := db.Members().GetByUsername(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Score)

	n, err := db.Participations().CountByEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryRunInTxCommits(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	seedMember(t, db, "anna")

	require.NoError(t, db.RunInTx(ctx, func(store Store) error {
		_, err := store.Members().AdjustScore(ctx, "anna", 4)
		return err
	}))

	m, err := db.Members().GetByUsername(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, 4, m.Score)
}

func TestMemoryRunInTxCancelledContext(t *testing.T) {
	db := NewMemoryDatabase()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := db.RunInTx(ctx, func(Store) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryDeleteEventCascades(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	seedMember(t, db, "anna")
	ev := seedEvent(t, db, &models.Event{Title: "Cleanup", EventDate: time.Now()})
	require.NoError(t, db.Participations().Create(ctx, &models.Participation{EventID: ev.ID, Username: "anna"}))

	require.NoError(t, db.Events().Delete(ctx, ev.ID))

	ps, err := db.Participations().ListByMember(ctx, "anna")
	require.NoError(t, err)
	assert.Empty(t, ps)
	assert.ErrorIs(t, db.Events().Delete(ctx, ev.ID), ErrEventNotFound)
}

func TestMemoryAllocationCandidatesOrder(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	for _, name := range []string{"carl", "anna", "bert", "dora"} {
		seedMember(t, db, name)
	}
	_, err := db.Members().AdjustScore(ctx, "anna", 5)
	require.NoError(t, err)
	_, err = db.Members().AdjustScore(ctx, "dora", 2)
	require.NoError(t, err)

	ev := seedEvent(t, db, &models.Event{Title: "Cleanup", EventDate: time.Now()})
	require.NoError(t, db.Participations().Create(ctx, &models.Participation{EventID: ev.ID, Username: "bert"}))

	candidates, err := db.Members().ListAllocationCandidates(ctx, ev.ID)
	require.NoError(t, err)

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Username
	}
	assert.Equal(t, []string{"carl", "dora", "anna"}, names)
}

func TestMemoryListDueForAllocation(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	today := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)

	due := seedEvent(t, db, &models.Event{Title: "due", EventDate: tomorrow, Deadline: &yesterday, AutoAllocate: true})
	seedEvent(t, db, &models.Event{Title: "future", EventDate: tomorrow, Deadline: &tomorrow, AutoAllocate: true})
	seedEvent(t, db, &models.Event{Title: "nothing to do", EventDate: tomorrow, Deadline: &yesterday})
	processed := seedEvent(t, db, &models.Event{Title: "processed", EventDate: tomorrow, Deadline: &today, NotifyOnDeadline: true})
	require.NoError(t, db.Events().MarkAllocationProcessed(ctx, processed.ID))
	onDay := seedEvent(t, db, &models.Event{Title: "today", EventDate: tomorrow, Deadline: &today, NotifyOnDeadline: true})

	events, err := db.Events().ListDueForAllocation(ctx, today)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, due.ID, events[0].ID)
	assert.Equal(t, onDay.ID, events[1].ID)
}

func TestMemoryEventUpdateKeepsProcessedFlag(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	ev := seedEvent(t, db, &models.Event{Title: "Cleanup", EventDate: time.Now()})
	require.NoError(t, db.Events().MarkAllocationProcessed(ctx, ev.ID))

	ev.Title = "Spring cleanup"
	ev.AllocationProcessed = false
	require.NoError(t, db.Events().Update(ctx, ev))

	got, err := db.Events().GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spring cleanup", got.Title)
	assert.True(t, got.AllocationProcessed)
}
