package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/club-events/repositories"
)

// ScoreLedger changes member scores. It always works on the Store of the
// caller's transaction so a score change commits or rolls back together with
// the participation change that caused it.
type ScoreLedger struct{}

func NewScoreLedger() *ScoreLedger {
	return &ScoreLedger{}
}

// Credit adds amount to the member's score and returns the new score.
func (l *ScoreLedger) Credit(ctx context.Context, store repositories.Store, username string, amount int) (int, error) {
	return l.adjust(ctx, store, username, amount)
}

// Debit subtracts amount from the member's score and returns the new score.
func (l *ScoreLedger) Debit(ctx context.Context, store repositories.Store, username string, amount int) (int, error) {
	return l.adjust(ctx, store, username, -amount)
}

func (l *ScoreLedger) adjust(ctx context.Context, store repositories.Store, username string, delta int) (int, error) {
	score, err := store.Members().AdjustScore(ctx, username, delta)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return 0, ErrMemberNotFound
		}
		return 0, fmt.Errorf("failed to adjust score of %s by %d: %w", username, delta, err)
	}
	return score, nil
}
