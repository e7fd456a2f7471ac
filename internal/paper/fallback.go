package paper

import (
	"context"
	"math/rand/v2"

	"github.com/pavelanni/papergen/internal/model"
)

// SelectFallback picks questions from pool without any external service.
//
// The pool is shuffled with rng, then one question is taken for each selected
// unit that has any, then the rest of the shuffled pool is added in order until
// the requested marks are reached or the pool runs out. The last question may
// overshoot the target; nothing is removed to hit it exactly.
//
// The only error returned is ctx's, checked between the two passes.
func SelectFallback(ctx context.Context, cfg model.GenerationConfig, pool []model.Question, rng *rand.Rand) ([]model.PaperQuestion, error) {
	shuffled := make([]model.Question, len(pool))
	copy(shuffled, pool)
	if rng != nil {
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
	}

	chosen := make(map[int64]bool, len(shuffled))
	var selected []model.PaperQuestion
	marks := 0

	take := func(q model.Question) {
		chosen[q.ID] = true
		selected = append(selected, q.Snapshot())
		marks += q.Marks
	}

	for _, u := range cfg.Units {
		for _, q := range shuffled {
			if q.UnitID == u.ID && !chosen[q.ID] {
				take(q)
				break
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, q := range shuffled {
		if marks >= cfg.TotalMarks {
			break
		}
		if !chosen[q.ID] {
			take(q)
		}
	}

	return selected, nil
}
