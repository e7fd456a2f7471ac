package paper

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/pavelanni/papergen/internal/model"
)

// bankPool returns n questions per unit for units 1 and 2, each worth marks.
func bankPool(n, marks int) []model.Question {
	var pool []model.Question
	id := int64(1)
	for _, unit := range []int64{1, 2} {
		for range n {
			pool = append(pool, model.Question{
				ID: id, CourseID: 1, UnitID: unit, Text: "question", Marks: marks,
				Bloom: model.BloomUnderstand, Difficulty: model.DifficultyEasy,
			})
			id++
		}
	}
	return pool
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func marksOf(qs []model.PaperQuestion) int {
	total := 0
	for _, q := range qs {
		total += q.Marks
	}
	return total
}

func TestSelectFallbackReachesTarget(t *testing.T) {
	// 10 questions of 5 marks, target 30.
	cfg := validConfig()
	pool := bankPool(5, 5)

	got, err := SelectFallback(context.Background(), cfg, pool, seeded(1))
	if err != nil {
		t.Fatalf("SelectFallback: %v", err)
	}
	if m := marksOf(got); m < 30 || m > 30+5 {
		t.Errorf("marks = %d, want within [30, 35]", m)
	}
	if len(got) != 6 {
		t.Errorf("expected 6 questions, got %d", len(got))
	}
}

func TestSelectFallbackCoversEveryUnit(t *testing.T) {
	cfg := validConfig()
	cfg.TotalMarks = 1 // met by the first question alone
	pool := bankPool(4, 3)

	for seed := range uint64(20) {
		got, err := SelectFallback(context.Background(), cfg, pool, seeded(seed))
		if err != nil {
			t.Fatalf("SelectFallback: %v", err)
		}
		units := map[int64]bool{}
		for _, q := range got {
			units[q.UnitID] = true
		}
		if !units[1] || !units[2] {
			t.Errorf("seed %d: units covered %v, want both", seed, units)
		}
		if len(got) != 2 {
			t.Errorf("seed %d: expected only the coverage pass, got %d questions", seed, len(got))
		}
	}
}

func TestSelectFallbackShortfall(t *testing.T) {
	cfg := validConfig()
	cfg.TotalMarks = 100
	pool := bankPool(2, 5)

	got, err := SelectFallback(context.Background(), cfg, pool, seeded(3))
	if err != nil {
		t.Fatalf("SelectFallback: %v", err)
	}
	if len(got) != len(pool) || marksOf(got) != 20 {
		t.Errorf("expected the whole pool (20 marks), got %d questions / %d marks", len(got), marksOf(got))
	}
}

func TestSelectFallbackEmptyPool(t *testing.T) {
	got, err := SelectFallback(context.Background(), validConfig(), nil, seeded(1))
	if err != nil {
		t.Fatalf("SelectFallback: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no questions, got %d", len(got))
	}
}

func TestSelectFallbackSubsetWithoutDuplicates(t *testing.T) {
	cfg := validConfig()
	cfg.TotalMarks = 25
	pool := bankPool(6, 2)
	byID := map[int64]model.Question{}
	for _, q := range pool {
		byID[q.ID] = q
	}

	got, err := SelectFallback(context.Background(), cfg, pool, seeded(9))
	if err != nil {
		t.Fatalf("SelectFallback: %v", err)
	}
	seen := map[int64]bool{}
	for _, q := range got {
		src, ok := byID[q.ID]
		if !ok {
			t.Fatalf("question %d not in pool", q.ID)
		}
		if seen[q.ID] {
			t.Fatalf("question %d selected twice", q.ID)
		}
		seen[q.ID] = true
		if q.Marks != src.Marks || q.Text != src.Text {
			t.Errorf("question %d snapshot differs from pool", q.ID)
		}
	}
}

func TestSelectFallbackDeterministicWithSeed(t *testing.T) {
	cfg := validConfig()
	pool := bankPool(8, 4)

	a, _ := SelectFallback(context.Background(), cfg, pool, seeded(42))
	b, _ := SelectFallback(context.Background(), cfg, pool, seeded(42))
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different selections")
	}
}

func TestSelectFallbackDoesNotMutatePool(t *testing.T) {
	pool := bankPool(5, 5)
	before := make([]model.Question, len(pool))
	copy(before, pool)

	if _, err := SelectFallback(context.Background(), validConfig(), pool, seeded(5)); err != nil {
		t.Fatalf("SelectFallback: %v", err)
	}
	if !reflect.DeepEqual(pool, before) {
		t.Error("pool was reordered")
	}
}

func TestSelectFallbackDefaultsTags(t *testing.T) {
	pool := []model.Question{{ID: 1, CourseID: 1, UnitID: 1, Text: "untagged", Marks: 30}}

	got, err := SelectFallback(context.Background(), validConfig(), pool, seeded(1))
	if err != nil {
		t.Fatalf("SelectFallback: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 question, got %d", len(got))
	}
	if got[0].Bloom != model.BloomRemember || got[0].Difficulty != model.DifficultyMedium {
		t.Errorf("defaults not applied: %+v", got[0])
	}
}

func TestSelectFallbackCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SelectFallback(ctx, validConfig(), bankPool(3, 5), seeded(1))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
