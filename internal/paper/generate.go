package paper

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pavelanni/papergen/internal/llm"
	"github.com/pavelanni/papergen/internal/model"
)

// External produces a question selection from an outside service.
// *llm.Client implements it.
type External interface {
	Generate(ctx context.Context, cfg model.GenerationConfig, pool []model.Question) (*llm.Draft, error)
}

// Generator turns a config and a question pool into a GeneratedPaper.
// It holds no mutable state, so one Generator may serve concurrent calls.
type Generator struct {
	external External
	now      func() time.Time
	newID    func() string
	newRand  func() *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithExternal sets the external service tried before the fallback selector.
func WithExternal(e External) Option {
	return func(g *Generator) { g.external = e }
}

// WithSeed makes every fallback selection use the same shuffle.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.newRand = func() *rand.Rand { return rand.New(rand.NewPCG(seed, seed)) }
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithIDFunc overrides paper id assignment.
func WithIDFunc(f func() string) Option {
	return func(g *Generator) { g.newID = f }
}

// NewGenerator creates a Generator. Without WithExternal it always uses the fallback selector.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:   func() time.Time { return time.Now().UTC() },
		newID: model.NewPaperID,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate validates cfg, then tries the external service and falls back to
// SelectFallback when the service is unconfigured or exhausted.
//
// It fails only for an invalid config (matching ErrInvalidConfiguration) or a
// cancelled ctx. An empty or short paper is still returned; see CheckResult.
func (g *Generator) Generate(ctx context.Context, cfg model.GenerationConfig, pool []model.Question) (*model.GeneratedPaper, error) {
	if err := Validate(cfg).Err(); err != nil {
		return nil, err
	}

	if g.external != nil {
		draft, err := g.external.Generate(ctx, cfg, pool)
		switch {
		case err == nil && draft != nil:
			p := g.assemble(draft.Questions, cfg, model.MethodExternal, draft.DeclaredTotalMarks, draft.Model)
			slog.Info("generated paper", "id", p.ID, "method", p.Method, "model", p.Model,
				"questions", len(p.Questions), "marks", p.TotalMarks, "target", cfg.TotalMarks)
			return &p, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, llm.ErrServiceUnavailable):
			slog.Warn("generation service not configured, using fallback selector")
		case errors.Is(err, llm.ErrExhausted):
			slog.Warn("generation service exhausted, using fallback selector", "error", err)
		default:
			slog.Error("generation service failed, using fallback selector", "error", err)
		}
	}

	questions, err := SelectFallback(ctx, cfg, pool, g.newRand())
	if err != nil {
		return nil, err
	}
	p := g.assemble(questions, cfg, model.MethodFallback, 0, "")
	slog.Info("generated paper", "id", p.ID, "method", p.Method,
		"questions", len(p.Questions), "marks", p.TotalMarks, "target", cfg.TotalMarks)
	return &p, nil
}

func (g *Generator) assemble(qs []model.PaperQuestion, cfg model.GenerationConfig, method model.GenerationMethod, declared int, modelName string) model.GeneratedPaper {
	return Assemble(AssembleInput{
		Questions:          qs,
		Config:             cfg,
		Method:             method,
		DeclaredTotalMarks: declared,
		Model:              modelName,
		ID:                 g.newID(),
		At:                 g.now(),
	})
}
