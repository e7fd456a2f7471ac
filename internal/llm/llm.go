package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/papergen/internal/llm/prompts"
	"github.com/pavelanni/papergen/internal/model"
)

var (
	// ErrServiceUnavailable means no credential is configured; no request was made.
	ErrServiceUnavailable = errors.New("generation service not configured")
	// ErrExhausted means every candidate model failed or was rejected.
	ErrExhausted = errors.New("all candidate models failed")
	// ErrNoUsableQuestions means a response parsed but named no question from the pool.
	ErrNoUsableQuestions = errors.New("response selected no known questions")
)

// DefaultModels are tried in order; earlier entries are preferred.
var DefaultModels = []string{"gemini-2.0-flash-exp", "gemini-1.5-flash", "gemini-pro"}

const (
	// DefaultSampleSize caps how many bank questions are sent per request.
	DefaultSampleSize = 50
	// DefaultBackoff is the pause after a failed attempt.
	DefaultBackoff = 2 * time.Second
	// DefaultAttemptTimeout bounds a single model attempt.
	DefaultAttemptTimeout = 60 * time.Second
)

// CompletionRequest is a single prompt sent to a model.
type CompletionRequest struct {
	Model  string
	Prompt string
	JSON   bool // ask for a JSON object response
}

// Completer sends a prompt to a text generation service and returns the raw text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// AttemptError records why one candidate model was abandoned.
type AttemptError struct {
	Model string
	Err   error
}

func (e AttemptError) Error() string {
	return e.Model + ": " + e.Err.Error()
}

// ExhaustedError lists the failures of all attempted models.
type ExhaustedError struct {
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrExhausted.Error() + ": no candidate models configured"
	}
	msgs := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		msgs = append(msgs, a.Error())
	}
	return ErrExhausted.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Draft is a successful external selection, resolved against the question pool.
type Draft struct {
	Questions          []model.PaperQuestion
	DeclaredTotalMarks int
	Model              string
}

// Client generates question selections through a Completer, trying each
// candidate model in turn.
type Client struct {
	completer      Completer
	models         []string
	sampleSize     int
	backoff        time.Duration
	attemptTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithModels sets the candidate models in preference order.
func WithModels(models ...string) Option {
	return func(c *Client) { c.models = models }
}

// WithSampleSize sets how many pool questions are shown to the model.
func WithSampleSize(n int) Option {
	return func(c *Client) { c.sampleSize = n }
}

// WithBackoff sets the pause after a failed attempt.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithAttemptTimeout bounds each attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) { c.attemptTimeout = d }
}

// New creates a Client. A nil completer yields a client whose Generate always
// returns ErrServiceUnavailable.
func New(completer Completer, opts ...Option) *Client {
	c := &Client{
		completer:      completer,
		models:         DefaultModels,
		sampleSize:     DefaultSampleSize,
		backoff:        DefaultBackoff,
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOpenAI creates a Client for an OpenAI-compatible endpoint.
// An empty apiKey leaves the client unconfigured.
func NewOpenAI(baseURL, apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		return New(nil, opts...)
	}
	return New(NewOpenAICompleter(baseURL, apiKey), opts...)
}

// Configured reports whether a credential was supplied.
func (c *Client) Configured() bool {
	return c.completer != nil
}

// Models returns the candidate models in order.
func (c *Client) Models() []string {
	return c.models
}

// Ping checks that the endpoint answers, when the completer supports it.
func (c *Client) Ping(ctx context.Context) error {
	if c.completer == nil {
		return ErrServiceUnavailable
	}
	p, ok := c.completer.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

// Generate asks the candidate models, one at a time, to select questions for cfg
// from pool. Per-model failures are logged and followed by a backoff pause.
// When all models fail it returns an *ExhaustedError.
func (c *Client) Generate(ctx context.Context, cfg model.GenerationConfig, pool []model.Question) (*Draft, error) {
	if c.completer == nil {
		return nil, ErrServiceUnavailable
	}

	eligible := UnitPool(cfg, pool)
	sample := eligible
	if c.sampleSize > 0 && len(sample) > c.sampleSize {
		sample = sample[:c.sampleSize]
	}

	prompt, err := prompts.BuildGeneratePrompt(cfg, sample)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	byID := make(map[int64]model.Question, len(eligible))
	for _, q := range eligible {
		byID[q.ID] = q
	}

	exhausted := &ExhaustedError{}
	for i, name := range c.models {
		slog.Info("trying generation model", "model", name, "sample", len(sample))
		draft, err := c.attempt(ctx, name, prompt, byID)
		if err == nil {
			return draft, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("generation attempt failed", "model", name, "error", err)
		exhausted.Attempts = append(exhausted.Attempts, AttemptError{Model: name, Err: err})

		if i < len(c.models)-1 && c.backoff > 0 {
			t := time.NewTimer(c.backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil, exhausted
}

type completion struct {
	text string
	err  error
}

func (c *Client) attempt(ctx context.Context, name, prompt string, byID map[int64]model.Question) (*Draft, error) {
	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	// The completer may ignore its context; the select below enforces the bound anyway.
	done := make(chan completion, 1)
	go func() {
		text, err := c.completer.Complete(actx, CompletionRequest{Model: name, Prompt: prompt, JSON: true})
		done <- completion{text: text, err: err}
	}()

	var res completion
	select {
	case res = <-done:
	case <-actx.Done():
		return nil, fmt.Errorf("attempt aborted: %w", actx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("completion: %w", res.err)
	}
	slog.Debug("generation response", "model", name, "raw", res.text)

	resp, err := parseResponse(res.text)
	if err != nil {
		return nil, err
	}

	questions := resolve(resp.ids, byID)
	if len(questions) == 0 {
		return nil, ErrNoUsableQuestions
	}
	if dropped := len(resp.ids) - len(questions); dropped > 0 {
		slog.Warn("dropped unknown or repeated questions from response", "model", name, "dropped", dropped)
	}

	return &Draft{
		Questions:          questions,
		DeclaredTotalMarks: resp.totalMarks,
		Model:              name,
	}, nil
}

// UnitPool returns the questions of pool that belong to the selected units, in pool order.
func UnitPool(cfg model.GenerationConfig, pool []model.Question) []model.Question {
	units := make(map[int64]bool, len(cfg.Units))
	for _, u := range cfg.Units {
		units[u.ID] = true
	}
	var out []model.Question
	for _, q := range pool {
		if units[q.UnitID] {
			out = append(out, q)
		}
	}
	return out
}

func resolve(ids []int64, byID map[int64]model.Question) []model.PaperQuestion {
	seen := make(map[int64]bool, len(ids))
	var out []model.PaperQuestion
	for _, id := range ids {
		q, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, q.Snapshot())
	}
	return out
}
