package paper

import (
	"context"
	"fmt"

	"github.com/pavelanni/papergen/internal/model"
)

// Store persists generated papers. *store.Store implements it.
type Store interface {
	AddPaper(p model.GeneratedPaper) (model.GeneratedPaper, error)
	DeletePaper(id string) error
	GetPaper(id string) (model.GeneratedPaper, error)
	ListPapers() ([]model.GeneratedPaper, error)
	ClearPapers() error
}

// QuestionSource reads the question bank. *store.Store implements it.
type QuestionSource interface {
	ListQuestions(f model.QuestionFilter) ([]model.Question, error)
}

// Service ties generation to the question bank and the paper store.
type Service struct {
	gen       *Generator
	store     Store
	questions QuestionSource
}

// NewService creates a Service.
func NewService(gen *Generator, st Store, qs QuestionSource) *Service {
	return &Service{gen: gen, store: st, questions: qs}
}

// ValidateConfig checks cfg without generating anything.
func (s *Service) ValidateConfig(cfg model.GenerationConfig) ValidationResult {
	return Validate(cfg)
}

// QuestionPool loads the bank questions of the selected units.
func (s *Service) QuestionPool(cfg model.GenerationConfig) ([]model.Question, error) {
	pool, err := s.questions.ListQuestions(model.QuestionFilter{
		CourseID: cfg.CourseID,
		UnitIDs:  cfg.UnitIDs(),
	})
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	return pool, nil
}

// GeneratePaper generates a paper from an explicit pool without saving it.
func (s *Service) GeneratePaper(ctx context.Context, cfg model.GenerationConfig, pool []model.Question) (*model.GeneratedPaper, error) {
	return s.gen.Generate(ctx, cfg, pool)
}

// GenerateFromBank validates cfg, loads the pool for its units and generates a paper.
// The config is checked before the bank is read.
func (s *Service) GenerateFromBank(ctx context.Context, cfg model.GenerationConfig) (*model.GeneratedPaper, error) {
	if err := Validate(cfg).Err(); err != nil {
		return nil, err
	}
	pool, err := s.QuestionPool(cfg)
	if err != nil {
		return nil, err
	}
	return s.gen.Generate(ctx, cfg, pool)
}

// GenerateAndSave generates a paper from the bank and stores it. When only the
// save fails, the generated paper is returned along with the error so the
// caller can retry the save.
func (s *Service) GenerateAndSave(ctx context.Context, cfg model.GenerationConfig) (*model.GeneratedPaper, error) {
	p, err := s.GenerateFromBank(ctx, cfg)
	if err != nil {
		return nil, err
	}
	saved, err := s.store.AddPaper(*p)
	if err != nil {
		return p, fmt.Errorf("save paper: %w", err)
	}
	return &saved, nil
}

// SavePaper stores p and returns the stored record.
func (s *Service) SavePaper(p model.GeneratedPaper) (model.GeneratedPaper, error) {
	return s.store.AddPaper(p)
}

// DeletePaper removes a paper; unknown ids are ignored.
func (s *Service) DeletePaper(id string) error {
	return s.store.DeletePaper(id)
}

// ListPapers returns all papers, most recent first.
func (s *Service) ListPapers() ([]model.GeneratedPaper, error) {
	return s.store.ListPapers()
}

// GetPaperByID returns the paper or an error matching store.ErrNotFound.
func (s *Service) GetPaperByID(id string) (model.GeneratedPaper, error) {
	return s.store.GetPaper(id)
}

// ClearPapers deletes every stored paper.
func (s *Service) ClearPapers() error {
	return s.store.ClearPapers()
}
