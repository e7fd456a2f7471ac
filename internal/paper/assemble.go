package paper

import (
	"time"

	"github.com/pavelanni/papergen/internal/model"
)

// AssembleInput holds everything Assemble needs; ID and At are stamped by the caller.
type AssembleInput struct {
	Questions          []model.PaperQuestion
	Config             model.GenerationConfig
	Method             model.GenerationMethod
	DeclaredTotalMarks int
	Model              string
	ID                 string
	At                 time.Time
}

// Assemble builds the canonical GeneratedPaper. It performs no I/O.
// TotalMarks is always the sum of the selected questions' marks.
func Assemble(in AssembleInput) model.GeneratedPaper {
	questions := make([]model.PaperQuestion, len(in.Questions))
	copy(questions, in.Questions)

	total := 0
	for _, q := range questions {
		total += q.Marks
	}

	return model.GeneratedPaper{
		ID:                 in.ID,
		Questions:          questions,
		TotalMarks:         total,
		DeclaredTotalMarks: in.DeclaredTotalMarks,
		Config:             in.Config,
		GeneratedAt:        in.At,
		Status:             model.PaperFinal,
		Method:             in.Method,
		Model:              in.Model,
	}
}
