package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/papergen/internal/model"
)

// ExportPapers builds an export of the stored papers, most recent first.
// A zero courseID exports every course.
func (s *Store) ExportPapers(courseID int64) (model.PaperExport, error) {
	papers, err := s.listPapers(courseID)
	if err != nil {
		return model.PaperExport{}, fmt.Errorf("list papers: %w", err)
	}

	summary := make([]model.PaperSummary, 0, len(papers))
	for _, p := range papers {
		summary = append(summary, model.Summarize(p))
	}

	return model.PaperExport{
		ExportedAt: time.Now().UTC(),
		CourseID:   courseID,
		NumPapers:  len(papers),
		Summary:    summary,
		Papers:     papers,
	}, nil
}
