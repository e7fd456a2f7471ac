package model

import "time"

// PaperExport is the top-level JSON structure for paper history export.
type PaperExport struct {
	ExportedAt time.Time        `json:"exported_at"`
	CourseID   int64            `json:"course_id,omitempty"`
	NumPapers  int              `json:"num_papers"`
	Summary    []PaperSummary   `json:"summary"`
	Papers     []GeneratedPaper `json:"papers"`
}

// PaperSummary is a one-line overview of an exported paper.
type PaperSummary struct {
	ID             string           `json:"id"`
	CourseID       int64            `json:"course_id"`
	ExamType       string           `json:"exam_type"`
	RequestedMarks int              `json:"requested_marks"`
	AchievedMarks  int              `json:"achieved_marks"`
	NumQuestions   int              `json:"num_questions"`
	Method         GenerationMethod `json:"generation_method"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// Summarize builds the summary row for p.
func Summarize(p GeneratedPaper) PaperSummary {
	return PaperSummary{
		ID:             p.ID,
		CourseID:       p.Config.CourseID,
		ExamType:       p.Config.ExamType,
		RequestedMarks: p.Config.TotalMarks,
		AchievedMarks:  p.TotalMarks,
		NumQuestions:   len(p.Questions),
		Method:         p.Method,
		GeneratedAt:    p.GeneratedAt,
	}
}
