package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BloomLevel is a cognitive-skill category from Bloom's taxonomy, 1 (Remember) to 6 (Create).
type BloomLevel int

const (
	BloomRemember   BloomLevel = 1
	BloomUnderstand BloomLevel = 2
	BloomApply      BloomLevel = 3
	BloomAnalyze    BloomLevel = 4
	BloomEvaluate   BloomLevel = 5
	BloomCreate     BloomLevel = 6
)

var bloomNames = map[BloomLevel]string{
	BloomRemember:   "Remember",
	BloomUnderstand: "Understand",
	BloomApply:      "Apply",
	BloomAnalyze:    "Analyze",
	BloomEvaluate:   "Evaluate",
	BloomCreate:     "Create",
}

// Valid reports whether b is one of the six known levels.
func (b BloomLevel) Valid() bool {
	_, ok := bloomNames[b]
	return ok
}

func (b BloomLevel) String() string {
	if name, ok := bloomNames[b]; ok {
		return name
	}
	return fmt.Sprintf("BloomLevel(%d)", int(b))
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	return d.Weight() > 0
}

// Weight returns the relative weight of the difficulty (easy=1, medium=2, hard=3), or 0 if unknown.
func (d Difficulty) Weight() int {
	switch d {
	case DifficultyEasy:
		return 1
	case DifficultyMedium:
		return 2
	case DifficultyHard:
		return 3
	}
	return 0
}

// Level is a catalog entry for a bloom level or difficulty.
type Level struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// BloomLevels lists the bloom taxonomy in order.
func BloomLevels() []Level {
	levels := make([]Level, 0, len(bloomNames))
	for b := BloomRemember; b <= BloomCreate; b++ {
		levels = append(levels, Level{ID: fmt.Sprint(int(b)), Name: b.String(), Weight: int(b)})
	}
	return levels
}

// Difficulties lists the difficulty levels in order.
func Difficulties() []Level {
	var levels []Level
	for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		levels = append(levels, Level{ID: string(d), Name: strings.ToUpper(string(d[:1])) + string(d[1:]), Weight: d.Weight()})
	}
	return levels
}

// PaperStatus is the lifecycle state of a generated paper.
type PaperStatus string

const (
	PaperDraft PaperStatus = "draft"
	PaperFinal PaperStatus = "final"
)

// GenerationMethod records which path produced a paper.
type GenerationMethod string

const (
	MethodExternal GenerationMethod = "external"
	MethodFallback GenerationMethod = "fallback"
)

// Question is a question bank entry.
type Question struct {
	ID         int64      `json:"id"`
	CourseID   int64      `json:"course_id"`
	UnitID     int64      `json:"unit_id"`
	Text       string     `json:"text"`
	Marks      int        `json:"marks"`
	Bloom      BloomLevel `json:"bloom_level"`
	Difficulty Difficulty `json:"difficulty"`
	Type       string     `json:"type"`
}

// Unit is a curriculum chapter within a course.
type Unit struct {
	ID       int64    `json:"id"`
	CourseID int64    `json:"course_id"`
	Number   int      `json:"unit_number"`
	Title    string   `json:"title"`
	Topics   []string `json:"topics,omitempty"`
}

// GenerationConfig describes the paper a caller asks for.
type GenerationConfig struct {
	CourseID               int64                  `json:"course_id" validate:"gt=0"`
	ExamType               string                 `json:"exam_type"`
	TotalMarks             int                    `json:"total_marks" validate:"gt=0"`
	Units                  []Unit                 `json:"units" validate:"min=1"`
	DifficultyDistribution map[Difficulty]float64 `json:"difficulty_distribution" validate:"dive,gte=0"`
	BloomDistribution      map[BloomLevel]float64 `json:"bloom_distribution" validate:"dive,gte=0"`
}

// UnitIDs returns the ids of the selected units in order.
func (c GenerationConfig) UnitIDs() []int64 {
	ids := make([]int64, 0, len(c.Units))
	for _, u := range c.Units {
		ids = append(ids, u.ID)
	}
	return ids
}

// PaperQuestion is a snapshot of a question taken at generation time.
// Papers keep these copies so they stay stable when the bank changes.
type PaperQuestion struct {
	ID         int64      `json:"id"`
	Text       string     `json:"text"`
	Marks      int        `json:"marks"`
	UnitID     int64      `json:"unit_id"`
	Bloom      BloomLevel `json:"bloom_level"`
	Difficulty Difficulty `json:"difficulty"`
	Type       string     `json:"type,omitempty"`
}

// Snapshot copies the fields of q that a paper keeps. Untagged questions get
// Remember and medium.
func (q Question) Snapshot() PaperQuestion {
	if !q.Bloom.Valid() {
		q.Bloom = BloomRemember
	}
	if !q.Difficulty.Valid() {
		q.Difficulty = DifficultyMedium
	}
	return PaperQuestion{
		ID:         q.ID,
		Text:       q.Text,
		Marks:      q.Marks,
		UnitID:     q.UnitID,
		Bloom:      q.Bloom,
		Difficulty: q.Difficulty,
		Type:       q.Type,
	}
}

// GeneratedPaper is a persisted question paper.
type GeneratedPaper struct {
	ID                 string           `json:"id"`
	Questions          []PaperQuestion  `json:"questions"`
	TotalMarks         int              `json:"total_marks"`
	DeclaredTotalMarks int              `json:"declared_total_marks,omitempty"`
	Config             GenerationConfig `json:"config"`
	GeneratedAt        time.Time        `json:"generated_at"`
	Status             PaperStatus      `json:"status"`
	Method             GenerationMethod `json:"generation_method"`
	Model              string           `json:"model,omitempty"`
}

// Shortfall returns how many marks the paper is below the requested total, or 0.
func (p GeneratedPaper) Shortfall() int {
	if d := p.Config.TotalMarks - p.TotalMarks; d > 0 {
		return d
	}
	return 0
}

// QuestionBank is the import format for units and questions.
type QuestionBank struct {
	Units     []Unit     `json:"units"`
	Questions []Question `json:"questions"`
}

// QuestionFilter narrows a question bank read. Zero values match everything.
type QuestionFilter struct {
	CourseID int64
	UnitIDs  []int64
}

// NewPaperID returns a time-ordered paper identifier.
func NewPaperID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
