package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/pavelanni/papergen/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	loadOnce    sync.Once
	loadErr     error
	generateTpl *template.Template
)

// UnitData describes one selected unit in the prompt.
type UnitData struct {
	Number int
	Title  string
	Topics string
}

// GenerateData holds template data for the paper generation prompt.
type GenerateData struct {
	CourseID   int64
	ExamType   string
	TotalMarks int
	Units      []UnitData
	Difficulty string
	Bloom      string
	Bank       string
}

// bankEntry is the compact form of a question shown to the model.
type bankEntry struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Marks  int    `json:"marks"`
	UnitID int64  `json:"unitId"`
}

func load() error {
	loadOnce.Do(func() {
		content, err := templateFS.ReadFile("templates/generate.txt")
		if err != nil {
			loadErr = fmt.Errorf("read generate template: %w", err)
			return
		}
		generateTpl, err = template.New("generate").Parse(string(content))
		if err != nil {
			loadErr = fmt.Errorf("parse generate template: %w", err)
		}
	})
	return loadErr
}

// BuildGeneratePrompt renders the generation prompt for cfg using the sampled bank.
func BuildGeneratePrompt(cfg model.GenerationConfig, bank []model.Question) (string, error) {
	if err := load(); err != nil {
		return "", err
	}

	data := GenerateData{
		CourseID:   cfg.CourseID,
		ExamType:   cfg.ExamType,
		TotalMarks: cfg.TotalMarks,
	}
	for _, u := range cfg.Units {
		data.Units = append(data.Units, UnitData{
			Number: u.Number,
			Title:  u.Title,
			Topics: strings.Join(u.Topics, ", "),
		})
	}

	var err error
	if data.Difficulty, err = compactJSON(cfg.DifficultyDistribution); err != nil {
		return "", err
	}
	if data.Bloom, err = compactJSON(cfg.BloomDistribution); err != nil {
		return "", err
	}

	entries := make([]bankEntry, 0, len(bank))
	for _, q := range bank {
		entries = append(entries, bankEntry{ID: q.ID, Text: q.Text, Marks: q.Marks, UnitID: q.UnitID})
	}
	if data.Bank, err = compactJSON(entries); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := generateTpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func compactJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal prompt data: %w", err)
	}
	return string(b), nil
}
