package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/papergen/internal/model"
)

// AddPaper stores p ahead of all earlier papers and returns the stored record.
// Missing ID, GeneratedAt and Status are filled in; an ID that is already
// stored yields ErrPaperExists.
func (s *Store) AddPaper(p model.GeneratedPaper) (model.GeneratedPaper, error) {
	if p.ID == "" {
		p.ID = model.NewPaperID()
	}
	if p.GeneratedAt.IsZero() {
		p.GeneratedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = model.PaperDraft
	}

	data, err := json.Marshal(p)
	if err != nil {
		return model.GeneratedPaper{}, fmt.Errorf("encode paper: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM papers WHERE id = ?`, p.ID).Scan(&n); err != nil {
		return model.GeneratedPaper{}, fmt.Errorf("%w: check paper: %w", ErrIO, err)
	}
	if n > 0 {
		return model.GeneratedPaper{}, fmt.Errorf("%w: %s", ErrPaperExists, p.ID)
	}

	_, err = s.db.Exec(
		`INSERT INTO papers (id, course_id, generated_at, data) VALUES (?, ?, ?, ?)`,
		p.ID, p.Config.CourseID, p.GeneratedAt.UTC().Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return model.GeneratedPaper{}, fmt.Errorf("%w: insert paper: %w", ErrIO, err)
	}

	// Return exactly what a later read will decode.
	var stored model.GeneratedPaper
	if err := json.Unmarshal(data, &stored); err != nil {
		return model.GeneratedPaper{}, fmt.Errorf("decode paper: %w", err)
	}
	return stored, nil
}

// DeletePaper removes the paper with the given id. Unknown ids are not an error.
func (s *Store) DeletePaper(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM papers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete paper: %w", ErrIO, err)
	}
	return nil
}

// GetPaper returns the paper with the given id, or ErrNotFound.
func (s *Store) GetPaper(id string) (model.GeneratedPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM papers WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GeneratedPaper{}, ErrNotFound
	}
	if err != nil {
		return model.GeneratedPaper{}, fmt.Errorf("%w: get paper: %w", ErrIO, err)
	}
	var p model.GeneratedPaper
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return model.GeneratedPaper{}, fmt.Errorf("decode paper %s: %w", id, err)
	}
	return p, nil
}

// ListPapers returns every paper, most recently added first.
func (s *Store) ListPapers() ([]model.GeneratedPaper, error) {
	return s.listPapers(0)
}

// ClearPapers deletes all papers.
func (s *Store) ClearPapers() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM papers`); err != nil {
		return fmt.Errorf("%w: clear papers: %w", ErrIO, err)
	}
	return nil
}

// PaperCount returns the number of stored papers.
func (s *Store) PaperCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM papers`).Scan(&count)
	return count, err
}

func (s *Store) listPapers(courseID int64) ([]model.GeneratedPaper, error) {
	query := `SELECT id, data FROM papers`
	var args []any
	if courseID != 0 {
		query += ` WHERE course_id = ?`
		args = append(args, courseID)
	}
	query += ` ORDER BY seq DESC`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list papers: %w", ErrIO, err)
	}
	defer rows.Close()

	papers := []model.GeneratedPaper{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("%w: scan paper: %w", ErrIO, err)
		}
		var p model.GeneratedPaper
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decode paper %s: %w", id, err)
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list papers: %w", ErrIO, err)
	}
	return papers, nil
}
