package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pavelanni/papergen/internal/model"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPaperExists is returned when adding a paper whose id is already stored.
	ErrPaperExists = errors.New("paper already exists")
	// ErrInvalidMarks is returned when a question's marks are not positive.
	ErrInvalidMarks = errors.New("question marks must be positive")
	// ErrIO wraps failures of the underlying database.
	ErrIO = errors.New("store I/O failure")
)

// Store is the SQLite-backed question bank and paper history.
// A single connection plus mu serialise writers.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and writes ordered.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		unit_number INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL,
		topics TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		unit_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		marks INTEGER NOT NULL,
		bloom_level INTEGER NOT NULL DEFAULT 1,
		difficulty TEXT NOT NULL DEFAULT 'medium',
		type TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (unit_id) REFERENCES units(id)
	);

	CREATE INDEX IF NOT EXISTS idx_questions_unit ON questions(course_id, unit_id);

	CREATE TABLE IF NOT EXISTS papers (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		course_id INTEGER NOT NULL,
		generated_at TEXT NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// InsertUnit stores a unit. A zero ID is assigned by the database; an existing
// ID is updated in place.
func (s *Store) InsertUnit(u model.Unit) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertUnit(s.db, u)
}

func upsertUnit(ex execer, u model.Unit) (int64, error) {
	topics, err := json.Marshal(u.Topics)
	if err != nil {
		return 0, err
	}
	res, err := ex.Exec(
		`INSERT INTO units (id, course_id, unit_number, title, topics) VALUES (NULLIF(?, 0), ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET course_id = excluded.course_id, unit_number = excluded.unit_number,
		 title = excluded.title, topics = excluded.topics`,
		u.ID, u.CourseID, u.Number, u.Title, string(topics),
	)
	if err != nil {
		return 0, err
	}
	if u.ID != 0 {
		return u.ID, nil
	}
	return res.LastInsertId()
}

// InsertQuestion stores a question. A zero ID is assigned by the database; an
// existing ID is updated in place.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertQuestion(s.db, q)
}

func upsertQuestion(ex execer, q model.Question) (int64, error) {
	if q.Marks <= 0 {
		return 0, fmt.Errorf("%w: question %d has %d marks", ErrInvalidMarks, q.ID, q.Marks)
	}
	res, err := ex.Exec(
		`INSERT INTO questions (id, course_id, unit_id, text, marks, bloom_level, difficulty, type)
		 VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET course_id = excluded.course_id, unit_id = excluded.unit_id,
		 text = excluded.text, marks = excluded.marks, bloom_level = excluded.bloom_level,
		 difficulty = excluded.difficulty, type = excluded.type`,
		q.ID, q.CourseID, q.UnitID, q.Text, q.Marks, q.Bloom, q.Difficulty, q.Type,
	)
	if err != nil {
		return 0, err
	}
	if q.ID != 0 {
		return q.ID, nil
	}
	return res.LastInsertId()
}

// ListUnits returns the units of a course ordered by unit number.
// A zero courseID lists every unit.
func (s *Store) ListUnits(courseID int64) ([]model.Unit, error) {
	query := `SELECT id, course_id, unit_number, title, topics FROM units`
	var args []any
	if courseID != 0 {
		query += ` WHERE course_id = ?`
		args = append(args, courseID)
	}
	query += ` ORDER BY course_id, unit_number, id`
	return s.queryUnits(query, args...)
}

// GetUnits returns the units with the given ids, in the order given.
// Unknown ids are skipped.
func (s *Store) GetUnits(ids []int64) ([]model.Unit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	units, err := s.queryUnits(
		`SELECT id, course_id, unit_number, title, topics FROM units WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Unit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	ordered := make([]model.Unit, 0, len(units))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			ordered = append(ordered, u)
		}
	}
	return ordered, nil
}

func (s *Store) queryUnits(query string, args ...any) ([]model.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []model.Unit
	for rows.Next() {
		var u model.Unit
		var topics string
		if err := rows.Scan(&u.ID, &u.CourseID, &u.Number, &u.Title, &topics); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(topics), &u.Topics); err != nil {
			return nil, fmt.Errorf("decode topics of unit %d: %w", u.ID, err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// ListQuestions returns questions matching the filter, ordered by id.
func (s *Store) ListQuestions(f model.QuestionFilter) ([]model.Question, error) {
	query := `SELECT id, course_id, unit_id, text, marks, bloom_level, difficulty, type FROM questions WHERE 1=1`
	var args []any
	if f.CourseID != 0 {
		query += ` AND course_id = ?`
		args = append(args, f.CourseID)
	}
	if len(f.UnitIDs) > 0 {
		query += ` AND unit_id IN (` + placeholders(len(f.UnitIDs)) + `)`
		args = append(args, int64Args(f.UnitIDs)...)
	}
	query += ` ORDER BY id`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.CourseID, &q.UnitID, &q.Text, &q.Marks, &q.Bloom, &q.Difficulty, &q.Type); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var q model.Question
	err := s.db.QueryRow(
		`SELECT id, course_id, unit_id, text, marks, bloom_level, difficulty, type FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.CourseID, &q.UnitID, &q.Text, &q.Marks, &q.Bloom, &q.Difficulty, &q.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return q, ErrNotFound
	}
	return q, err
}

// QuestionCount returns the total number of questions.
func (s *Store) QuestionCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// ResolveUnits fills in units that were given by id only (no course, no title)
// from the stored units. Unknown ids are left as given.
func (s *Store) ResolveUnits(units []model.Unit) ([]model.Unit, error) {
	var bare []int64
	for _, u := range units {
		if u.CourseID == 0 && u.Title == "" {
			bare = append(bare, u.ID)
		}
	}
	if len(bare) == 0 {
		return units, nil
	}
	known, err := s.GetUnits(bare)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Unit, len(known))
	for _, u := range known {
		byID[u.ID] = u
	}
	resolved := make([]model.Unit, len(units))
	for i, u := range units {
		if full, ok := byID[u.ID]; ok && u.CourseID == 0 && u.Title == "" {
			u = full
		}
		resolved[i] = u
	}
	return resolved, nil
}
