package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pavelanni/papergen/internal/model"
)

// ImportStats reports what an import did.
type ImportStats struct {
	Skipped   bool
	Units     int
	Questions int
}

// ImportBankFile loads units and questions from a JSON bank file. A file whose
// content matches its last import is skipped. Entries with ids replace the
// stored rows; papers are unaffected since they keep their own copies.
func (s *Store) ImportBankFile(path string) (ImportStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("read %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	storedHash, err := s.GetImportedFileHash(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		return ImportStats{Skipped: true}, nil
	}

	var bank model.QuestionBank
	if err := json.Unmarshal(data, &bank); err != nil {
		return ImportStats{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := s.ImportBank(bank); err != nil {
		return ImportStats{}, fmt.Errorf("import %s: %w", path, err)
	}
	if err := s.SetImportedFileHash(path, hash); err != nil {
		return ImportStats{}, fmt.Errorf("record import for %s: %w", path, err)
	}
	return ImportStats{Units: len(bank.Units), Questions: len(bank.Questions)}, nil
}

// ImportBank stores all units and questions of bank in one transaction. A
// question without positive marks aborts the whole import.
func (s *Store) ImportBank(bank model.QuestionBank) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range bank.Units {
		if _, err := upsertUnit(tx, u); err != nil {
			return fmt.Errorf("insert unit %d: %w", u.ID, err)
		}
	}
	for _, q := range bank.Questions {
		if _, err := upsertQuestion(tx, q); err != nil {
			return fmt.Errorf("insert question %d: %w", q.ID, err)
		}
	}
	return tx.Commit()
}
