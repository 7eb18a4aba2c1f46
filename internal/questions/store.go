// Package questions persists audience questions for a local deck.
package questions

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"slidecast/internal/models"
)

// TextLimit caps submitted question length.
const TextLimit = 500

var (
	ErrNotFound  = errors.New("questions: not found")
	ErrEmptyText = errors.New("questions: text is required")
	ErrTooLong   = fmt.Errorf("questions: text must be under %d characters", TextLimit)
)

const schema = `
CREATE TABLE IF NOT EXISTS questions (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	votes      INTEGER NOT NULL DEFAULT 0,
	answered   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS question_votes (
	question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
	voter_token TEXT NOT NULL,
	PRIMARY KEY (question_id, voter_token)
);
`

// Store keeps questions in a SQLite database next to the deck.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open questions db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize questions schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// List returns all questions, newest first. Voter tokens are never exposed.
func (s *Store) List() ([]models.Question, error) {
	rows, err := s.db.Query(`SELECT id, text, votes, answered, created_at, updated_at
		FROM questions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	questions := make([]models.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Add stores a new question after validating its text.
func (s *Store) Add(text string) (*models.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > TextLimit {
		return nil, ErrTooLong
	}

	now := time.Now().UTC()
	q := models.Question{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: now.Format(time.RFC3339),
		UpdatedAt: now.Format(time.RFC3339),
	}
	_, err := s.db.Exec(`INSERT INTO questions (id, text, votes, answered, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?)`, q.ID, q.Text, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert question: %w", err)
	}
	return &q, nil
}

// Vote records one vote per voter token per question. The second return
// value reports whether the vote counted (false for duplicates).
func (s *Store) Vote(id, token string) (*models.Question, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(1) FROM questions WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, false, err
	}
	if exists == 0 {
		return nil, false, ErrNotFound
	}

	res, err := tx.Exec(`INSERT OR IGNORE INTO question_votes (question_id, voter_token) VALUES (?, ?)`, id, token)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record vote: %w", err)
	}
	counted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	if counted > 0 {
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.Exec(`UPDATE questions SET votes = votes + 1, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return nil, false, fmt.Errorf("failed to update vote count: %w", err)
		}
	}

	q, err := getQuestionTx(tx, id)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return q, counted > 0, nil
}

// SetAnswered flips the answered flag.
func (s *Store) SetAnswered(id string, answered bool) (*models.Question, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE questions SET answered = ?, updated_at = ? WHERE id = ?`,
		boolToInt(answered), now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.get(id)
}

// Delete removes a question and its votes.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) get(id string) (*models.Question, error) {
	row := s.db.QueryRow(`SELECT id, text, votes, answered, created_at, updated_at
		FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func getQuestionTx(tx *sql.Tx, id string) (*models.Question, error) {
	row := tx.QueryRow(`SELECT id, text, votes, answered, created_at, updated_at
		FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner) (models.Question, error) {
	var q models.Question
	var answered int
	err := row.Scan(&q.ID, &q.Text, &q.Votes, &answered, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return q, err
	}
	q.Answered = answered != 0
	return q, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
