package session

import (
	"time"

	"github.com/scriptbloxx/brainsift-cli/internal/model"
)

// RecordAttempt appends a completed exam attempt to the local history.
func (s *Store) RecordAttempt(res *model.ExamResult) error {
	_, err := s.db.Exec(
		`INSERT INTO attempts (exam_id, exam_title, score, correct_answers, total_questions, percentage, taken_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ExamID, res.ExamTitle, res.Score, res.CorrectAnswers, res.TotalQuestions, res.Percentage, time.Now(),
	)
	return err
}

// ListAttempts returns all recorded attempts, newest first.
func (s *Store) ListAttempts() ([]model.Attempt, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, exam_title, score, correct_answers, total_questions, percentage, taken_at
		 FROM attempts ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.ExamTitle, &a.Score, &a.CorrectAnswers, &a.TotalQuestions, &a.Percentage, &a.TakenAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
