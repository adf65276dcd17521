package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abdulachik/promptgym/internal/align"
	"github.com/abdulachik/promptgym/internal/imaging"
)

// Attempt kinds.
const (
	KindChallenge = "challenge"
	KindUpload    = "upload"
)

// Attempt is one finished, scored training attempt.
type Attempt struct {
	ID                int64
	CreatedAt         time.Time
	Kind              string
	Difficulty        string
	TargetDescription string
	UserPrompt        string
	Score             int
	Feedback          []align.FeedbackItem
	ReferenceImage    imaging.Image
	UserImage         imaging.Image
}

// SaveAttempt records a finished attempt and returns its id.
func (s *Store) SaveAttempt(ctx context.Context, a Attempt) (int64, error) {
	feedback, err := json.Marshal(a.Feedback)
	if err != nil {
		return 0, fmt.Errorf("marshal feedback: %w", err)
	}

	res, err := s.ExecContext(ctx, `
		INSERT INTO attempts (
			kind, difficulty, target_description, user_prompt, score,
			feedback_json, reference_image, reference_mime, user_image, user_mime
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Kind, a.Difficulty, a.TargetDescription, a.UserPrompt, a.Score,
		string(feedback),
		a.ReferenceImage.Data, a.ReferenceImage.MIMEType,
		a.UserImage.Data, a.UserImage.MIMEType,
	)
	if err != nil {
		return 0, fmt.Errorf("insert attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("attempt id: %w", err)
	}
	return id, nil
}

// ListAttempts returns up to limit attempts, newest first, without image
// blobs (use GetAttempt for the full record).
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]*Attempt, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.QueryContext(ctx, `
		SELECT id, created_at, kind, difficulty, target_description,
		       user_prompt, score, feedback_json
		FROM attempts
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// GetAttempt returns one attempt with its image blobs.
func (s *Store) GetAttempt(ctx context.Context, id int64) (*Attempt, error) {
	row := s.QueryRowContext(ctx, `
		SELECT id, created_at, kind, difficulty, target_description,
		       user_prompt, score, feedback_json,
		       reference_image, reference_mime, user_image, user_mime
		FROM attempts WHERE id = ?`, id)

	var a Attempt
	var feedback string
	var refData, userData []byte
	var refMime, userMime string
	err := row.Scan(
		&a.ID, &a.CreatedAt, &a.Kind, &a.Difficulty, &a.TargetDescription,
		&a.UserPrompt, &a.Score, &feedback,
		&refData, &refMime, &userData, &userMime,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("attempt %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}

	if err := json.Unmarshal([]byte(feedback), &a.Feedback); err != nil {
		return nil, fmt.Errorf("unmarshal feedback: %w", err)
	}
	a.ReferenceImage = imaging.Image{Data: refData, MIMEType: refMime}
	a.UserImage = imaging.Image{Data: userData, MIMEType: userMime}
	return &a, nil
}

// CountAttempts returns the total number of stored attempts.
func (s *Store) CountAttempts(ctx context.Context) (int64, error) {
	var count int64
	if err := s.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts").Scan(&count); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

func scanAttempt(scan func(...any) error) (*Attempt, error) {
	var a Attempt
	var feedback string
	if err := scan(
		&a.ID, &a.CreatedAt, &a.Kind, &a.Difficulty, &a.TargetDescription,
		&a.UserPrompt, &a.Score, &feedback,
	); err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	if err := json.Unmarshal([]byte(feedback), &a.Feedback); err != nil {
		return nil, fmt.Errorf("unmarshal feedback: %w", err)
	}
	return &a, nil
}
