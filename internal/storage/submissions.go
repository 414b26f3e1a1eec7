package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

const submissionColumns = `id, company_name, contact_name, email, phone, project_name,
		requirement, transcript, recommendations, status, created_at, updated_at`

// SubmissionStore persists project submissions.
type SubmissionStore interface {
	Create(ctx context.Context, sub *domain.ProjectSubmission) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ProjectSubmission, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error
	List(ctx context.Context, limit, offset int) ([]domain.ProjectSubmission, error)
}

// SubmissionRepository handles project submission rows.
type SubmissionRepository struct {
	db DB
}

var _ SubmissionStore = (*SubmissionRepository)(nil)

// NewSubmissionRepository creates a new submission repository.
func NewSubmissionRepository(db DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission with status new.
func (r *SubmissionRepository) Create(ctx context.Context, sub *domain.ProjectSubmission) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.Status == "" {
		sub.Status = domain.SubmissionNew
	}
	sub.CreatedAt = now()
	sub.UpdatedAt = sub.CreatedAt

	requirement, err := json.Marshal(sub.Requirement)
	if err != nil {
		return fmt.Errorf("encode requirement: %w", err)
	}
	transcript, err := encodeJSON(sub.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	recommendations, err := encodeJSON(sub.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}

	query := `
		INSERT INTO project_submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		sub.ID, sub.CompanyName, sub.ContactName, sub.Email, sub.Phone, sub.ProjectName,
		string(requirement), transcript, recommendations, string(sub.Status),
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetByID retrieves a submission by ID.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProjectSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM project_submissions WHERE id = $1`
	sub, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// UpdateStatus changes the only mutable field of a submission.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
	if !status.Valid() {
		return domain.ValidationError(fmt.Sprintf("unknown submission status %q", status), nil)
	}

	query := `UPDATE project_submissions SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, string(status), now(), id)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns submissions newest first.
func (r *SubmissionRepository) List(ctx context.Context, limit, offset int) ([]domain.ProjectSubmission, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + submissionColumns + ` FROM project_submissions ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []domain.ProjectSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func scanSubmission(s scanner) (*domain.ProjectSubmission, error) {
	var (
		sub                                      domain.ProjectSubmission
		requirement, transcript, recommendations string
		status                                   string
	)
	err := s.Scan(
		&sub.ID, &sub.CompanyName, &sub.ContactName, &sub.Email, &sub.Phone, &sub.ProjectName,
		&requirement, &transcript, &recommendations, &status,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = domain.SubmissionStatus(status)

	if err := json.Unmarshal([]byte(requirement), &sub.Requirement); err != nil {
		return nil, fmt.Errorf("decode requirement: %w", err)
	}
	if err := json.Unmarshal([]byte(transcript), &sub.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(recommendations), &sub.Recommendations); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	return &sub, nil
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}
