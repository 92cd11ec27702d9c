// Package project resolves project ownership for the generation endpoints.
package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNotOwner        = errors.New("project belongs to another user")
)

// Project is a canvas the user generates into.
type Project struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (Project) TableName() string {
	return "projects"
}

// Repository loads projects.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Project, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a gorm backed project repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	var p Project
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// Ownership verifies that a user owns a project.
type Ownership struct {
	repo Repository
}

// NewOwnership creates an ownership checker.
func NewOwnership(repo Repository) *Ownership {
	return &Ownership{repo: repo}
}

// Verify returns nil when userID owns projectID. A project owned by someone
// else is reported as not found to callers that do not need the distinction.
func (o *Ownership) Verify(ctx context.Context, userID, projectID uuid.UUID) error {
	p, err := o.repo.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.UserID != userID {
		return fmt.Errorf("%w: %w", ErrProjectNotFound, ErrNotOwner)
	}
	return nil
}
