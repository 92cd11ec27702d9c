package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Repository defines job persistence. Status changes are conditional writes
// that report whether they applied; a false result means another writer got
// there first and is not an error.
type Repository interface {
	Create(ctx context.Context, g *Generation) error
	Get(ctx context.Context, id uuid.UUID) (*Generation, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*Generation, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// MarkProcessing moves PENDING to PROCESSING with the provider handle.
	MarkProcessing(ctx context.Context, id uuid.UUID, handle string, debited bool) (bool, error)
	// MarkFailed moves from to FAILED.
	MarkFailed(ctx context.Context, id uuid.UUID, from Status, kind ErrorKind, message string) (bool, error)
	// Claim takes the finalization lease on a PROCESSING job whose lease is
	// free or expired at now.
	Claim(ctx context.Context, id, token uuid.UUID, now, until time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id, token uuid.UUID) error
	// Complete moves PROCESSING to COMPLETED with the durable image URL, only
	// while token still holds the claim.
	Complete(ctx context.Context, id, token uuid.UUID, imageURL string, outputs []string) (bool, error)
	// FailClaimed moves PROCESSING to FAILED, only while token still holds
	// the claim.
	FailClaimed(ctx context.Context, id, token uuid.UUID, kind ErrorKind, message string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new generation repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, g *Generation) error {
	if err := r.db.WithContext(ctx).Create(g).Error; err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Generation, error) {
	var g Generation
	if err := r.db.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return &g, nil
}

func (r *repository) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*Generation, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&Generation{}).
		Where("project_id = ?", projectID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count generations: %w", err)
	}

	var gens []*Generation
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&gens).Error; err != nil {
		return nil, 0, fmt.Errorf("list generations: %w", err)
	}
	return gens, total, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&Generation{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete generation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrGenerationNotFound
	}
	return nil
}

func (r *repository) MarkProcessing(ctx context.Context, id uuid.UUID, handle string, debited bool) (bool, error) {
	return r.transition(ctx, id, StatusPending, nil, map[string]any{
		"status":              StatusProcessing,
		"provider_job_handle": handle,
		"credit_debited":      debited,
	})
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, from Status, kind ErrorKind, message string) (bool, error) {
	return r.transition(ctx, id, from, nil, failedUpdates(kind, message))
}

func (r *repository) FailClaimed(ctx context.Context, id, token uuid.UUID, kind ErrorKind, message string) (bool, error) {
	return r.transition(ctx, id, StatusProcessing, &token, failedUpdates(kind, message))
}

func failedUpdates(kind ErrorKind, message string) map[string]any {
	return map[string]any{
		"status":           StatusFailed,
		"error_kind":       kind,
		"error_message":    message,
		"claim_token":      nil,
		"claim_expires_at": nil,
	}
}

func (r *repository) Complete(ctx context.Context, id, token uuid.UUID, imageURL string, outputs []string) (bool, error) {
	return r.transition(ctx, id, StatusProcessing, &token, map[string]any{
		"status":           StatusCompleted,
		"image_url":        imageURL,
		"provider_outputs": pq.StringArray(outputs),
		"claim_token":      nil,
		"claim_expires_at": nil,
	})
}

func (r *repository) Claim(ctx context.Context, id, token uuid.UUID, now, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Generation{}).
		Where("id = ? AND status = ? AND (claim_expires_at IS NULL OR claim_expires_at < ?)", id, StatusProcessing, now).
		Updates(map[string]any{
			"claim_token":      token,
			"claim_expires_at": until,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim generation: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReleaseClaim(ctx context.Context, id, token uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&Generation{}).
		Where("id = ? AND claim_token = ?", id, token).
		Updates(map[string]any{
			"claim_token":      nil,
			"claim_expires_at": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// transition applies updates only while the row is still in from and, when
// token is set, still claimed by it.
func (r *repository) transition(ctx context.Context, id uuid.UUID, from Status, token *uuid.UUID, updates map[string]any) (bool, error) {
	updates["updated_at"] = time.Now()
	q := r.db.WithContext(ctx).
		Model(&Generation{}).
		Where("id = ? AND status = ?", id, from)
	if token != nil {
		q = q.Where("claim_token = ?", *token)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update generation status to %v: %w", updates["status"], res.Error)
	}
	return res.RowsAffected == 1, nil
}
