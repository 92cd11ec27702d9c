package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines credit account persistence. Every balance mutation is a
// single conditional or relative UPDATE plus an audit row, in one transaction.
type Repository interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)

	// AdjustCredits adds delta to the balance and returns the new balance.
	AdjustCredits(ctx context.Context, userID uuid.UUID, delta int, kind EntryKind, reference string) (int, error)

	// ResetPeriod sets plan=subscribed, credits=allotment and the new period
	// end, but only while the stored period end is absent or earlier than
	// periodEnd. Reports whether the write happened.
	ResetPeriod(ctx context.Context, userID uuid.UUID, allotment int, periodEnd time.Time) (bool, error)

	// Demote sets plan=free, credits=0 and clears the period end. A non-nil
	// elapsedAt restricts the write to rows whose period has ended by then.
	Demote(ctx context.Context, userID uuid.UUID, elapsedAt *time.Time) (bool, error)

	SetProviderKey(ctx context.Context, userID uuid.UUID, ciphertext []byte) error
	ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Entry, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new credits repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	var account Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

func (r *repository) AdjustCredits(ctx context.Context, userID uuid.UUID, delta int, kind EntryKind, reference string) (int, error) {
	var balance int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits + ?", delta),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		if err := tx.Model(&Account{}).
			Select("credits").
			Where("id = ?", userID).
			Scan(&balance).Error; err != nil {
			return err
		}
		return tx.Create(newEntry(userID, kind, delta, reference)).Error
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("adjust credits: %w", err)
	}
	return balance, nil
}

func (r *repository) ResetPeriod(ctx context.Context, userID uuid.UUID, allotment int, periodEnd time.Time) (bool, error) {
	var applied bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).
			Where("id = ? AND (credits_period_end IS NULL OR credits_period_end < ?)", userID, periodEnd).
			Updates(map[string]any{
				"plan":               PlanSubscribed,
				"credits":            allotment,
				"credits_period_end": periodEnd,
				"updated_at":         time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Create(newEntry(userID, EntryReset, allotment, "")).Error
	})
	if err != nil {
		return false, fmt.Errorf("reset credit period: %w", err)
	}
	return applied, nil
}

func (r *repository) Demote(ctx context.Context, userID uuid.UUID, elapsedAt *time.Time) (bool, error) {
	var applied bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&Account{}).Where("id = ? AND plan = ?", userID, PlanSubscribed)
		if elapsedAt != nil {
			q = q.Where("(credits_period_end IS NULL OR credits_period_end <= ?)", *elapsedAt)
		}
		res := q.Updates(map[string]any{
			"plan":               PlanFree,
			"credits":            0,
			"credits_period_end": nil,
			"updated_at":         time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Create(newEntry(userID, EntryDemote, 0, "")).Error
	})
	if err != nil {
		return false, fmt.Errorf("demote account: %w", err)
	}
	return applied, nil
}

func (r *repository) SetProviderKey(ctx context.Context, userID uuid.UUID, ciphertext []byte) error {
	res := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"provider_key_ciphertext": ciphertext,
			"updated_at":              time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("set provider key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *repository) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Entry, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&Entry{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count credit entries: %w", err)
	}

	var entries []*Entry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("list credit entries: %w", err)
	}
	return entries, total, nil
}

func newEntry(userID uuid.UUID, kind EntryKind, amount int, reference string) *Entry {
	e := &Entry{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: time.Now(),
	}
	if reference != "" {
		e.Reference = &reference
	}
	return e
}
