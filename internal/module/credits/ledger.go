package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artboard/server/internal/module/credits/billing"
	"github.com/artboard/server/internal/utils/metrics"
)

// BillingClient is the pull interface to the subscription-billing system.
type BillingClient interface {
	ListActiveSubscriptions(ctx context.Context, customerRef string) ([]billing.Subscription, error)
}

// Config holds ledger configuration.
type Config struct {
	MonthlyAllotment int
}

// Ledger owns every mutation of a user's credit balance.
//
// Debit and Refund never re-check eligibility: they are single relative
// updates, so racing jobs may drive the balance below zero. A negative balance
// blocks further credit-funded generations until a refund or the next reset.
type Ledger struct {
	repo    Repository
	billing BillingClient
	sealer  *Sealer
	config  *Config
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedger creates a ledger. A nil sealer disables self-supplied credentials.
func NewLedger(repo Repository, billingClient BillingClient, sealer *Sealer, cfg *Config, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		repo:    repo,
		billing: billingClient,
		sealer:  sealer,
		config:  cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Account returns the stored account without reconciling.
func (l *Ledger) Account(ctx context.Context, userID uuid.UUID) (*Account, error) {
	return l.repo.GetAccount(ctx, userID)
}

// CheckSpendEligibility reports whether the user can spend a credit.
//
// Subscribed accounts whose period has elapsed (or was never set) are lazily
// reconciled against the billing system first. Within a running period the
// stored balance is trusted and no billing call is made.
func (l *Ledger) CheckSpendEligibility(ctx context.Context, userID uuid.UUID) (*Eligibility, error) {
	account, err := l.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if account.Plan == PlanSubscribed && !account.PeriodActive(l.now()) {
		account, err = l.reconcile(ctx, account, true)
		if err != nil {
			return nil, err
		}
	}

	return &Eligibility{
		Eligible:              account.Plan == PlanSubscribed && account.Credits > 0,
		Balance:               account.Credits,
		Plan:                  account.Plan,
		HasProviderCredential: account.HasProviderCredential(),
	}, nil
}

// Sync reconciles with the billing system regardless of the stored period.
// The reset write stays conditional on a later period end, so repeated syncs
// within one period do not refill the balance.
func (l *Ledger) Sync(ctx context.Context, userID uuid.UUID) (*Account, error) {
	account, err := l.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.reconcile(ctx, account, false)
}

// reconcile applies the billing system's view and returns the stored account
// after the write, whoever won it.
func (l *Ledger) reconcile(ctx context.Context, account *Account, elapsedOnly bool) (*Account, error) {
	log := l.logger.With(zap.String("user_id", account.ID.String()))
	now := l.now()

	var demoteGuard *time.Time
	if elapsedOnly {
		demoteGuard = &now
	}

	if account.BillingCustomerID == nil || *account.BillingCustomerID == "" {
		if _, err := l.repo.Demote(ctx, account.ID, demoteGuard); err != nil {
			return nil, err
		}
		l.recordReconciliation("no_customer")
		return l.repo.GetAccount(ctx, account.ID)
	}

	subs, err := l.billing.ListActiveSubscriptions(ctx, *account.BillingCustomerID)
	if err != nil {
		l.recordReconciliation("error")
		log.Warn("billing query failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrBillingUnavailable, err)
	}

	sub, ok := billing.Latest(subs)
	if !ok {
		applied, err := l.repo.Demote(ctx, account.ID, demoteGuard)
		if err != nil {
			return nil, err
		}
		if applied {
			l.recordLedgerOp(string(EntryDemote))
			log.Info("subscription ended, account demoted")
		}
		l.recordReconciliation("demoted")
		return l.repo.GetAccount(ctx, account.ID)
	}

	applied, err := l.repo.ResetPeriod(ctx, account.ID, l.config.MonthlyAllotment, sub.CurrentPeriodEnd)
	if err != nil {
		return nil, err
	}
	if applied {
		l.recordLedgerOp(string(EntryReset))
		log.Info("credit period reset",
			zap.String("subscription_id", sub.ID),
			zap.Time("period_end", sub.CurrentPeriodEnd),
			zap.Int("credits", l.config.MonthlyAllotment),
		)
	}
	l.recordReconciliation("reset")
	return l.repo.GetAccount(ctx, account.ID)
}

// Debit removes one credit for reference (a job id).
func (l *Ledger) Debit(ctx context.Context, userID uuid.UUID, reference string) error {
	balance, err := l.repo.AdjustCredits(ctx, userID, -1, EntryDebit, reference)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	l.recordLedgerOp(string(EntryDebit))
	l.logger.Debug("credit debited",
		zap.String("user_id", userID.String()),
		zap.String("reference", reference),
		zap.Int("balance", balance),
	)
	return nil
}

// Refund returns one credit for reference.
func (l *Ledger) Refund(ctx context.Context, userID uuid.UUID, reference string) error {
	balance, err := l.repo.AdjustCredits(ctx, userID, 1, EntryRefund, reference)
	if err != nil {
		return fmt.Errorf("refund: %w", err)
	}
	l.recordLedgerOp(string(EntryRefund))
	l.logger.Debug("credit refunded",
		zap.String("user_id", userID.String()),
		zap.String("reference", reference),
		zap.Int("balance", balance),
	)
	return nil
}

// Grant adds n credits, e.g. a purchased top-up.
func (l *Ledger) Grant(ctx context.Context, userID uuid.UUID, n int, reason string) (int, error) {
	if n <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := l.repo.AdjustCredits(ctx, userID, n, EntryGrant, reason)
	if err != nil {
		return 0, fmt.Errorf("grant: %w", err)
	}
	l.recordLedgerOp(string(EntryGrant))
	return balance, nil
}

// Entries lists the audit trail, newest first.
func (l *Ledger) Entries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Entry, int64, error) {
	return l.repo.ListEntries(ctx, userID, limit, offset)
}

// SetProviderCredential stores the user's own provider key, sealed.
func (l *Ledger) SetProviderCredential(ctx context.Context, userID uuid.UUID, key string) error {
	if l.sealer == nil {
		return ErrCredentialsDisabled
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidCredential
	}
	sealed, err := l.sealer.Seal(userID, key)
	if err != nil {
		return err
	}
	return l.repo.SetProviderKey(ctx, userID, sealed)
}

// ClearProviderCredential removes the user's own provider key.
func (l *Ledger) ClearProviderCredential(ctx context.Context, userID uuid.UUID) error {
	return l.repo.SetProviderKey(ctx, userID, nil)
}

// ProviderCredential returns the user's own provider key, or "" if none.
func (l *Ledger) ProviderCredential(ctx context.Context, userID uuid.UUID) (string, error) {
	account, err := l.repo.GetAccount(ctx, userID)
	if err != nil {
		return "", err
	}
	if !account.HasProviderCredential() {
		return "", nil
	}
	if l.sealer == nil {
		return "", ErrCredentialsDisabled
	}
	key, err := l.sealer.Open(userID, account.ProviderKeyCiphertext)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			l.logger.Error("stored provider credential does not open",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
		return "", err
	}
	return key, nil
}

func (l *Ledger) recordLedgerOp(op string) {
	if l.metrics != nil {
		l.metrics.RecordLedgerOp(op)
	}
}

func (l *Ledger) recordReconciliation(result string) {
	if l.metrics != nil {
		l.metrics.RecordReconciliation(result)
	}
}
