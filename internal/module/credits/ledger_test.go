package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artboard/server/internal/module/credits/billing"
	"github.com/artboard/server/internal/utils/metrics"
)

const allotment = 100

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestLedger(repo Repository, b BillingClient, sealer *Sealer) (*Ledger, *metrics.Metrics) {
	m := metrics.New("test", prometheus.NewRegistry())
	l := NewLedger(repo, b, sealer, &Config{MonthlyAllotment: allotment}, m, nil)
	l.now = func() time.Time { return testNow }
	return l, m
}

func subscribedAccount(credits int, periodEnd time.Time, customer string) *Account {
	end := periodEnd
	a := &Account{
		ID:               uuid.New(),
		Email:            "artist@example.com",
		Plan:             PlanSubscribed,
		Credits:          credits,
		CreditsPeriodEnd: &end,
	}
	if customer != "" {
		a.BillingCustomerID = &customer
	}
	return a
}

func TestCheckSpendEligibility_FreeUser(t *testing.T) {
	account := &Account{ID: uuid.New(), Plan: PlanFree, Credits: 50}
	b := &fakeBilling{}
	l, _ := newTestLedger(newMemoryRepo(account), b, nil)

	elig, err := l.CheckSpendEligibility(context.Background(), account.ID)
	require.NoError(t, err)

	assert.False(t, elig.Eligible, "free plan never spends credits")
	assert.Equal(t, PlanFree, elig.Plan)
	assert.False(t, elig.HasProviderCredential)
	assert.Zero(t, b.callCount())
}

func TestCheckSpendEligibility_ActivePeriodTrusted(t *testing.T) {
	account := subscribedAccount(5, testNow.Add(10*24*time.Hour), "cus_1")
	b := &fakeBilling{}
	l, _ := newTestLedger(newMemoryRepo(account), b, nil)

	for i := 0; i < 2; i++ {
		elig, err := l.CheckSpendEligibility(context.Background(), account.ID)
		require.NoError(t, err)
		assert.True(t, elig.Eligible)
		assert.Equal(t, 5, elig.Balance)
	}
	assert.Zero(t, b.callCount())
}

func TestCheckSpendEligibility_ZeroBalance(t *testing.T) {
	account := subscribedAccount(0, testNow.Add(time.Hour), "cus_1")
	l, _ := newTestLedger(newMemoryRepo(account), &fakeBilling{}, nil)

	elig, err := l.CheckSpendEligibility(context.Background(), account.ID)
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
}

func TestCheckSpendEligibility_ElapsedPeriodRenewed(t *testing.T) {
	renewal := testNow.Add(30 * 24 * time.Hour)
	account := subscribedAccount(-3, testNow.Add(-time.Hour), "cus_1")
	repo := newMemoryRepo(account)
	b := &fakeBilling{subs: map[string][]billing.Subscription{
		"cus_1": {{ID: "sub_1", CurrentPeriodEnd: renewal}},
	}}
	l, m := newTestLedger(repo, b, nil)

	elig, err := l.CheckSpendEligibility(context.Background(), account.ID)
	require.NoError(t, err)

	assert.True(t, elig.Eligible)
	assert.Equal(t, allotment, elig.Balance, "stale balance is overwritten")
	assert.Equal(t, 1, b.callCount())

	stored, err := repo.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CreditsPeriodEnd)
	assert.True(t, stored.CreditsPeriodEnd.Equal(renewal))
	assert.Equal(t, []EntryKind{EntryReset}, repo.kinds(account.ID))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReconciliationsTotal.WithLabelValues("reset")))

	// The new period is running: the second check is served from the store.
	elig, err = l.CheckSpendEligibility(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, allotment, elig.Balance)
	assert.Equal(t, 1, b.callCount())
}

func TestCheckSpendEligibility_ElapsedPeriodCanceled(t *testing.T) {
	account := subscribedAccount(12, testNow.Add(-time.Minute), "cus_1")
	repo := newMemoryRepo(account)
	l, _ := newTestLedger(repo, &fakeBilling{}, nil)

	elig, err := l.CheckSpendEligibility(context.Background(), account.ID)
	require.NoError(t, err)

	assert.False(t, elig.Eligible)
	assert.Equal(t, PlanFree, elig.Plan)
	assert.Zero(t, elig.Balance)

	stored, _ := repo.GetAccount(context.Background(), account.ID)
	assert.Nil(t, stored.CreditsPeriodEnd)
	assert.Equal(t, []EntryKind{EntryDemote}, repo.kinds(account.ID))
}

func TestCheckSpendEligibility_NoCustomerDemotes(t *testing.T) {
	account := subscribedAccount(7, testNow.Add(-time.Minute), "")
	b := &fakeBilling{}
	l, _ := newTestLedger(newMemoryRepo(account), b, nil)

	elig, err := l.CheckSpendEligibility(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, PlanFree, elig.Plan)
	assert.Zero(t, b.callCount())
}

func TestCheckSpendEligibility_BillingDown(t *testing.T) {
	account := subscribedAccount(7, testNow.Add(-time.Minute), "cus_1")
	repo := newMemoryRepo(account)
	l, _ := newTestLedger(repo, &fakeBilling{err: errors.New("connection reset")}, nil)

	_, err := l.CheckSpendEligibility(context.Background(), account.ID)
	assert.ErrorIs(t, err, ErrBillingUnavailable)

	stored, _ := repo.GetAccount(context.Background(), account.ID)
	assert.Equal(t, 7, stored.Credits, "a failed query never mutates the account")
	assert.Equal(t, PlanSubscribed, stored.Plan)
}

func TestCheckSpendEligibility_ConcurrentReconcileConverges(t *testing.T) {
	renewal := testNow.Add(30 * 24 * time.Hour)
	account := subscribedAccount(0, testNow.Add(-time.Hour), "cus_1")
	repo := newMemoryRepo(account)
	b := &fakeBilling{subs: map[string][]billing.Subscription{
		"cus_1": {{ID: "sub_1", CurrentPeriodEnd: renewal}},
	}}
	l, _ := newTestLedger(repo, b, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			elig, err := l.CheckSpendEligibility(context.Background(), account.ID)
			assert.NoError(t, err)
			assert.Equal(t, allotment, elig.Balance)
		}()
	}
	wg.Wait()

	assert.Equal(t, []EntryKind{EntryReset}, repo.kinds(account.ID), "only one conditional reset wins")
}

func TestDebitRefund(t *testing.T) {
	account := subscribedAccount(5, testNow.Add(time.Hour), "cus_1")
	repo := newMemoryRepo(account)
	l, m := newTestLedger(repo, &fakeBilling{}, nil)
	ctx := context.Background()

	require.NoError(t, l.Debit(ctx, account.ID, "job-1"))
	stored, _ := repo.GetAccount(ctx, account.ID)
	assert.Equal(t, 4, stored.Credits)

	require.NoError(t, l.Refund(ctx, account.ID, "job-1"))
	stored, _ = repo.GetAccount(ctx, account.ID)
	assert.Equal(t, 5, stored.Credits)

	entries, total, err := l.Entries(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, e := range entries {
		require.NotNil(t, e.Reference)
		assert.Equal(t, "job-1", *e.Reference)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LedgerOpsTotal.WithLabelValues("debit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LedgerOpsTotal.WithLabelValues("refund")))
}

func TestDebit_ConcurrentMayGoNegative(t *testing.T) {
	account := subscribedAccount(1, testNow.Add(time.Hour), "cus_1")
	repo := newMemoryRepo(account)
	l, _ := newTestLedger(repo, &fakeBilling{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Debit(context.Background(), account.ID, uuid.NewString()))
		}()
	}
	wg.Wait()

	stored, _ := repo.GetAccount(context.Background(), account.ID)
	assert.Equal(t, -2, stored.Credits)

	elig, err := l.CheckSpendEligibility(context.Background(), account.ID)
	require.NoError(t, err)
	assert.False(t, elig.Eligible, "a negative balance blocks further spending")
}

func TestDebit_UnknownAccount(t *testing.T) {
	l, _ := newTestLedger(newMemoryRepo(), &fakeBilling{}, nil)
	err := l.Debit(context.Background(), uuid.New(), "job")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGrant(t *testing.T) {
	account := &Account{ID: uuid.New(), Plan: PlanFree}
	l, _ := newTestLedger(newMemoryRepo(account), &fakeBilling{}, nil)

	_, err := l.Grant(context.Background(), account.ID, 0, "promo")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	balance, err := l.Grant(context.Background(), account.ID, 25, "top-up")
	require.NoError(t, err)
	assert.Equal(t, 25, balance)
}

func TestSync(t *testing.T) {
	renewal := testNow.Add(30 * 24 * time.Hour)
	customer := "cus_new"
	account := &Account{ID: uuid.New(), Plan: PlanFree, BillingCustomerID: &customer}
	repo := newMemoryRepo(account)
	b := &fakeBilling{subs: map[string][]billing.Subscription{
		customer: {{ID: "sub_9", CurrentPeriodEnd: renewal}},
	}}
	l, _ := newTestLedger(repo, b, nil)
	ctx := context.Background()

	synced, err := l.Sync(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, PlanSubscribed, synced.Plan)
	assert.Equal(t, allotment, synced.Credits)

	require.NoError(t, l.Debit(ctx, account.ID, "job-1"))

	// Same billing period: a second sync must not refill the balance.
	synced, err = l.Sync(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, allotment-1, synced.Credits)
	assert.Equal(t, 2, b.callCount())
}

func TestSync_CanceledDemotesImmediately(t *testing.T) {
	account := subscribedAccount(40, testNow.Add(20*24*time.Hour), "cus_1")
	l, _ := newTestLedger(newMemoryRepo(account), &fakeBilling{}, nil)

	synced, err := l.Sync(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, PlanFree, synced.Plan)
	assert.Zero(t, synced.Credits)
}

func TestProviderCredential(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	account := &Account{ID: uuid.New(), Plan: PlanFree}
	repo := newMemoryRepo(account)
	l, _ := newTestLedger(repo, &fakeBilling{}, sealer)
	ctx := context.Background()

	got, err := l.ProviderCredential(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, l.SetProviderCredential(ctx, account.ID, "   "), ErrInvalidCredential)
	require.NoError(t, l.SetProviderCredential(ctx, account.ID, " r8_secret_token "))

	stored, _ := repo.GetAccount(ctx, account.ID)
	assert.NotContains(t, string(stored.ProviderKeyCiphertext), "r8_secret_token")

	got, err = l.ProviderCredential(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "r8_secret_token", got)

	elig, err := l.CheckSpendEligibility(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, elig.HasProviderCredential)

	require.NoError(t, l.ClearProviderCredential(ctx, account.ID))
	got, err = l.ProviderCredential(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProviderCredential_Disabled(t *testing.T) {
	account := &Account{ID: uuid.New(), Plan: PlanFree}
	l, _ := newTestLedger(newMemoryRepo(account), &fakeBilling{}, nil)

	err := l.SetProviderCredential(context.Background(), account.ID, "r8_secret")
	assert.ErrorIs(t, err, ErrCredentialsDisabled)
}

func TestSealer_BoundToUser(t *testing.T) {
	sealer, err := NewSealer(make([]byte, 32))
	require.NoError(t, err)

	owner, other := uuid.New(), uuid.New()
	sealed, err := sealer.Seal(owner, "fal_key")
	require.NoError(t, err)

	_, err = sealer.Open(other, sealed)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = sealer.Open(owner, sealed[:4])
	assert.ErrorIs(t, err, ErrInvalidCredential)

	plain, err := sealer.Open(owner, sealed)
	require.NoError(t, err)
	assert.Equal(t, "fal_key", plain)

	_, err = NewSealer([]byte("short"))
	assert.Error(t, err)
}
