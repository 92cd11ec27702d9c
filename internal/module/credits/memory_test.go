package credits

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artboard/server/internal/module/credits/billing"
)

// memoryRepo mirrors the SQL repository's conditional writes under a mutex.
type memoryRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	entries  []*Entry
}

func newMemoryRepo(accounts ...*Account) *memoryRepo {
	r := &memoryRepo{accounts: make(map[uuid.UUID]*Account)}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *memoryRepo) GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) AdjustCredits(ctx context.Context, userID uuid.UUID, delta int, kind EntryKind, reference string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	a.Credits += delta
	r.entries = append(r.entries, newEntry(userID, kind, delta, reference))
	return a.Credits, nil
}

func (r *memoryRepo) ResetPeriod(ctx context.Context, userID uuid.UUID, allotment int, periodEnd time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok || (a.CreditsPeriodEnd != nil && !a.CreditsPeriodEnd.Before(periodEnd)) {
		return false, nil
	}
	end := periodEnd
	a.Plan = PlanSubscribed
	a.Credits = allotment
	a.CreditsPeriodEnd = &end
	r.entries = append(r.entries, newEntry(userID, EntryReset, allotment, ""))
	return true, nil
}

func (r *memoryRepo) Demote(ctx context.Context, userID uuid.UUID, elapsedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok || a.Plan != PlanSubscribed {
		return false, nil
	}
	if elapsedAt != nil && a.CreditsPeriodEnd != nil && a.CreditsPeriodEnd.After(*elapsedAt) {
		return false, nil
	}
	a.Plan = PlanFree
	a.Credits = 0
	a.CreditsPeriodEnd = nil
	r.entries = append(r.entries, newEntry(userID, EntryDemote, 0, ""))
	return true, nil
}

func (r *memoryRepo) SetProviderKey(ctx context.Context, userID uuid.UUID, ciphertext []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return ErrAccountNotFound
	}
	a.ProviderKeyCiphertext = ciphertext
	return nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Entry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var mine []*Entry
	for _, e := range r.entries {
		if e.UserID == userID {
			mine = append(mine, e)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	total := int64(len(mine))
	if offset >= len(mine) {
		return nil, total, nil
	}
	mine = mine[offset:]
	if limit < len(mine) {
		mine = mine[:limit]
	}
	return mine, total, nil
}

func (r *memoryRepo) kinds(userID uuid.UUID) []EntryKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EntryKind
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e.Kind)
		}
	}
	return out
}

// fakeBilling answers subscription queries from a map and counts calls.
type fakeBilling struct {
	mu    sync.Mutex
	subs  map[string][]billing.Subscription
	err   error
	calls int
}

func (f *fakeBilling) ListActiveSubscriptions(ctx context.Context, customerRef string) ([]billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.subs[customerRef], nil
}

func (f *fakeBilling) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
