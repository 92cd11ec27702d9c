package generation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/artboard/server/internal/module/credits"
	"github.com/artboard/server/internal/module/generation/provider"
	"github.com/artboard/server/internal/module/project"
)

// memoryRepo mirrors the SQL repository's conditional writes under a mutex.
type memoryRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Generation

	// Hooks for failure paths.
	loseMarkProcessing bool
	completeErr        error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{jobs: make(map[uuid.UUID]*Generation)}
}

func (r *memoryRepo) Create(ctx context.Context, g *Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	r.jobs[g.ID] = &cp
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (*Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.jobs[id]
	if !ok {
		return nil, ErrGenerationNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memoryRepo) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*Generation, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*Generation
	for _, g := range r.jobs {
		if g.ProjectID == projectID {
			cp := *g
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return []*Generation{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrGenerationNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *memoryRepo) MarkProcessing(ctx context.Context, id uuid.UUID, handle string, debited bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loseMarkProcessing {
		return false, nil
	}
	g, ok := r.jobs[id]
	if !ok || g.Status != StatusPending {
		return false, nil
	}
	g.Status = StatusProcessing
	g.ProviderJobHandle = &handle
	g.CreditDebited = debited
	return true, nil
}

func (r *memoryRepo) MarkFailed(ctx context.Context, id uuid.UUID, from Status, kind ErrorKind, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.jobs[id]
	if !ok || g.Status != from {
		return false, nil
	}
	r.failLocked(g, kind, message)
	return true, nil
}

func (r *memoryRepo) FailClaimed(ctx context.Context, id, token uuid.UUID, kind ErrorKind, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.jobs[id]
	if !ok || g.Status != StatusProcessing || !claimedBy(g, token) {
		return false, nil
	}
	r.failLocked(g, kind, message)
	return true, nil
}

func claimedBy(g *Generation, token uuid.UUID) bool {
	return g.ClaimToken != nil && *g.ClaimToken == token
}

func (r *memoryRepo) failLocked(g *Generation, kind ErrorKind, message string) {
	g.Status = StatusFailed
	g.ErrorKind = &kind
	g.ErrorMessage = &message
	g.ClaimToken, g.ClaimExpiresAt = nil, nil
}

func (r *memoryRepo) Claim(ctx context.Context, id, token uuid.UUID, now, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.jobs[id]
	if !ok || g.Status != StatusProcessing {
		return false, nil
	}
	if g.ClaimExpiresAt != nil && !g.ClaimExpiresAt.Before(now) {
		return false, nil
	}
	g.ClaimToken = &token
	g.ClaimExpiresAt = &until
	return true, nil
}

func (r *memoryRepo) ReleaseClaim(ctx context.Context, id, token uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.jobs[id]
	if ok && claimedBy(g, token) {
		g.ClaimToken, g.ClaimExpiresAt = nil, nil
	}
	return nil
}

func (r *memoryRepo) Complete(ctx context.Context, id, token uuid.UUID, imageURL string, outputs []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completeErr != nil {
		err := r.completeErr
		r.completeErr = nil
		return false, err
	}
	g, ok := r.jobs[id]
	if !ok || g.Status != StatusProcessing || !claimedBy(g, token) {
		return false, nil
	}
	g.Status = StatusCompleted
	g.ImageURL = &imageURL
	g.ProviderOutputs = pq.StringArray(outputs)
	g.ClaimToken, g.ClaimExpiresAt = nil, nil
	return true, nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// fakeAdapter replays scripted poll results; the last one repeats.
type fakeAdapter struct {
	mu          sync.Mutex
	name        string
	startErr    error
	results     []*provider.Result
	pollErr     error
	starts      int
	polls       int
	credentials []string
}

func newFakeAdapter(results ...*provider.Result) *fakeAdapter {
	return &fakeAdapter{name: provider.Replicate, results: results}
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Start(ctx context.Context, modelID string, payload map[string]any, credential string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts++
	a.credentials = append(a.credentials, credential)
	if a.startErr != nil {
		return "", a.startErr
	}
	return fmt.Sprintf("pred-%d", a.starts), nil
}

func (a *fakeAdapter) Poll(ctx context.Context, handle, credential string) (*provider.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.polls++
	a.credentials = append(a.credentials, credential)
	if a.pollErr != nil {
		return nil, a.pollErr
	}
	if len(a.results) == 0 {
		return &provider.Result{Status: provider.StatusProcessing}, nil
	}
	res := a.results[0]
	if len(a.results) > 1 {
		a.results = a.results[1:]
	}
	cp := *res
	return &cp, nil
}

func (a *fakeAdapter) script(results ...*provider.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = results
	a.pollErr = nil
}

func (a *fakeAdapter) failPolls(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pollErr = err
}

func (a *fakeAdapter) counts() (starts, polls int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts, a.polls
}

func (a *fakeAdapter) lastCredential() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.credentials) == 0 {
		return ""
	}
	return a.credentials[len(a.credentials)-1]
}

func succeeded(outputs ...string) *provider.Result {
	return &provider.Result{Status: provider.StatusSucceeded, Outputs: outputs}
}

func processing() *provider.Result {
	return &provider.Result{Status: provider.StatusProcessing}
}

// fakeLedger tracks one user's balance.
type fakeLedger struct {
	mu        sync.Mutex
	eligible  bool
	key       string
	balance   int
	debits    int
	refunds   int
	eligErr   error
	debitErr  error
	refundErr error
}

func (l *fakeLedger) CheckSpendEligibility(ctx context.Context, userID uuid.UUID) (*credits.Eligibility, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.eligErr != nil {
		return nil, l.eligErr
	}
	plan := credits.PlanFree
	if l.eligible {
		plan = credits.PlanSubscribed
	}
	return &credits.Eligibility{
		Eligible:              l.eligible,
		Balance:               l.balance,
		Plan:                  plan,
		HasProviderCredential: l.key != "",
	}, nil
}

func (l *fakeLedger) Debit(ctx context.Context, userID uuid.UUID, reference string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debitErr != nil {
		return l.debitErr
	}
	l.balance--
	l.debits++
	return nil
}

func (l *fakeLedger) Refund(ctx context.Context, userID uuid.UUID, reference string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refundErr != nil {
		return l.refundErr
	}
	l.balance++
	l.refunds++
	return nil
}

func (l *fakeLedger) ProviderCredential(ctx context.Context, userID uuid.UUID) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key, nil
}

func (l *fakeLedger) snapshot() (balance, debits, refunds int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, l.debits, l.refunds
}

// fakeMaterializer hands out durable URLs. errs are consumed one per call.
type fakeMaterializer struct {
	mu        sync.Mutex
	calls     int
	sources   []string
	deadlines []time.Time
	errs      []error
	delay     time.Duration

	// When set, the first call signals started and waits for release.
	started chan struct{}
	release chan struct{}
}

func (m *fakeMaterializer) Materialize(ctx context.Context, sourceURL string) (string, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.sources = append(m.sources, sourceURL)
	if deadline, ok := ctx.Deadline(); ok {
		m.deadlines = append(m.deadlines, deadline)
	}
	var err error
	if len(m.errs) > 0 {
		err = m.errs[0]
		m.errs = m.errs[1:]
	}
	started, release := m.started, m.release
	m.started = nil
	m.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://cdn.example.com/generations/%d.png", n), nil
}

func (m *fakeMaterializer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeOwnership maps projects to owners.
type fakeOwnership struct {
	owners map[uuid.UUID]uuid.UUID
}

func (o *fakeOwnership) Verify(ctx context.Context, userID, projectID uuid.UUID) error {
	owner, ok := o.owners[projectID]
	if !ok {
		return project.ErrProjectNotFound
	}
	if owner != userID {
		return fmt.Errorf("%w: %w", project.ErrProjectNotFound, project.ErrNotOwner)
	}
	return nil
}

var errLedgerDown = errors.New("ledger write failed")
