package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/artboard/server/internal/module/credits"
	"github.com/artboard/server/internal/module/generation/descriptor"
	"github.com/artboard/server/internal/module/generation/provider"
	"github.com/artboard/server/internal/utils/metrics"
)

// Ledger is the part of the credit ledger the orchestrator spends through.
type Ledger interface {
	CheckSpendEligibility(ctx context.Context, userID uuid.UUID) (*credits.Eligibility, error)
	Debit(ctx context.Context, userID uuid.UUID, reference string) error
	Refund(ctx context.Context, userID uuid.UUID, reference string) error
	ProviderCredential(ctx context.Context, userID uuid.UUID) (string, error)
}

// Materializer copies an ephemeral output URL into durable storage.
type Materializer interface {
	Materialize(ctx context.Context, sourceURL string) (string, error)
}

// OwnershipChecker verifies that a user owns a project.
type OwnershipChecker interface {
	Verify(ctx context.Context, userID, projectID uuid.UUID) error
}

// Config holds orchestrator configuration.
type Config struct {
	// DefaultProvider receives new jobs. Existing jobs keep polling the
	// provider they started on.
	DefaultProvider     string
	PollInterval        time.Duration
	AwaitMaxWait        time.Duration
	FinalizeLease       time.Duration
	// MaterializeTimeout bounds each attempt. FinalizeLease must outlast
	// all attempts, so an expired claim means the finalizer is gone.
	MaterializeTimeout  time.Duration
	MaterializeAttempts int
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultProvider:     provider.Replicate,
		PollInterval:        2 * time.Second,
		AwaitMaxWait:        60 * time.Second,
		FinalizeLease:       3 * time.Minute,
		MaterializeTimeout:  60 * time.Second,
		MaterializeAttempts: 2,
	}
}

// CreateInput is a validated create request.
type CreateInput struct {
	Prompt            string
	AspectRatio       descriptor.AspectRatio
	ResolutionTier    descriptor.ResolutionTier
	ReferenceImageURL string
	OutputKind        OutputKind
	OutputFormat      string
	// Wait blocks until the job is terminal or AwaitMaxWait elapses.
	Wait bool
}

// Service orchestrates generation jobs: create, start, poll and settle.
//
// Only one writer moves a job from PROCESSING to a terminal status: every
// status change is a conditional write, pollers in one process share a single
// finalization through singleflight, and across processes a claim lease on the
// row elects the one poller allowed to materialize.
type Service struct {
	repo         Repository
	adapters     map[string]provider.Adapter
	registry     *descriptor.Registry
	ledger       Ledger
	materializer Materializer
	ownership    OwnershipChecker
	config       *Config
	metrics      *metrics.Metrics
	logger       *zap.Logger

	finalize singleflight.Group
	now      func() time.Time
}

// ServiceDeps bundles the orchestrator's collaborators.
type ServiceDeps struct {
	Repo         Repository
	Adapters     map[string]provider.Adapter
	Registry     *descriptor.Registry
	Ledger       Ledger
	Materializer Materializer
	Ownership    OwnershipChecker
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// NewService creates the orchestrator.
func NewService(deps *ServiceDeps, cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if _, ok := deps.Adapters[cfg.DefaultProvider]; !ok {
		return nil, fmt.Errorf("no adapter for default provider %q", cfg.DefaultProvider)
	}
	if _, err := deps.Registry.Get(cfg.DefaultProvider); err != nil {
		return nil, err
	}
	if cfg.MaterializeAttempts < 1 {
		cfg.MaterializeAttempts = 1
	}
	if worst := time.Duration(cfg.MaterializeAttempts) * cfg.MaterializeTimeout; cfg.FinalizeLease <= worst {
		return nil, fmt.Errorf("finalize lease %s must exceed %d materialize attempts of %s", cfg.FinalizeLease, cfg.MaterializeAttempts, cfg.MaterializeTimeout)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:         deps.Repo,
		adapters:     deps.Adapters,
		registry:     deps.Registry,
		ledger:       deps.Ledger,
		materializer: deps.Materializer,
		ownership:    deps.Ownership,
		config:       cfg,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Create validates, funds, persists and starts a generation.
//
// Ineligible callers get ErrInsufficientCredits before anything is persisted
// or sent to a provider. A start failure leaves a FAILED row and returns the
// provider error. A credit is debited only after the provider accepted the
// job.
func (s *Service) Create(ctx context.Context, userID, projectID uuid.UUID, in *CreateInput) (*Generation, error) {
	width, height, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	if err := s.ownership.Verify(ctx, userID, projectID); err != nil {
		return nil, err
	}

	funding, credential, err := s.fund(ctx, userID)
	if err != nil {
		return nil, err
	}

	providerName := s.config.DefaultProvider
	modelID, payload, err := s.registry.Build(providerName, &descriptor.Request{
		Prompt:            in.Prompt,
		ReferenceImageURL: in.ReferenceImageURL,
		Width:             width,
		Height:            height,
		OutputFormat:      in.OutputFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}

	now := s.now()
	g := &Generation{
		ID:             uuid.New(),
		ProjectID:      projectID,
		UserID:         userID,
		Prompt:         in.Prompt,
		AspectRatio:    string(in.AspectRatio),
		ResolutionTier: string(in.ResolutionTier),
		Width:          width,
		Height:         height,
		OutputKind:     in.OutputKind,
		OutputFormat:   in.OutputFormat,
		Provider:       providerName,
		ModelID:        modelID,
		Status:         StatusPending,
		Funding:        funding,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.ReferenceImageURL != "" {
		ref := in.ReferenceImageURL
		g.ReferenceImageURL = &ref
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}

	// Past this point the job exists; finish starting it even if the caller
	// goes away.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(
		zap.String("job_id", g.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("provider", providerName),
	)

	g, err = s.start(ctx, g, modelID, payload, credential, log)
	if err != nil {
		return g, err
	}

	if in.Wait {
		return s.await(ctx, g, credential)
	}
	return g, nil
}

// validate normalizes in and returns the derived pixel size.
func (s *Service) validate(in *CreateInput) (int, int, error) {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if in.Prompt == "" {
		return 0, 0, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if in.ResolutionTier == "" {
		in.ResolutionTier = descriptor.FallbackTier
	}
	if in.OutputKind == "" {
		in.OutputKind = OutputAsset
	}
	if in.OutputKind != OutputAsset && in.OutputKind != OutputFrame {
		return 0, 0, fmt.Errorf("%w: unknown output kind %q", ErrInvalidRequest, in.OutputKind)
	}
	if in.OutputFormat == "" {
		in.OutputFormat = descriptor.DefaultOutputFormat
	}
	if !descriptor.ValidOutputFormat(in.OutputFormat) {
		return 0, 0, fmt.Errorf("%w: %w: %q", ErrInvalidRequest, descriptor.ErrUnknownOutputFormat, in.OutputFormat)
	}
	if !s.registry.SupportsFormat(s.config.DefaultProvider, in.OutputFormat) {
		return 0, 0, fmt.Errorf("%w: %w: %s cannot produce %q", ErrInvalidRequest, descriptor.ErrUnsupportedOutputFormat, s.config.DefaultProvider, in.OutputFormat)
	}

	width, height, err := descriptor.Dimensions(in.AspectRatio, in.ResolutionTier)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return width, height, nil
}

// fund picks credits when the ledger allows it, else the caller's own key.
func (s *Service) fund(ctx context.Context, userID uuid.UUID) (Funding, string, error) {
	elig, err := s.ledger.CheckSpendEligibility(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if elig.Eligible {
		return FundingCredits, "", nil
	}
	if elig.HasProviderCredential {
		credential, err := s.ledger.ProviderCredential(ctx, userID)
		if err != nil {
			return "", "", err
		}
		if credential != "" {
			return FundingOwnKey, credential, nil
		}
	}
	return "", "", ErrInsufficientCredits
}

// start submits a PENDING job and moves it to PROCESSING.
func (s *Service) start(ctx context.Context, g *Generation, modelID string, payload map[string]any, credential string, log *zap.Logger) (*Generation, error) {
	adapter := s.adapters[g.Provider]

	handle, err := adapter.Start(ctx, modelID, payload, credential)
	if err != nil {
		kind := kindOf(err)
		log.Warn("generation start failed", zap.String("error_kind", string(kind)), zap.Error(err))
		if _, markErr := s.repo.MarkFailed(ctx, g.ID, StatusPending, kind, err.Error()); markErr != nil {
			log.Error("mark generation failed", zap.Error(markErr))
		}
		s.recordOutcome(g.Provider, StatusFailed, kind)
		return s.reload(ctx, g), err
	}

	debited := false
	if g.Funding == FundingCredits {
		if err := s.ledger.Debit(ctx, g.UserID, g.ID.String()); err != nil {
			// The provider job is orphaned; it runs but nobody pays or polls.
			log.Error("debit after start failed", zap.String("handle", handle), zap.Error(err))
			if _, markErr := s.repo.MarkFailed(ctx, g.ID, StatusPending, KindInternal, "debit failed; orphaned provider job "+handle); markErr != nil {
				log.Error("mark generation failed", zap.Error(markErr))
			}
			s.recordOutcome(g.Provider, StatusFailed, KindInternal)
			return s.reload(ctx, g), fmt.Errorf("debit: %w", err)
		}
		debited = true
	}

	applied, err := s.repo.MarkProcessing(ctx, g.ID, handle, debited)
	if err != nil || !applied {
		if err == nil {
			err = errors.New("job left PENDING")
		}
		log.Error("persist started generation failed", zap.String("handle", handle), zap.Error(err))
		if debited {
			s.refund(ctx, g, log)
		}
		if _, markErr := s.repo.MarkFailed(ctx, g.ID, StatusPending, KindInternal, "start not recorded; orphaned provider job "+handle); markErr != nil {
			log.Error("mark generation failed", zap.Error(markErr))
		}
		s.recordOutcome(g.Provider, StatusFailed, KindInternal)
		return s.reload(ctx, g), fmt.Errorf("%w: %w", ErrStartNotRecorded, err)
	}

	log.Info("generation started", zap.String("handle", handle), zap.String("funding", string(g.Funding)))
	return s.reload(ctx, g), nil
}

// await blocks on the provider, then settles through the normal path.
func (s *Service) await(ctx context.Context, g *Generation, credential string) (*Generation, error) {
	if g.ProviderJobHandle == nil {
		return g, nil
	}
	res, err := provider.AwaitTerminal(ctx, s.adapters[g.Provider], *g.ProviderJobHandle, credential, s.config.AwaitMaxWait, s.config.PollInterval)
	if err != nil {
		if errors.Is(err, provider.ErrTimeout) {
			return g, err
		}
		// Classify the error through the regular poll path.
		s.logger.Warn("await generation failed", zap.String("job_id", g.ID.String()), zap.Error(err))
		return s.advance(ctx, g.ID)
	}
	return s.settleShared(ctx, g.ID, res)
}

// Get returns a job owned by userID, advancing it if it is still running.
// Safe to call repeatedly and concurrently.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Generation, error) {
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.UserID != userID {
		return nil, ErrGenerationNotFound
	}
	if g.Status != StatusProcessing {
		return g, nil
	}
	return s.advance(ctx, g.ID)
}

// advance polls the provider once and settles the outcome. Concurrent callers
// for the same job in this process share one execution.
func (s *Service) advance(ctx context.Context, id uuid.UUID) (*Generation, error) {
	v, err, _ := s.finalize.Do(id.String(), func() (any, error) {
		return s.pollAndSettle(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Generation), nil
}

// settleShared settles a known provider result under the same coalescing key
// as advance.
func (s *Service) settleShared(ctx context.Context, id uuid.UUID, res *provider.Result) (*Generation, error) {
	v, err, _ := s.finalize.Do(id.String(), func() (any, error) {
		g, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if g.Status != StatusProcessing {
			return g, nil
		}
		return s.settle(ctx, g, res)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Generation), nil
}

func (s *Service) pollAndSettle(ctx context.Context, id uuid.UUID) (*Generation, error) {
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusProcessing {
		return g, nil
	}

	log := s.logger.With(zap.String("job_id", g.ID.String()), zap.String("provider", g.Provider))
	adapter, ok := s.adapters[g.Provider]
	if !ok || g.ProviderJobHandle == nil {
		log.Error("generation cannot be polled", zap.Bool("adapter_found", ok))
		return s.fail(ctx, g, KindInternal, "job cannot be polled", log)
	}

	credential := ""
	if g.Funding == FundingOwnKey {
		if credential, err = s.ledger.ProviderCredential(ctx, g.UserID); err != nil {
			return nil, err
		}
	}

	res, err := adapter.Poll(ctx, *g.ProviderJobHandle, credential)
	if err != nil {
		if errors.Is(err, provider.ErrProviderUnavailable) {
			log.Warn("provider poll unavailable", zap.Error(err))
			return g, nil
		}
		return s.fail(ctx, g, kindOf(err), err.Error(), log)
	}
	return s.settle(ctx, g, res)
}

// settle applies one provider observation to a PROCESSING job.
func (s *Service) settle(ctx context.Context, g *Generation, res *provider.Result) (*Generation, error) {
	log := s.logger.With(zap.String("job_id", g.ID.String()), zap.String("provider", g.Provider))

	switch res.Status {
	case provider.StatusFailed:
		return s.fail(ctx, g, KindProviderFailed, res.Error, log)
	case provider.StatusCanceled:
		return s.fail(ctx, g, KindProviderCanceled, res.Error, log)
	case provider.StatusSucceeded:
	default:
		return g, nil
	}

	if len(res.Outputs) == 0 {
		return s.fail(ctx, g, KindEmptyOutput, ErrEmptyOutput.Error(), log)
	}

	now := s.now()
	token := uuid.New()
	claimed, err := s.repo.Claim(ctx, g.ID, token, now, now.Add(s.config.FinalizeLease))
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Another poller is finalizing, or already has.
		return s.repo.Get(ctx, g.ID)
	}

	// Materialization ends by the time the lease expires; an expired claim
	// means its holder has given up.
	leaseCtx, cancel := context.WithDeadline(ctx, now.Add(s.config.FinalizeLease))
	imageURL, err := s.materialize(leaseCtx, res.Outputs[0], log)
	cancel()
	if err != nil {
		applied, failErr := s.repo.FailClaimed(ctx, g.ID, token, KindMaterializationFailed, err.Error())
		return s.failed(ctx, g, applied, failErr, KindMaterializationFailed, err.Error(), log)
	}

	applied, err := s.repo.Complete(ctx, g.ID, token, imageURL, res.Outputs)
	if err != nil {
		if releaseErr := s.repo.ReleaseClaim(ctx, g.ID, token); releaseErr != nil {
			log.Error("release finalize claim failed", zap.Error(releaseErr))
		}
		return nil, err
	}
	if !applied {
		log.Warn("finalize claim lost, discarding materialized asset", zap.String("image_url", imageURL))
		return s.repo.Get(ctx, g.ID)
	}

	s.recordOutcome(g.Provider, StatusCompleted, "")
	log.Info("generation completed", zap.String("image_url", imageURL))
	return s.repo.Get(ctx, g.ID)
}

// materialize tries the configured number of times.
func (s *Service) materialize(ctx context.Context, sourceURL string, log *zap.Logger) (string, error) {
	var err error
	for attempt := 1; attempt <= s.config.MaterializeAttempts; attempt++ {
		attemptCtx, cancel := s.attemptContext(ctx)
		var imageURL string
		imageURL, err = s.materializer.Materialize(attemptCtx, sourceURL)
		cancel()
		if err == nil {
			return imageURL, nil
		}
		if ctx.Err() != nil {
			break
		}
		log.Warn("materialization attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return "", err
}

func (s *Service) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.MaterializeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.MaterializeTimeout)
}

// fail moves a PROCESSING job to FAILED and refunds a debited credit. Only
// the writer whose transition applied refunds.
func (s *Service) fail(ctx context.Context, g *Generation, kind ErrorKind, message string, log *zap.Logger) (*Generation, error) {
	applied, err := s.repo.MarkFailed(ctx, g.ID, StatusProcessing, kind, message)
	return s.failed(ctx, g, applied, err, kind, message, log)
}

// failed finishes a conditional FAILED write.
func (s *Service) failed(ctx context.Context, g *Generation, applied bool, err error, kind ErrorKind, message string, log *zap.Logger) (*Generation, error) {
	if err != nil {
		return nil, err
	}
	if applied {
		s.recordOutcome(g.Provider, StatusFailed, kind)
		log.Info("generation failed", zap.String("error_kind", string(kind)), zap.String("error", message))
		if g.CreditDebited {
			s.refund(ctx, g, log)
		}
	}
	return s.repo.Get(ctx, g.ID)
}

// refund returns the job's credit. A failure here is financial drift and is
// raised as an alarm rather than returned.
func (s *Service) refund(ctx context.Context, g *Generation, log *zap.Logger) {
	if err := s.ledger.Refund(ctx, g.UserID, g.ID.String()); err != nil {
		log.Error("credit refund failed",
			zap.String("alarm", "credit_refund_failed"),
			zap.String("user_id", g.UserID.String()),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordRefundFailure()
		}
	}
}

// List returns a page of a project's jobs, newest first. Listing never polls.
func (s *Service) List(ctx context.Context, userID, projectID uuid.UUID, limit, offset int) ([]*Generation, int64, error) {
	if err := s.ownership.Verify(ctx, userID, projectID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByProject(ctx, projectID, limit, offset)
}

// Delete removes a job. It never settles: a debited job deleted mid-flight
// keeps its debit.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if g.UserID != userID {
		return ErrGenerationNotFound
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) reload(ctx context.Context, g *Generation) *Generation {
	fresh, err := s.repo.Get(ctx, g.ID)
	if err != nil {
		return g
	}
	return fresh
}

func (s *Service) recordOutcome(providerName string, status Status, kind ErrorKind) {
	if s.metrics != nil {
		s.metrics.RecordGeneration(providerName, string(status), string(kind))
	}
}
