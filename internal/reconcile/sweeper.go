package reconcile

import (
	"context"
	"time"

	"brewbar-be/internal/config"
	"brewbar-be/internal/logger"
	"brewbar-be/internal/metrics"
	"brewbar-be/internal/order"

	"go.uber.org/zap"
)

// sweepActor tags sweeper-applied transitions in service logs.
const sweepActor = "reconciliation-sweep"

type Action string

const (
	// ActionAutoConfirmed: the optimistic policy force-confirmed the order.
	ActionAutoConfirmed Action = "auto-confirmed"
	// ActionRecommendReview: the conservative policy flagged the order for
	// a human decision.
	ActionRecommendReview Action = "recommend-review"
	// ActionSkipped: the order resolved between the stale query and the
	// conditional update; nothing was changed.
	ActionSkipped Action = "skipped"
	// ActionError: the transition failed; the order is left untouched.
	ActionError Action = "error"
)

type Entry struct {
	OrderExternalID string `json:"order_external_id"`
	OrderNumber     int64  `json:"order_number"`
	TotalCents      int64  `json:"total_cents"`
	AgeMinutes      int64  `json:"age_minutes"`
	Action          Action `json:"action"`
	Error           string `json:"error,omitempty"`
}

// Report lists every order the sweep considered and what was done (or
// recommended) for it. Policy and threshold are always named so that runs
// with different configurations are auditable and never silently mixed.
type Report struct {
	Policy           config.SweepPolicy `json:"policy"`
	ThresholdMinutes int                `json:"threshold_minutes"`
	RanAt            time.Time          `json:"ran_at"`
	Considered       int                `json:"considered"`
	Entries          []Entry            `json:"entries"`
	DurationMillis   int64              `json:"duration_ms"`
}

// Sweeper finds orders stuck in awaiting_payment past a threshold. The sweep
// only ever selects awaiting_payment orders, and every mutation goes through
// the same conditional update the webhook path uses, so a paid or cancelled
// order is never touched regardless of age.
type Sweeper struct {
	repo             order.Repository
	svc              order.Service
	policy           config.SweepPolicy
	thresholdMinutes int
}

func NewSweeper(repo order.Repository, svc order.Service, policy config.SweepPolicy, thresholdMinutes int) *Sweeper {
	return &Sweeper{
		repo:             repo,
		svc:              svc,
		policy:           policy,
		thresholdMinutes: thresholdMinutes,
	}
}

// Run sweeps with the configured policy and threshold.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	return s.RunWith(ctx, s.policy, s.thresholdMinutes)
}

// RunOnce sweeps with the configured policy; thresholdMinutes overrides the
// configured threshold when positive.
func (s *Sweeper) RunOnce(ctx context.Context, thresholdMinutes int) (*Report, error) {
	return s.RunWith(ctx, s.policy, thresholdMinutes)
}

// DryRun reports without mutating, whatever the configured policy is.
func (s *Sweeper) DryRun(ctx context.Context) (*Report, error) {
	return s.RunWith(ctx, config.SweepPolicyConservative, s.thresholdMinutes)
}

func (s *Sweeper) RunWith(ctx context.Context, policy config.SweepPolicy, thresholdMinutes int) (*Report, error) {
	if thresholdMinutes <= 0 {
		thresholdMinutes = s.thresholdMinutes
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "sweeper"),
		zap.String("policy", string(policy)),
		zap.Int("threshold_minutes", thresholdMinutes),
	)
	timer := metrics.StartTimer()

	stale, err := s.repo.FindStalePayments(ctx, thresholdMinutes)
	if err != nil {
		log.Error("stale order query failed", zap.Error(err))
		return nil, err
	}

	report := &Report{
		Policy:           policy,
		ThresholdMinutes: thresholdMinutes,
		RanAt:            time.Now().UTC(),
		Considered:       len(stale),
		Entries:          make([]Entry, 0, len(stale)),
	}

	for _, o := range stale {
		entry := Entry{
			OrderExternalID: o.ExternalID.String(),
			OrderNumber:     o.OrderNumber,
			TotalCents:      o.TotalCents,
			AgeMinutes:      int64(time.Since(o.CreatedAt) / time.Minute),
		}

		switch policy {
		case config.SweepPolicyOptimistic:
			res, err := s.svc.MarkAsPaid(ctx, o.ExternalID.String(), sweepActor)
			switch {
			case err != nil:
				entry.Action = ActionError
				entry.Error = err.Error()
			case res == order.Transitioned:
				entry.Action = ActionAutoConfirmed
			default:
				// A webhook won the race since the query ran.
				entry.Action = ActionSkipped
			}
		default:
			entry.Action = ActionRecommendReview
		}

		report.Entries = append(report.Entries, entry)
	}

	report.DurationMillis = timer.Duration().Milliseconds()

	log.Info("sweep finished",
		zap.Int("considered", report.Considered),
		zap.Int64("duration_ms", report.DurationMillis),
	)

	return report, nil
}

// RunEvery sweeps on an interval until ctx is cancelled. Errors are logged
// and the next tick runs anyway.
func (s *Sweeper) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				logger.FromCtx(ctx).Error("scheduled sweep failed", zap.Error(err))
			}
		}
	}
}
