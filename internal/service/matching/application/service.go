// internal/service/matching/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"neighborly/internal/pkg/logger"
	"neighborly/internal/pkg/metrics"
	"neighborly/internal/service/matching/domain"
	"neighborly/internal/service/matching/domain/port"
)

// MatchingService 是撮合引擎对外暴露的用例入口。
// 同步调用方（HTTP）与队列消费者都只依赖它。
type MatchingService struct {
	candidates *CandidateMatcher
	sweeper    *SweepMatcher
	lifecycle  *LifecycleManager
	ledger     *RewardLedger
	pairs      *PairHistoryGuard
	queue      port.WorkQueue
	cfg        Config
	tracer     trace.Tracer
	metrics    *metrics.Metrics
}

// Dependencies 汇总构建 MatchingService 所需的端口实现
type Dependencies struct {
	Listings domain.ListingRepository
	Matches  domain.MatchRepository
	Ledger   domain.LedgerRepository
	Pairs    domain.PairHistoryRepository
	Rules    port.RewardRules
	Channels port.ChannelProvisioner
	Notifier port.Notifier
	Queue    port.WorkQueue
}

// NewMatchingService 组装引擎的全部组件。
func NewMatchingService(deps Dependencies, cfg Config, tracer trace.Tracer, m *metrics.Metrics) *MatchingService {
	ledger := NewRewardLedger(deps.Ledger, m)
	pairs := NewPairHistoryGuard(deps.Pairs, cfg, m)
	return &MatchingService{
		candidates: NewCandidateMatcher(deps.Listings, deps.Matches, deps.Channels, deps.Notifier, cfg, tracer, m),
		sweeper:    NewSweepMatcher(deps.Listings, deps.Matches, deps.Channels, deps.Notifier, cfg, tracer, m),
		lifecycle:  NewLifecycleManager(deps.Matches, ledger, pairs, deps.Rules, deps.Channels, deps.Notifier, cfg, tracer, m),
		ledger:     ledger,
		pairs:      pairs,
		queue:      deps.Queue,
		cfg:        cfg,
		tracer:     tracer,
		metrics:    m,
	}
}

// OnEntityCreated 把新挂单放入工作队列，由消费者异步执行候选撮合。
func (s *MatchingService) OnEntityCreated(ctx context.Context, ref domain.EntityRef, communityID string) error {
	if !ref.Kind.Valid() || ref.ID == "" {
		return fmt.Errorf("%w: invalid entity reference", domain.ErrMalformedWorkItem)
	}
	ref.CommunityID = communityID
	return s.enqueue(ctx, &domain.WorkItem{
		Kind:        domain.WorkEntityCreated,
		CommunityID: communityID,
		Entity:      &ref,
	})
}

// ScheduleSweep 把一次社区批量撮合放入工作队列。
func (s *MatchingService) ScheduleSweep(ctx context.Context, communityID string) error {
	return s.enqueue(ctx, &domain.WorkItem{
		Kind:        domain.WorkCommunitySweep,
		CommunityID: communityID,
	})
}

// EnqueueClosure 把关闭请求放入工作队列。
func (s *MatchingService) EnqueueClosure(ctx context.Context, communityID string, req ClosureRequest) error {
	return s.enqueue(ctx, &domain.WorkItem{
		Kind:        domain.WorkMatchClosure,
		CommunityID: communityID,
		Closure: &domain.ClosureCommand{
			MatchID:     req.MatchID,
			RequesterID: req.RequesterID,
			Moderator:   req.Moderator,
			Type:        req.Type,
			Reason:      req.Reason,
		},
	})
}

func (s *MatchingService) enqueue(ctx context.Context, item *domain.WorkItem) error {
	if s.queue == nil {
		return fmt.Errorf("work queue not configured")
	}
	if item.TraceID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			item.TraceID = sc.TraceID().String()
		}
	}
	item.EnqueuedAt = time.Now().UTC()
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue %s for community %s: %w", item.Kind, item.CommunityID, err)
	}
	return nil
}

// HandleEntityCreated 同步执行一次候选撮合。
func (s *MatchingService) HandleEntityCreated(ctx context.Context, ref domain.EntityRef) (*domain.Match, error) {
	return s.candidates.Match(ctx, ref)
}

// RunSweep 同步执行一次社区批量撮合。
func (s *MatchingService) RunSweep(ctx context.Context, communityID string) (SweepReport, error) {
	return s.sweeper.Sweep(ctx, communityID)
}

// RequestClosure 同步关闭一条撮合。
func (s *MatchingService) RequestClosure(ctx context.Context, req ClosureRequest) (ClosureResult, error) {
	return s.lifecycle.RequestClosure(ctx, req)
}

// Balance 返回用户的奖励余额。
func (s *MatchingService) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

// PairFlagged 报告两名成员近期是否反复撮合。
func (s *MatchingService) PairFlagged(ctx context.Context, userA, userB string) (bool, error) {
	return s.pairs.Flagged(ctx, userA, userB)
}

// HandleWorkItem 执行一条队列工作项，返回的错误由消费者按
// domain.IsSettled / domain.IsRejection 决定是否确认消息。
func (s *MatchingService) HandleWorkItem(ctx context.Context, item *domain.WorkItem) error {
	ctx, span := s.tracer.Start(ctx, "app.MatchingService.HandleWorkItem")
	defer span.End()
	span.SetAttributes(
		attribute.String("work.kind", string(item.Kind)),
		attribute.String("community.id", item.CommunityID),
	)

	if s.cfg.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProcessingTimeout)
		defer cancel()
	}

	err := s.dispatch(ctx, item)
	outcome := "ok"
	switch {
	case err == nil:
	case domain.IsSettled(err):
		outcome = "settled"
	case domain.IsRejection(err):
		outcome = "rejected"
	default:
		outcome = "retry"
	}
	s.metrics.WorkItems.WithLabelValues(string(item.Kind), outcome).Inc()

	if err != nil {
		logger.Ctx(ctx).Info().Err(err).
			Str("kind", string(item.Kind)).
			Str("community_id", item.CommunityID).
			Str("outcome", outcome).
			Msg("work item finished with error")
	}
	return err
}

func (s *MatchingService) dispatch(ctx context.Context, item *domain.WorkItem) error {
	switch item.Kind {
	case domain.WorkEntityCreated:
		if item.Entity == nil {
			return fmt.Errorf("%w: entity reference missing", domain.ErrMalformedWorkItem)
		}
		_, err := s.candidates.Match(ctx, *item.Entity)
		return err
	case domain.WorkCommunitySweep:
		_, err := s.sweeper.Sweep(ctx, item.CommunityID)
		return err
	case domain.WorkMatchClosure:
		if item.Closure == nil {
			return fmt.Errorf("%w: closure command missing", domain.ErrMalformedWorkItem)
		}
		_, err := s.lifecycle.RequestClosure(ctx, ToClosureRequest(item.Closure))
		return err
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrMalformedWorkItem, item.Kind)
	}
}
