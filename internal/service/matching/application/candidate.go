package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"neighborly/internal/pkg/logger"
	"neighborly/internal/pkg/metrics"
	"neighborly/internal/service/matching/domain"
	"neighborly/internal/service/matching/domain/port"
)

// CandidateMatcher 在新挂单出现时，为它在同社区内找出兼容度最高的对侧挂单。
type CandidateMatcher struct {
	listings domain.ListingRepository
	creator  *matchCreator
	cfg      Config
	tracer   trace.Tracer
	metrics  *metrics.Metrics
}

func NewCandidateMatcher(
	listings domain.ListingRepository,
	matches domain.MatchRepository,
	channels port.ChannelProvisioner,
	notifier port.Notifier,
	cfg Config,
	tracer trace.Tracer,
	m *metrics.Metrics,
) *CandidateMatcher {
	return &CandidateMatcher{
		listings: listings,
		creator: &matchCreator{
			matches:  matches,
			channels: channels,
			notifier: notifier,
			tracer:   tracer,
			metrics:  m,
			now:      time.Now,
		},
		cfg:     cfg,
		tracer:  tracer,
		metrics: m,
	}
}

// Match 为 ref 指向的挂单寻找最佳对侧。
// 挂单已不存在或不再 active 时是正常的空操作，返回 (nil, nil)。
// 该对已有撮合时返回已有撮合。
func (c *CandidateMatcher) Match(ctx context.Context, ref domain.EntityRef) (*domain.Match, error) {
	ctx, span := c.tracer.Start(ctx, "app.CandidateMatcher.Match")
	defer span.End()
	span.SetAttributes(
		attribute.String("entity.kind", string(ref.Kind)),
		attribute.String("entity.id", ref.ID),
	)

	var (
		m   *domain.Match
		err error
	)
	switch ref.Kind {
	case domain.KindOffer:
		m, err = c.matchOffer(ctx, ref.ID)
	case domain.KindNeed:
		m, err = c.matchNeed(ctx, ref.ID)
	default:
		err = fmt.Errorf("%w: entity kind %q", domain.ErrMalformedWorkItem, ref.Kind)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate matching failed")
		return nil, err
	}
	return m, nil
}

func (c *CandidateMatcher) matchOffer(ctx context.Context, offerID string) (*domain.Match, error) {
	log := logger.Ctx(ctx)
	now := c.creator.now()

	offer, err := c.listings.GetOffer(ctx, offerID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info().Str("offer_id", offerID).Msg("offer vanished before matching, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load offer %s: %w", offerID, err)
	}
	if !offer.Matchable(now) {
		log.Debug().Str("offer_id", offerID).Str("status", string(offer.Status)).Msg("offer not matchable, skipping")
		return nil, nil
	}

	needs, err := c.listings.ActiveNeeds(ctx, offer.CommunityID, c.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("list needs in %s: %w", offer.CommunityID, err)
	}

	var (
		best      *domain.Need
		bestScore domain.ScoreResult
	)
	for _, need := range needs {
		if need.OwnerID == offer.OwnerID || !need.Matchable() {
			continue
		}
		score := domain.Score(offer, need)
		if score.Degraded {
			recordDegraded(ctx, c.metrics, "candidate", offer, need)
		}
		if !score.Eligible(c.cfg.EligibilityThreshold) {
			continue
		}
		// 严格大于：同分时保留先创建的需求单
		if best == nil || score.Value > bestScore.Value {
			best, bestScore = need, score
		}
	}
	if best == nil {
		log.Debug().Str("offer_id", offerID).Int("candidates", len(needs)).Msg("no eligible need for offer")
		return nil, nil
	}
	return c.finish(ctx, offer, best, bestScore)
}

func (c *CandidateMatcher) matchNeed(ctx context.Context, needID string) (*domain.Match, error) {
	log := logger.Ctx(ctx)
	now := c.creator.now()

	need, err := c.listings.GetNeed(ctx, needID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info().Str("need_id", needID).Msg("need vanished before matching, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load need %s: %w", needID, err)
	}
	if !need.Matchable() {
		log.Debug().Str("need_id", needID).Str("status", string(need.Status)).Msg("need not matchable, skipping")
		return nil, nil
	}

	offers, err := c.listings.ActiveOffers(ctx, need.CommunityID, now, c.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("list offers in %s: %w", need.CommunityID, err)
	}

	var (
		best      *domain.Offer
		bestScore domain.ScoreResult
	)
	for _, offer := range offers {
		if offer.OwnerID == need.OwnerID || !offer.Matchable(now) {
			continue
		}
		score := domain.Score(offer, need)
		if score.Degraded {
			recordDegraded(ctx, c.metrics, "candidate", offer, need)
		}
		if !score.Eligible(c.cfg.EligibilityThreshold) {
			continue
		}
		if best == nil || score.Value > bestScore.Value {
			best, bestScore = offer, score
		}
	}
	if best == nil {
		log.Debug().Str("need_id", needID).Int("candidates", len(offers)).Msg("no eligible offer for need")
		return nil, nil
	}
	return c.finish(ctx, best, need, bestScore)
}

func (c *CandidateMatcher) finish(ctx context.Context, offer *domain.Offer, need *domain.Need, score domain.ScoreResult) (*domain.Match, error) {
	m, result, err := c.creator.create(ctx, offer, need, score, domain.StrategyCandidate)
	if err != nil {
		return nil, err
	}
	if result == sideTaken {
		// 另一条撮合抢先占用了其中一侧，本次触发已无事可做
		logger.Ctx(ctx).Info().
			Str("offer_id", offer.ID).
			Str("need_id", need.ID).
			Msg("lost race for listing, another match took it")
		return nil, nil
	}
	return m, nil
}
