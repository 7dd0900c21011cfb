package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"neighborly/internal/pkg/logger"
	"neighborly/internal/pkg/metrics"
	"neighborly/internal/service/matching/domain"
	"neighborly/internal/service/matching/domain/port"
)

// SweepMatcher 对一个社区做全量贪心撮合：所有 (offer, need) 对按分数降序，
// 依次接受两侧都未被占用的对。结果是近似最优，不保证全局最大。
type SweepMatcher struct {
	listings domain.ListingRepository
	creator  *matchCreator
	cfg      Config
	tracer   trace.Tracer
	metrics  *metrics.Metrics
}

func NewSweepMatcher(
	listings domain.ListingRepository,
	matches domain.MatchRepository,
	channels port.ChannelProvisioner,
	notifier port.Notifier,
	cfg Config,
	tracer trace.Tracer,
	m *metrics.Metrics,
) *SweepMatcher {
	return &SweepMatcher{
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

type scoredPair struct {
	offer *domain.Offer
	need  *domain.Need
	score domain.ScoreResult
}

// Sweep 对 communityID 执行一轮批量撮合。
// 单个对创建失败只记录并跳过；读取挂单失败则整体返回错误。
func (s *SweepMatcher) Sweep(ctx context.Context, communityID string) (SweepReport, error) {
	ctx, span := s.tracer.Start(ctx, "app.SweepMatcher.Sweep")
	defer span.End()
	span.SetAttributes(attribute.String("community.id", communityID))

	start := time.Now()
	defer func() { s.metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	report := SweepReport{CommunityID: communityID}
	log := logger.Ctx(ctx).With().Str("community_id", communityID).Logger()
	now := s.creator.now()

	offers, err := s.listings.ActiveOffers(ctx, communityID, now, s.cfg.MaxCandidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list offers failed")
		return report, fmt.Errorf("sweep %s: list offers: %w", communityID, err)
	}
	needs, err := s.listings.ActiveNeeds(ctx, communityID, s.cfg.MaxCandidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list needs failed")
		return report, fmt.Errorf("sweep %s: list needs: %w", communityID, err)
	}

	pairs := make([]scoredPair, 0, len(offers))
	for _, offer := range offers {
		if !offer.Matchable(now) {
			continue
		}
		for _, need := range needs {
			if need.OwnerID == offer.OwnerID || !need.Matchable() {
				continue
			}
			score := domain.Score(offer, need)
			report.Considered++
			if score.Degraded {
				recordDegraded(ctx, s.metrics, "sweep", offer, need)
			}
			if !score.Eligible(s.cfg.EligibilityThreshold) {
				continue
			}
			pairs = append(pairs, scoredPair{offer: offer, need: need, score: score})
		}
	}
	report.Eligible = len(pairs)

	// 稳定排序：同分时保持 (offer 创建顺序, need 创建顺序)
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].score.Value > pairs[j].score.Value
	})

	takenOffers := make(map[string]bool, len(offers))
	takenNeeds := make(map[string]bool, len(needs))
	for _, p := range pairs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if takenOffers[p.offer.ID] || takenNeeds[p.need.ID] {
			report.Skipped++
			continue
		}

		_, result, err := s.creator.create(ctx, p.offer, p.need, p.score, domain.StrategySweep)
		if err != nil {
			report.Failed++
			s.metrics.SweepFailures.Inc()
			log.Warn().Err(err).
				Str("offer_id", p.offer.ID).
				Str("need_id", p.need.ID).
				Msg("sweep pair failed, skipping")
			continue
		}

		switch result {
		case created:
			report.Created++
			takenOffers[p.offer.ID] = true
			takenNeeds[p.need.ID] = true
		case duplicatePair, sideTaken:
			// 不标记占用：仍为 active 的一侧可以与其他对象配对
			report.Skipped++
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.considered", report.Considered),
		attribute.Int("sweep.created", report.Created),
		attribute.Int("sweep.failed", report.Failed),
	)
	log.Info().
		Int("considered", report.Considered).
		Int("eligible", report.Eligible).
		Int("created", report.Created).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("community sweep finished")
	return report, nil
}
