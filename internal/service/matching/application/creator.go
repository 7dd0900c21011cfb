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

// matchCreator 是候选撮合与批量撮合共用的落库步骤：
// 原子地创建撮合并占用两侧挂单，成功后打开会话频道并通知双方。
type matchCreator struct {
	matches  domain.MatchRepository
	channels port.ChannelProvisioner
	notifier port.Notifier
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	now      func() time.Time
}

// createResult 描述一次创建尝试的结局
type createResult int

const (
	created createResult = iota
	duplicatePair
	sideTaken
)

func (c *matchCreator) create(ctx context.Context, offer *domain.Offer, need *domain.Need, score domain.ScoreResult, strategy domain.Strategy) (*domain.Match, createResult, error) {
	ctx, span := c.tracer.Start(ctx, "app.CreateMatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("offer.id", offer.ID),
		attribute.String("need.id", need.ID),
		attribute.Float64("match.score", score.Value),
		attribute.String("match.strategy", string(strategy)),
	)

	m := domain.NewMatch(offer, need, score, strategy, c.now())
	stored, inserted, err := c.matches.CreateMatch(ctx, m)
	if err != nil {
		if errors.Is(err, domain.ErrNotActive) {
			span.AddEvent("one side is no longer active")
			return nil, sideTaken, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create match failed")
		return nil, 0, fmt.Errorf("create match offer=%s need=%s: %w", offer.ID, need.ID, err)
	}

	if !inserted {
		c.metrics.MatchDuplicates.WithLabelValues(string(strategy)).Inc()
		span.AddEvent("pair already matched")
		return stored, duplicatePair, nil
	}

	c.metrics.MatchesCreated.WithLabelValues(string(strategy)).Inc()
	logger.Ctx(ctx).Info().
		Str("match_id", stored.ID).
		Str("offer_id", offer.ID).
		Str("need_id", need.ID).
		Float64("score", score.Value).
		Str("strategy", string(strategy)).
		Msg("match created")

	c.announce(ctx, stored)
	return stored, created, nil
}

// announce 打开会话频道并通知双方。失败只记录日志，撮合本身已经提交。
func (c *matchCreator) announce(ctx context.Context, m *domain.Match) {
	log := logger.Ctx(ctx)

	if c.channels != nil {
		channelID, err := c.channels.Open(ctx, m.ID, m.GiverID, m.ReceiverID)
		if err != nil {
			c.metrics.SideEffectFails.WithLabelValues("channel_open").Inc()
			log.Warn().Err(err).Str("match_id", m.ID).Msg("failed to open match channel")
		} else if channelID != "" {
			if err := c.matches.SetChannel(ctx, m.ID, channelID); err != nil {
				c.metrics.SideEffectFails.WithLabelValues("channel_store").Inc()
				log.Warn().Err(err).Str("match_id", m.ID).Msg("failed to store match channel")
			} else {
				m.ChannelID = channelID
			}
		}
	}

	data := map[string]string{"match_id": m.ID, "offer_id": m.OfferID, "need_id": m.NeedID}
	if m.ChannelID != "" {
		data["channel_id"] = m.ChannelID
	}
	notify(ctx, c.notifier, c.metrics, m.GiverID, domain.NotifyMatchCreated,
		"New match", "Someone nearby needs what you offered.", data)
	notify(ctx, c.notifier, c.metrics, m.ReceiverID, domain.NotifyMatchCreated,
		"New match", "Someone nearby can help with what you need.", data)
}

// notify 尽力发送一条通知。
func notify(ctx context.Context, n port.Notifier, m *metrics.Metrics, userID, kind, title, body string, data map[string]string) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, userID, kind, title, body, data); err != nil {
		m.SideEffectFails.WithLabelValues("notify").Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Str("kind", kind).Msg("failed to send notification")
	}
}

// recordDegraded 统计使用了默认问卷的打分。
func recordDegraded(ctx context.Context, m *metrics.Metrics, component string, offer *domain.Offer, need *domain.Need) {
	m.SurveyDegraded.WithLabelValues(component).Inc()
	logger.Ctx(ctx).Debug().
		Str("offer_id", offer.ID).
		Str("need_id", need.ID).
		Msg("scored with degraded survey")
}
