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

// LifecycleManager 负责撮合的关闭流转，以及 successful 关闭后的结算：
// 向双方发放奖励并记录成员对历史。
type LifecycleManager struct {
	matches  domain.MatchRepository
	ledger   *RewardLedger
	pairs    *PairHistoryGuard
	rules    port.RewardRules
	channels port.ChannelProvisioner
	notifier port.Notifier
	cfg      Config
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewLifecycleManager(
	matches domain.MatchRepository,
	ledger *RewardLedger,
	pairs *PairHistoryGuard,
	rules port.RewardRules,
	channels port.ChannelProvisioner,
	notifier port.Notifier,
	cfg Config,
	tracer trace.Tracer,
	m *metrics.Metrics,
) *LifecycleManager {
	return &LifecycleManager{
		matches:  matches,
		ledger:   ledger,
		pairs:    pairs,
		rules:    rules,
		channels: channels,
		notifier: notifier,
		cfg:      cfg,
		tracer:   tracer,
		metrics:  m,
		now:      time.Now,
	}
}

// RequestClosure 关闭一条 active 的撮合。
//
// 已处于终态的撮合返回 ErrAlreadyClosed；若它之前以 successful 关闭，
// 会先幂等地补做一次结算，以修复上次结算中途失败的情况。
func (l *LifecycleManager) RequestClosure(ctx context.Context, req ClosureRequest) (ClosureResult, error) {
	ctx, span := l.tracer.Start(ctx, "app.LifecycleManager.RequestClosure")
	defer span.End()
	span.SetAttributes(
		attribute.String("match.id", req.MatchID),
		attribute.String("closure.type", string(req.Type)),
		attribute.Bool("closure.moderator", req.Moderator),
	)

	result, err := l.requestClosure(ctx, req)
	if err != nil && !domain.IsSettled(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "closure failed")
	}
	return result, err
}

func (l *LifecycleManager) requestClosure(ctx context.Context, req ClosureRequest) (ClosureResult, error) {
	log := logger.Ctx(ctx).With().Str("match_id", req.MatchID).Logger()

	target, err := req.Type.TargetStatus()
	if err != nil {
		return ClosureResult{}, fmt.Errorf("%w: %q", err, req.Type)
	}

	m, err := l.matches.GetMatch(ctx, req.MatchID)
	if err != nil {
		return ClosureResult{}, fmt.Errorf("load match %s: %w", req.MatchID, err)
	}

	if !req.Moderator && !m.HasParticipant(req.RequesterID) {
		return ClosureResult{}, domain.ErrNotParticipant
	}

	if m.Status.Terminal() {
		return l.alreadyClosed(ctx, m, req)
	}

	closure := domain.Closure{
		ClosedBy: req.RequesterID,
		Type:     req.Type,
		Reason:   req.Reason,
		ClosedAt: l.now(),
	}

	var giverReward, receiverReward int64
	if req.Type == domain.ClosureSuccessful {
		if giverReward, err = l.rewardAmount(ctx, domain.SourceMatchGiver); err != nil {
			return ClosureResult{}, err
		}
		if receiverReward, err = l.rewardAmount(ctx, domain.SourceMatchReceiver); err != nil {
			return ClosureResult{}, err
		}
		closure.GiverReward = giverReward
		closure.ReceiverReward = receiverReward
		closure.RewardAmount = giverReward + receiverReward
	}

	if _, err := m.Transition(closure); err != nil {
		return ClosureResult{}, err
	}

	err = l.matches.Transition(ctx, domain.TransitionRequest{
		MatchID:  m.ID,
		To:       target,
		Closure:  closure,
		Listings: listingEffect(target),
	})
	if errors.Is(err, domain.ErrAlreadyClosed) {
		// 并发关闭：以先提交者为准
		latest, getErr := l.matches.GetMatch(ctx, m.ID)
		if getErr != nil {
			return ClosureResult{}, fmt.Errorf("reload match %s: %w", m.ID, getErr)
		}
		return l.alreadyClosed(ctx, latest, req)
	}
	if err != nil {
		return ClosureResult{}, fmt.Errorf("transition match %s to %s: %w", m.ID, target, err)
	}

	m.Status = target
	m.Closure = &closure
	l.metrics.Closures.WithLabelValues(string(target)).Inc()
	log.Info().
		Str("status", string(target)).
		Str("closure_type", string(req.Type)).
		Str("closed_by", req.RequesterID).
		Msg("match closed")

	result := ClosureResult{Status: target}
	switch req.Type {
	case domain.ClosureSuccessful:
		issued, err := l.settle(ctx, m, giverReward, receiverReward)
		if err != nil {
			// 流转已提交，重投时会走补结算路径
			return result, err
		}
		result.RewardIssued = issued
	case domain.ClosureUnsuccessful:
		if _, err := l.pairs.Record(ctx, m, false); err != nil {
			log.Warn().Err(err).Msg("failed to record unsuccessful pair history")
		}
	}

	l.afterClose(ctx, m, req)
	return result, nil
}

// alreadyClosed 处理对终态撮合的关闭请求。
func (l *LifecycleManager) alreadyClosed(ctx context.Context, m *domain.Match, req ClosureRequest) (ClosureResult, error) {
	result := ClosureResult{Status: m.Status}
	if m.SettledSuccessfully() && req.Type == domain.ClosureSuccessful {
		// 沿用关闭时记录的金额，规则之后的变更不影响补结算
		issued, err := l.settle(ctx, m, m.Closure.GiverReward, m.Closure.ReceiverReward)
		if err != nil {
			return result, err
		}
		if issued {
			logger.Ctx(ctx).Warn().Str("match_id", m.ID).Msg("repaired incomplete settlement of closed match")
			l.afterClose(ctx, m, req)
		}
		result.RewardIssued = issued
	}
	return result, domain.ErrAlreadyClosed
}

// settle 发放双方奖励并记录成员对历史。每一步都是幂等的，可以安全重复执行。
func (l *LifecycleManager) settle(ctx context.Context, m *domain.Match, giverReward, receiverReward int64) (bool, error) {
	ctx, span := l.tracer.Start(ctx, "app.LifecycleManager.settle")
	defer span.End()

	_, giverIssued, err := l.ledger.Award(ctx, AwardRequest{
		UserID:      m.GiverID,
		SourceType:  domain.SourceMatchGiver,
		SourceID:    m.ID,
		Amount:      giverReward,
		Description: fmt.Sprintf("gave help in match %s", m.ID),
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	_, receiverIssued, err := l.ledger.Award(ctx, AwardRequest{
		UserID:      m.ReceiverID,
		SourceType:  domain.SourceMatchReceiver,
		SourceID:    m.ID,
		Amount:      receiverReward,
		Description: fmt.Sprintf("received help in match %s", m.ID),
	})
	if err != nil {
		span.RecordError(err)
		return giverIssued, err
	}

	if _, err := l.pairs.Record(ctx, m, true); err != nil {
		span.RecordError(err)
		return giverIssued || receiverIssued, err
	}
	return giverIssued || receiverIssued, nil
}

// rewardAmount 查询奖励规则，缺失时使用兜底金额。规则查询本身失败按临时错误返回。
func (l *LifecycleManager) rewardAmount(ctx context.Context, sourceType string) (int64, error) {
	if l.rules == nil {
		return l.cfg.fallbackReward(sourceType), nil
	}
	amount, found, err := l.rules.Lookup(ctx, sourceType)
	if err != nil {
		return 0, fmt.Errorf("lookup reward rule %s: %w", sourceType, err)
	}
	if !found {
		return l.cfg.fallbackReward(sourceType), nil
	}
	return amount, nil
}

// afterClose 关闭会话频道并通知对方；管理员关闭时通知双方。
func (l *LifecycleManager) afterClose(ctx context.Context, m *domain.Match, req ClosureRequest) {
	if l.channels != nil && m.ChannelID != "" {
		if err := l.channels.Close(ctx, m.ChannelID); err != nil {
			l.metrics.SideEffectFails.WithLabelValues("channel_close").Inc()
			logger.Ctx(ctx).Warn().Err(err).Str("match_id", m.ID).Msg("failed to close match channel")
		}
	}

	data := map[string]string{
		"match_id":     m.ID,
		"status":       string(m.Status),
		"closure_type": string(req.Type),
	}
	body := fmt.Sprintf("Your match was closed (%s).", req.Type)

	recipients := []string{m.GiverID, m.ReceiverID}
	if other, ok := m.OtherParticipant(req.RequesterID); ok {
		recipients = []string{other}
	}
	for _, userID := range recipients {
		notify(ctx, l.notifier, l.metrics, userID, domain.NotifyMatchClosed, "Match closed", body, data)
	}
}

func listingEffect(target domain.MatchStatus) domain.ListingEffect {
	switch target {
	case domain.MatchClosed:
		return domain.ListingsClose
	case domain.MatchCancelled:
		return domain.ListingsReopen
	default:
		return domain.ListingsUnchanged
	}
}
