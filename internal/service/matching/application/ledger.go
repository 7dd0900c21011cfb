package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"neighborly/internal/pkg/logger"
	"neighborly/internal/pkg/metrics"
	"neighborly/internal/service/matching/domain"
)

// AwardRequest 是一次奖励发放请求
type AwardRequest struct {
	UserID      string
	SourceType  string
	SourceID    string
	Amount      int64
	Description string
}

// RewardLedger 负责"某个事件是否已经发过奖励"这一不变量。
// 幂等性完全依赖存储层对 (source type, source id, user id) 的唯一约束。
type RewardLedger struct {
	repo    domain.LedgerRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRewardLedger(repo domain.LedgerRepository, m *metrics.Metrics) *RewardLedger {
	return &RewardLedger{repo: repo, metrics: m, now: time.Now}
}

// Award 追加一条奖励流水。已发放过时返回已存在的流水，awarded=false，不视为错误。
func (l *RewardLedger) Award(ctx context.Context, req AwardRequest) (*domain.LedgerEntry, bool, error) {
	if req.UserID == "" || req.SourceType == "" || req.SourceID == "" {
		return nil, false, fmt.Errorf("award: incomplete idempotency key %+v", req)
	}

	entry := &domain.LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
		Amount:      req.Amount,
		Status:      domain.LedgerValid,
		Description: req.Description,
		CreatedAt:   l.now(),
	}

	stored, inserted, err := l.repo.Insert(ctx, entry)
	if err != nil {
		return nil, false, fmt.Errorf("award %s/%s to %s: %w", req.SourceType, req.SourceID, req.UserID, err)
	}

	if !inserted {
		l.metrics.LedgerAwards.WithLabelValues("duplicate").Inc()
		logger.Ctx(ctx).Info().
			Str("user_id", req.UserID).
			Str("source_type", req.SourceType).
			Str("source_id", req.SourceID).
			Msg("reward already issued for this event")
		return stored, false, nil
	}

	l.metrics.LedgerAwards.WithLabelValues("awarded").Inc()
	return stored, true, nil
}

// Balance 返回用户所有有效流水的合计。
func (l *RewardLedger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.repo.Balance(ctx, userID)
}

// Entries 返回用户的全部流水（含已作废）。
func (l *RewardLedger) Entries(ctx context.Context, userID string) ([]*domain.LedgerEntry, error) {
	return l.repo.ListByUser(ctx, userID)
}
