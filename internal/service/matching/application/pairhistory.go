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

// PairHistoryGuard 统计两名成员反复撮合并关闭的次数，用于发现疑似串通。
// 只做提示，不阻止撮合。
type PairHistoryGuard struct {
	repo    domain.PairHistoryRepository
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewPairHistoryGuard(repo domain.PairHistoryRepository, cfg Config, m *metrics.Metrics) *PairHistoryGuard {
	return &PairHistoryGuard{repo: repo, cfg: cfg, metrics: m, now: time.Now}
}

// Record 记录一次撮合关闭，并在达到阈值时打出告警。返回记录后是否被标记。
func (g *PairHistoryGuard) Record(ctx context.Context, match *domain.Match, success bool) (bool, error) {
	rec := &domain.PairRecord{
		ID:       uuid.NewString(),
		Pair:     domain.NewPairKey(match.GiverID, match.ReceiverID),
		MatchID:  match.ID,
		Success:  success,
		ClosedAt: g.now(),
	}
	if _, err := g.repo.Insert(ctx, rec); err != nil {
		return false, fmt.Errorf("record pair history for match %s: %w", match.ID, err)
	}

	count, flagged, err := g.check(ctx, match.GiverID, match.ReceiverID)
	if err != nil {
		return false, err
	}
	if flagged {
		g.metrics.PairsFlagged.Inc()
		logger.Ctx(ctx).Warn().
			Str("match_id", match.ID).
			Str("user_a", rec.Pair.Low).
			Str("user_b", rec.Pair.High).
			Int64("count", count).
			Int("window_days", g.cfg.PairWindowDays).
			Msg("repetitive pairing flagged for moderation")
	}
	return flagged, nil
}

// RepetitionCount 返回 windowDays 天内两人之间的关闭次数，与参数顺序无关。
func (g *PairHistoryGuard) RepetitionCount(ctx context.Context, userA, userB string, windowDays int) (int64, error) {
	since := g.now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	return g.repo.CountSince(ctx, domain.NewPairKey(userA, userB), since)
}

// Flagged 使用配置的窗口和阈值判断成员对是否可疑。
func (g *PairHistoryGuard) Flagged(ctx context.Context, userA, userB string) (bool, error) {
	_, flagged, err := g.check(ctx, userA, userB)
	return flagged, err
}

func (g *PairHistoryGuard) check(ctx context.Context, userA, userB string) (int64, bool, error) {
	count, err := g.RepetitionCount(ctx, userA, userB, g.cfg.PairWindowDays)
	if err != nil {
		return 0, false, err
	}
	return count, count >= int64(g.cfg.PairFlagThreshold), nil
}
