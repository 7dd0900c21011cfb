package interfaces

import (
	"context"
	"time"

	"neighborly/internal/pkg/logger"
)

// CommunitySource 列出当前存在 active 挂单的社区
type CommunitySource interface {
	ActiveCommunities(ctx context.Context) ([]string, error)
}

// SweepEnqueuer 为社区排入一次批量撮合
type SweepEnqueuer interface {
	ScheduleSweep(ctx context.Context, communityID string) error
}

// SweepScheduler 按固定周期为每个活跃社区排入批量撮合工作项
type SweepScheduler struct {
	communities CommunitySource
	enqueuer    SweepEnqueuer
	interval    time.Duration
}

func NewSweepScheduler(communities CommunitySource, enqueuer SweepEnqueuer, interval time.Duration) *SweepScheduler {
	return &SweepScheduler{communities: communities, enqueuer: enqueuer, interval: interval}
}

// Run 阻塞直到 ctx 取消。
func (s *SweepScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick 执行一轮调度，返回成功排入的社区数。
func (s *SweepScheduler) Tick(ctx context.Context) int {
	communities, err := s.communities.ActiveCommunities(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to list active communities")
		return 0
	}
	scheduled := 0
	for _, c := range communities {
		if err := s.enqueuer.ScheduleSweep(ctx, c); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("community", c).Msg("failed to schedule sweep")
			continue
		}
		scheduled++
	}
	logger.Ctx(ctx).Debug().Int("communities", len(communities)).Int("scheduled", scheduled).Msg("sweep tick")
	return scheduled
}
