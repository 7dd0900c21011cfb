package application

import (
	"time"

	"neighborly/internal/service/matching/domain"
)

// 奖励规则表缺少对应行时的兜底金额
const (
	DefaultGiverReward    int64 = 10
	DefaultReceiverReward int64 = 5
)

// Config 是撮合引擎的全部可调参数。通过构造函数显式传入，不依赖全局变量。
type Config struct {
	// EligibilityThreshold 撮合的最低兼容度
	EligibilityThreshold float64
	// PairFlagThreshold 窗口期内同一对成员的关闭次数达到该值即标记
	PairFlagThreshold int
	// PairWindowDays 成员对重复度统计窗口（天）
	PairWindowDays int
	// MaxCandidates 每次撮合从每一侧最多读取的挂单数，0 表示不限
	MaxCandidates int
	// ProcessingTimeout 单个工作项的处理超时
	ProcessingTimeout time.Duration
	// RewardFallbacks 规则表缺失时按来源类型取的兜底金额
	RewardFallbacks map[string]int64
}

// DefaultConfig 返回生产默认值。
func DefaultConfig() Config {
	return Config{
		EligibilityThreshold: domain.DefaultEligibilityThreshold,
		PairFlagThreshold:    domain.DefaultPairFlagThreshold,
		PairWindowDays:       30,
		MaxCandidates:        500,
		ProcessingTimeout:    30 * time.Second,
		RewardFallbacks: map[string]int64{
			domain.SourceMatchGiver:    DefaultGiverReward,
			domain.SourceMatchReceiver: DefaultReceiverReward,
		},
	}
}

// fallbackReward 返回来源类型的兜底金额。
func (c Config) fallbackReward(sourceType string) int64 {
	if amount, ok := c.RewardFallbacks[sourceType]; ok {
		return amount
	}
	switch sourceType {
	case domain.SourceMatchGiver:
		return DefaultGiverReward
	case domain.SourceMatchReceiver:
		return DefaultReceiverReward
	}
	return 0
}
