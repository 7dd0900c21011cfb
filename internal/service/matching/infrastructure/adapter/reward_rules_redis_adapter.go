package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"neighborly/internal/pkg/logger"
	"neighborly/internal/service/matching/domain/port"
)

const (
	rewardRuleKeyPrefix = "neighborly:reward_rule:"
	// 规则不存在时写入的占位值
	rewardRuleMissing = "-"
)

// CachedRewardRules 在 port.RewardRules 前加一层 Redis 读缓存。
// Redis 不可用时直接回源，缓存故障不影响结算。
type CachedRewardRules struct {
	next   port.RewardRules
	client *goredis.Client
	ttl    time.Duration
}

// NewCachedRewardRules 创建一个带缓存的规则读取器。
func NewCachedRewardRules(next port.RewardRules, client *goredis.Client, ttl time.Duration) *CachedRewardRules {
	return &CachedRewardRules{next: next, client: client, ttl: ttl}
}

func rewardRuleKey(sourceType string) string {
	return fmt.Sprintf("%s%s", rewardRuleKeyPrefix, sourceType)
}

func (c *CachedRewardRules) Lookup(ctx context.Context, sourceType string) (int64, bool, error) {
	key := rewardRuleKey(sourceType)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == rewardRuleMissing {
			return 0, false, nil
		}
		amount, convErr := strconv.ParseInt(cached, 10, 64)
		if convErr == nil {
			return amount, true, nil
		}
		logger.Ctx(ctx).Warn().Str("key", key).Str("value", cached).Msg("discarding unreadable cached reward rule")
	case errors.Is(err, goredis.Nil):
	default:
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("reward rule cache unavailable, reading through")
	}

	amount, found, err := c.next.Lookup(ctx, sourceType)
	if err != nil {
		return 0, false, err
	}

	value := rewardRuleMissing
	if found {
		value = strconv.FormatInt(amount, 10)
	}
	if setErr := c.client.Set(ctx, key, value, c.ttl).Err(); setErr != nil {
		logger.Ctx(ctx).Warn().Err(setErr).Str("key", key).Msg("failed to cache reward rule")
	}
	return amount, found, nil
}

// Invalidate 删除某种来源类型的缓存，规则修改后调用。
func (c *CachedRewardRules) Invalidate(ctx context.Context, sourceType string) error {
	return errors.Wrap(c.client.Del(ctx, rewardRuleKey(sourceType)).Err(), "invalidate reward rule")
}
