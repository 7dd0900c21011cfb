package port

import "context"

// RewardRules 是奖励规则表的出站端口。
// 规则不存在时 found=false，由调用方使用兜底金额。
type RewardRules interface {
	Lookup(ctx context.Context, sourceType string) (amount int64, found bool, err error)
}
