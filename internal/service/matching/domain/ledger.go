package domain

import "time"

// 奖励来源类型。同一来源类型 + 来源ID 下，每个用户最多一条有效流水。
const (
	SourceMatchGiver    = "match_giver"
	SourceMatchReceiver = "match_receiver"
)

// LedgerEntry 是只追加的奖励流水
type LedgerEntry struct {
	ID          string
	UserID      string
	SourceType  string
	SourceID    string
	Amount      int64
	Status      LedgerStatus
	Description string
	CreatedAt   time.Time
}

// IdempotencyKey 即 (source type, source id, user id) 三元组
type IdempotencyKey struct {
	SourceType string
	SourceID   string
	UserID     string
}

// Key 返回流水的幂等键。
func (e *LedgerEntry) Key() IdempotencyKey {
	return IdempotencyKey{SourceType: e.SourceType, SourceID: e.SourceID, UserID: e.UserID}
}
