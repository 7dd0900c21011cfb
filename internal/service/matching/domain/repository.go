package domain

import (
	"context"
	"time"
)

// ListingRepository 是成员目录的持久化接口：供给单和需求单的查询与状态变更。
// 所有列表查询都按 created_at ASC, id ASC 排序，撮合的并列裁决依赖该顺序。
type ListingRepository interface {
	GetOffer(ctx context.Context, id string) (*Offer, error)
	GetNeed(ctx context.Context, id string) (*Need, error)

	// ActiveOffers 返回社区内 active 且在 now 时未过期的供给单。limit<=0 表示不限。
	ActiveOffers(ctx context.Context, communityID string, now time.Time, limit int) ([]*Offer, error)
	// ActiveNeeds 返回社区内 active 的需求单。limit<=0 表示不限。
	ActiveNeeds(ctx context.Context, communityID string, limit int) ([]*Need, error)

	// UpdateOfferStatus 仅当当前状态为 from 时才更新，否则返回 ErrNotActive。
	UpdateOfferStatus(ctx context.Context, id string, from, to OfferStatus) error
	UpdateNeedStatus(ctx context.Context, id string, from, to NeedStatus) error

	// ActiveCommunities 返回至少存在一条 active 供给单或需求单的社区。
	ActiveCommunities(ctx context.Context) ([]string, error)
}

// ListingEffect 描述撮合流转时对两侧挂单的连带修改
type ListingEffect int

const (
	ListingsUnchanged ListingEffect = iota
	ListingsReopen                  // matched -> active，重新进入撮合池
	ListingsClose                   // matched -> closed
)

// TransitionRequest 是一次撮合状态流转
type TransitionRequest struct {
	MatchID  string
	To       MatchStatus
	Closure  Closure
	Listings ListingEffect
}

// MatchRepository 定义了撮合聚合的持久化接口。
type MatchRepository interface {
	// CreateMatch 在一个事务里插入撮合并把两侧挂单从 active 改为 matched。
	// (offer, need) 已存在撮合时返回已有记录且 inserted=false；
	// 任一侧已不是 active 时返回 ErrNotActive，不写入任何数据。
	CreateMatch(ctx context.Context, m *Match) (existing *Match, inserted bool, err error)

	GetMatch(ctx context.Context, id string) (*Match, error)

	// SetChannel 记录撮合对应的会话频道。
	SetChannel(ctx context.Context, matchID, channelID string) error

	// Transition 仅当撮合仍为 active 时执行流转，否则返回 ErrAlreadyClosed。
	Transition(ctx context.Context, req TransitionRequest) error
}

// LedgerRepository 是奖励流水的只追加存储。
type LedgerRepository interface {
	// Insert 追加一条流水；幂等键冲突时返回已存在的流水且 inserted=false。
	Insert(ctx context.Context, e *LedgerEntry) (stored *LedgerEntry, inserted bool, err error)
	// Balance 汇总用户所有有效流水。
	Balance(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*LedgerEntry, error)
}

// PairHistoryRepository 存储成员对的关闭事实。
type PairHistoryRepository interface {
	// Insert 以 MatchID 去重，重复投递只记录一次。
	Insert(ctx context.Context, r *PairRecord) (inserted bool, err error)
	CountSince(ctx context.Context, pair PairKey, since time.Time) (int64, error)
}
