package domain

import "time"

// EntityKind 区分供给单和需求单
type EntityKind string

const (
	KindOffer EntityKind = "offer"
	KindNeed  EntityKind = "need"
)

// Opposite 返回撮合时需要搜索的另一侧类型。
func (k EntityKind) Opposite() EntityKind {
	if k == KindOffer {
		return KindNeed
	}
	return KindOffer
}

// Valid 报告 k 是否为已知类型。
func (k EntityKind) Valid() bool {
	return k == KindOffer || k == KindNeed
}

// EntityRef 指向一条供给单或需求单
type EntityRef struct {
	Kind        EntityKind `json:"kind"`
	ID          string     `json:"id"`
	CommunityID string     `json:"communityId"`
}

// Offer 是供给单（富余物品）
type Offer struct {
	ID          string
	OwnerID     string
	CommunityID string
	Survey      []byte // 结构化问卷的原始 JSON
	Status      OfferStatus
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired 报告供给单在 now 时是否已过期。
func (o *Offer) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// Matchable 只有 active 且未过期的供给单可以参与撮合。
func (o *Offer) Matchable(now time.Time) bool {
	return o.Status == OfferActive && !o.Expired(now)
}

// Need 是需求单
type Need struct {
	ID          string
	OwnerID     string
	CommunityID string
	Survey      []byte
	Urgency     UrgencyTier
	Status      NeedStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Matchable 只有 active 的需求单可以参与撮合。
func (n *Need) Matchable() bool {
	return n.Status == NeedActive
}
