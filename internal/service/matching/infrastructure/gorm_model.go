package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// OfferModel 对应数据库中的 offers 表
type OfferModel struct {
	ID          string     `gorm:"primaryKey;size:36"`
	OwnerID     string     `gorm:"size:64;index"`
	CommunityID string     `gorm:"size:64;index:idx_offer_pool,priority:1"`
	Status      string     `gorm:"size:16;index:idx_offer_pool,priority:2"`
	Survey      string     `gorm:"type:text"`
	ExpiresAt   *time.Time `gorm:"default:null"`
	CreatedAt   time.Time  `gorm:"index:idx_offer_pool,priority:3"`
	UpdatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (OfferModel) TableName() string {
	return "offers"
}

// NeedModel 对应数据库中的 needs 表
type NeedModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	OwnerID     string    `gorm:"size:64;index"`
	CommunityID string    `gorm:"size:64;index:idx_need_pool,priority:1"`
	Status      string    `gorm:"size:16;index:idx_need_pool,priority:2"`
	Urgency     string    `gorm:"size:16"`
	Survey      string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index:idx_need_pool,priority:3"`
	UpdatedAt   time.Time
}

func (NeedModel) TableName() string {
	return "needs"
}

// MatchModel 对应 matches 表。(offer_id, need_id) 上的唯一索引是撮合幂等性的根基。
type MatchModel struct {
	ID             string     `gorm:"primaryKey;size:36"`
	CommunityID    string     `gorm:"size:64;index"`
	OfferID        string     `gorm:"size:36;uniqueIndex:uniq_match_pair,priority:1"`
	NeedID         string     `gorm:"size:36;uniqueIndex:uniq_match_pair,priority:2"`
	GiverID        string     `gorm:"size:64;index"`
	ReceiverID     string     `gorm:"size:64;index"`
	Score          float64    `gorm:"type:decimal(6,4)"`
	Reasons        string     `gorm:"type:text"` // JSON 数组
	Strategy       string     `gorm:"size:16"`
	Status         string     `gorm:"size:16;index"`
	ChannelID      string     `gorm:"size:128"`
	ClosedBy       string     `gorm:"size:64"`
	ClosureType    string     `gorm:"size:16"`
	ClosureReason  string     `gorm:"type:text"`
	RewardAmount   int64
	GiverReward    int64
	ReceiverReward int64
	ClosedAt       *time.Time `gorm:"default:null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (MatchModel) TableName() string {
	return "matches"
}

// LedgerEntryModel 对应只追加的 reward_ledger 表
type LedgerEntryModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	SourceType  string `gorm:"size:32;uniqueIndex:uniq_ledger_key,priority:1"`
	SourceID    string `gorm:"size:64;uniqueIndex:uniq_ledger_key,priority:2"`
	UserID      string `gorm:"size:64;uniqueIndex:uniq_ledger_key,priority:3;index"`
	Amount      int64
	Status      string `gorm:"size:8"`
	Description string `gorm:"size:255"`
	CreatedAt   time.Time
}

func (LedgerEntryModel) TableName() string {
	return "reward_ledger"
}

// PairHistoryModel 对应 pair_history 表，user_low <= user_high
type PairHistoryModel struct {
	ID       string    `gorm:"primaryKey;size:36"`
	UserLow  string    `gorm:"size:64;index:idx_pair_window,priority:1"`
	UserHigh string    `gorm:"size:64;index:idx_pair_window,priority:2"`
	ClosedAt time.Time `gorm:"index:idx_pair_window,priority:3"`
	MatchID  string    `gorm:"size:36;uniqueIndex"`
	Success  bool
}

func (PairHistoryModel) TableName() string {
	return "pair_history"
}

// RewardRuleModel 对应 reward_rules 表：每种来源类型一条金额规则
type RewardRuleModel struct {
	SourceType string `gorm:"primaryKey;size:32"`
	Amount     int64
	UpdatedAt  time.Time
}

func (RewardRuleModel) TableName() string {
	return "reward_rules"
}

// AutoMigrate 创建或更新撮合引擎用到的全部表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&OfferModel{},
		&NeedModel{},
		&MatchModel{},
		&LedgerEntryModel{},
		&PairHistoryModel{},
		&RewardRuleModel{},
	)
}
