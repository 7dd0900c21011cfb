package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"neighborly/internal/service/matching/domain"
)

// GormLedgerRepository 是只追加奖励流水的 GORM 实现
type GormLedgerRepository struct {
	db *gorm.DB
}

func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Insert 依赖 uniq_ledger_key 去重：冲突时不写入，返回已存在的流水。
func (r *GormLedgerRepository) Insert(ctx context.Context, e *domain.LedgerEntry) (*domain.LedgerEntry, bool, error) {
	model := FromDomainLedgerEntry(e)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now()
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if res.Error != nil {
		return nil, false, errors.Wrap(res.Error, "insert ledger entry")
	}
	if res.RowsAffected > 0 {
		return ToDomainLedgerEntry(model), true, nil
	}

	var existing LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ? AND user_id = ?", e.SourceType, e.SourceID, e.UserID).
		First(&existing).Error
	if err != nil {
		return nil, false, errors.Wrap(err, "load existing ledger entry")
	}
	return ToDomainLedgerEntry(&existing), false, nil
}

func (r *GormLedgerRepository) Balance(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&LedgerEntryModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND status = ?", userID, string(domain.LedgerValid)).
		Scan(&sum).Error
	if err != nil {
		return 0, errors.Wrapf(err, "sum ledger of %s", userID)
	}
	return sum, nil
}

func (r *GormLedgerRepository) ListByUser(ctx context.Context, userID string) ([]*domain.LedgerEntry, error) {
	var models []LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list ledger of %s", userID)
	}
	out := make([]*domain.LedgerEntry, 0, len(models))
	for i := range models {
		out = append(out, ToDomainLedgerEntry(&models[i]))
	}
	return out, nil
}

// Void 把一条流水作废。流水本身不删除，余额不再计入。
func (r *GormLedgerRepository) Void(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&LedgerEntryModel{}).
		Where("id = ?", id).
		Update("status", string(domain.LedgerVoid))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "void ledger entry %s", id)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GormPairHistoryRepository 存储成员对的关闭事实
type GormPairHistoryRepository struct {
	db *gorm.DB
}

func NewGormPairHistoryRepository(db *gorm.DB) *GormPairHistoryRepository {
	return &GormPairHistoryRepository{db: db}
}

func (r *GormPairHistoryRepository) Insert(ctx context.Context, rec *domain.PairRecord) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(FromDomainPairRecord(rec))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "insert pair history")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormPairHistoryRepository) CountSince(ctx context.Context, pair domain.PairKey, since time.Time) (int64, error) {
	pair = domain.NewPairKey(pair.Low, pair.High)
	var count int64
	err := r.db.WithContext(ctx).Model(&PairHistoryModel{}).
		Where("user_low = ? AND user_high = ? AND closed_at >= ?", pair.Low, pair.High, since).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count pair history")
	}
	return count, nil
}

// GormRewardRules 从 reward_rules 表读取奖励金额
type GormRewardRules struct {
	db *gorm.DB
}

func NewGormRewardRules(db *gorm.DB) *GormRewardRules {
	return &GormRewardRules{db: db}
}

func (r *GormRewardRules) Lookup(ctx context.Context, sourceType string) (int64, bool, error) {
	var model RewardRuleModel
	err := r.db.WithContext(ctx).Where("source_type = ?", sourceType).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "lookup reward rule %s", sourceType)
	}
	return model.Amount, true, nil
}

// SetRule 新增或覆盖一条奖励规则。
func (r *GormRewardRules) SetRule(ctx context.Context, sourceType string, amount int64) error {
	model := &RewardRuleModel{SourceType: sourceType, Amount: amount, UpdatedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(model).Error
	return errors.Wrapf(err, "set reward rule %s", sourceType)
}
