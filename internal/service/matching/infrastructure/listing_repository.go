package infrastructure

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"neighborly/internal/service/matching/domain"
)

// GormListingRepository 是 ListingRepository 的 GORM 实现
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository 创建一个新的 GORM 仓储实例
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

// SaveOffer 插入或整体覆盖一条供给单。
func (r *GormListingRepository) SaveOffer(ctx context.Context, o *domain.Offer) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(FromDomainOffer(o)).Error, "save offer")
}

// SaveNeed 插入或整体覆盖一条需求单。
func (r *GormListingRepository) SaveNeed(ctx context.Context, n *domain.Need) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(FromDomainNeed(n)).Error, "save need")
}

func (r *GormListingRepository) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	var model OfferModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get offer %s", id)
	}
	return ToDomainOffer(&model), nil
}

func (r *GormListingRepository) GetNeed(ctx context.Context, id string) (*domain.Need, error) {
	var model NeedModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get need %s", id)
	}
	return ToDomainNeed(&model), nil
}

// ActiveOffers 按 created_at ASC, id ASC 返回可撮合的供给单，limit 截取最早创建的部分。
func (r *GormListingRepository) ActiveOffers(ctx context.Context, communityID string, now time.Time, limit int) ([]*domain.Offer, error) {
	var models []OfferModel
	q := r.db.WithContext(ctx).
		Where("community_id = ? AND status = ?", communityID, string(domain.OfferActive)).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list active offers in %s", communityID)
	}
	out := make([]*domain.Offer, 0, len(models))
	for i := range models {
		out = append(out, ToDomainOffer(&models[i]))
	}
	return out, nil
}

func (r *GormListingRepository) ActiveNeeds(ctx context.Context, communityID string, limit int) ([]*domain.Need, error) {
	var models []NeedModel
	q := r.db.WithContext(ctx).
		Where("community_id = ? AND status = ?", communityID, string(domain.NeedActive)).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list active needs in %s", communityID)
	}
	out := make([]*domain.Need, 0, len(models))
	for i := range models {
		out = append(out, ToDomainNeed(&models[i]))
	}
	return out, nil
}

func (r *GormListingRepository) UpdateOfferStatus(ctx context.Context, id string, from, to domain.OfferStatus) error {
	return compareAndSetStatus(ctx, r.db, &OfferModel{}, id, string(from), string(to))
}

func (r *GormListingRepository) UpdateNeedStatus(ctx context.Context, id string, from, to domain.NeedStatus) error {
	return compareAndSetStatus(ctx, r.db, &NeedModel{}, id, string(from), string(to))
}

// compareAndSetStatus 仅当当前状态为 from 时更新。
// 行不存在返回 ErrNotFound，状态不符返回 ErrNotActive。
func compareAndSetStatus(ctx context.Context, db *gorm.DB, model interface{}, id, from, to string) error {
	res := db.WithContext(ctx).Model(model).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update status of %s", id)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return errors.Wrapf(err, "check existence of %s", id)
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrNotActive
}

// ActiveCommunities 返回至少有一条 active 挂单的社区，按ID排序。
func (r *GormListingRepository) ActiveCommunities(ctx context.Context) ([]string, error) {
	var fromOffers, fromNeeds []string
	db := r.db.WithContext(ctx)
	if err := db.Model(&OfferModel{}).Where("status = ?", string(domain.OfferActive)).
		Distinct().Pluck("community_id", &fromOffers).Error; err != nil {
		return nil, errors.Wrap(err, "list offer communities")
	}
	if err := db.Model(&NeedModel{}).Where("status = ?", string(domain.NeedActive)).
		Distinct().Pluck("community_id", &fromNeeds).Error; err != nil {
		return nil, errors.Wrap(err, "list need communities")
	}

	seen := make(map[string]struct{}, len(fromOffers)+len(fromNeeds))
	for _, c := range append(fromOffers, fromNeeds...) {
		seen[c] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}
