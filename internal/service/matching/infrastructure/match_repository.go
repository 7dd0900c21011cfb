package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"neighborly/internal/service/matching/domain"
)

// errPairExists 用于在事务内发现 (offer, need) 冲突时触发回滚
var errPairExists = errors.New("match pair exists")

// GormMatchRepository 是 MatchRepository 的 GORM 实现
type GormMatchRepository struct {
	db *gorm.DB
}

func NewGormMatchRepository(db *gorm.DB) *GormMatchRepository {
	return &GormMatchRepository{db: db}
}

// CreateMatch 在同一事务里占用两侧挂单并插入撮合。
func (r *GormMatchRepository) CreateMatch(ctx context.Context, m *domain.Match) (*domain.Match, bool, error) {
	if existing, err := r.findByPair(ctx, m.OfferID, m.NeedID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	model, err := FromDomainMatch(m)
	if err != nil {
		return nil, false, errors.Wrap(err, "encode match")
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claim(ctx, tx, &OfferModel{}, m.OfferID, string(domain.OfferActive), string(domain.OfferMatched)); err != nil {
			return err
		}
		if err := claim(ctx, tx, &NeedModel{}, m.NeedID, string(domain.NeedActive), string(domain.NeedMatched)); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(model)
		if res.Error != nil {
			return errors.Wrap(res.Error, "insert match")
		}
		if res.RowsAffected == 0 {
			return errPairExists
		}
		return nil
	})
	switch {
	case err == nil:
		return m, true, nil
	case errors.Is(err, errPairExists):
		// 并发写入者抢先插入了同一对
		existing, findErr := r.findByPair(ctx, m.OfferID, m.NeedID)
		if findErr != nil {
			return nil, false, domain.ErrDuplicate
		}
		return existing, false, nil
	default:
		return nil, false, err
	}
}

// claim 把挂单从 active 改为 matched，不存在也视为不可撮合。
func claim(ctx context.Context, tx *gorm.DB, model interface{}, id, from, to string) error {
	err := compareAndSetStatus(ctx, tx, model, id, from, to)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotActive
	}
	return err
}

func (r *GormMatchRepository) findByPair(ctx context.Context, offerID, needID string) (*domain.Match, error) {
	var model MatchModel
	err := r.db.WithContext(ctx).Where("offer_id = ? AND need_id = ?", offerID, needID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "find match by pair")
	}
	return ToDomainMatch(&model), nil
}

func (r *GormMatchRepository) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	var model MatchModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get match %s", id)
	}
	return ToDomainMatch(&model), nil
}

func (r *GormMatchRepository) SetChannel(ctx context.Context, matchID, channelID string) error {
	res := r.db.WithContext(ctx).Model(&MatchModel{}).
		Where("id = ?", matchID).
		Updates(map[string]interface{}{"channel_id": channelID, "updated_at": time.Now()})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "set channel of match %s", matchID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Transition 条件更新撮合状态，并在同一事务里处理两侧挂单。
func (r *GormMatchRepository) Transition(ctx context.Context, req domain.TransitionRequest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closedAt := req.Closure.ClosedAt
		if closedAt.IsZero() {
			closedAt = time.Now()
		}
		res := tx.Model(&MatchModel{}).
			Where("id = ? AND status = ?", req.MatchID, string(domain.MatchActive)).
			Updates(map[string]interface{}{
				"status":          string(req.To),
				"closed_by":       req.Closure.ClosedBy,
				"closure_type":    string(req.Closure.Type),
				"closure_reason":  req.Closure.Reason,
				"reward_amount":   req.Closure.RewardAmount,
				"giver_reward":    req.Closure.GiverReward,
				"receiver_reward": req.Closure.ReceiverReward,
				"closed_at":       closedAt,
				"updated_at":      time.Now(),
			})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "transition match %s", req.MatchID)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&MatchModel{}).Where("id = ?", req.MatchID).Count(&count).Error; err != nil {
				return errors.Wrap(err, "check match existence")
			}
			if count == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrAlreadyClosed
		}

		var offerTo, needTo string
		switch req.Listings {
		case domain.ListingsClose:
			offerTo, needTo = string(domain.OfferClosed), string(domain.NeedClosed)
		case domain.ListingsReopen:
			offerTo, needTo = string(domain.OfferActive), string(domain.NeedActive)
		default:
			return nil
		}

		var model MatchModel
		if err := tx.Select("offer_id", "need_id").Where("id = ?", req.MatchID).First(&model).Error; err != nil {
			return errors.Wrap(err, "load match listings")
		}
		// 只移动仍处于 matched 的挂单，被外部下架的保持原状
		if err := tx.Model(&OfferModel{}).
			Where("id = ? AND status = ?", model.OfferID, string(domain.OfferMatched)).
			Updates(map[string]interface{}{"status": offerTo, "updated_at": time.Now()}).Error; err != nil {
			return errors.Wrap(err, "update offer listing")
		}
		if err := tx.Model(&NeedModel{}).
			Where("id = ? AND status = ?", model.NeedID, string(domain.NeedMatched)).
			Updates(map[string]interface{}{"status": needTo, "updated_at": time.Now()}).Error; err != nil {
			return errors.Wrap(err, "update need listing")
		}
		return nil
	})
}
