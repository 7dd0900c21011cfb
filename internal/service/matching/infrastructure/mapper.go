package infrastructure

import (
	"encoding/json"

	"neighborly/internal/service/matching/domain"
)

// ToDomainOffer 将数据库模型转换为领域模型
func ToDomainOffer(model *OfferModel) *domain.Offer {
	if model == nil {
		return nil
	}
	return &domain.Offer{
		ID:          model.ID,
		OwnerID:     model.OwnerID,
		CommunityID: model.CommunityID,
		Survey:      []byte(model.Survey),
		Status:      domain.OfferStatus(model.Status),
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// FromDomainOffer 将领域模型转换为数据库模型
func FromDomainOffer(o *domain.Offer) *OfferModel {
	return &OfferModel{
		ID:          o.ID,
		OwnerID:     o.OwnerID,
		CommunityID: o.CommunityID,
		Status:      string(o.Status),
		Survey:      string(o.Survey),
		ExpiresAt:   o.ExpiresAt,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func ToDomainNeed(model *NeedModel) *domain.Need {
	if model == nil {
		return nil
	}
	return &domain.Need{
		ID:          model.ID,
		OwnerID:     model.OwnerID,
		CommunityID: model.CommunityID,
		Survey:      []byte(model.Survey),
		Urgency:     domain.UrgencyTier(model.Urgency),
		Status:      domain.NeedStatus(model.Status),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func FromDomainNeed(n *domain.Need) *NeedModel {
	return &NeedModel{
		ID:          n.ID,
		OwnerID:     n.OwnerID,
		CommunityID: n.CommunityID,
		Status:      string(n.Status),
		Urgency:     string(n.Urgency),
		Survey:      string(n.Survey),
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

// ToDomainMatch 将数据库模型转换为领域模型。关闭字段为空时 Closure 为 nil。
func ToDomainMatch(model *MatchModel) *domain.Match {
	if model == nil {
		return nil
	}
	var reasons []string
	if model.Reasons != "" {
		// 理由只用于展示，损坏时忽略
		_ = json.Unmarshal([]byte(model.Reasons), &reasons)
	}
	m := &domain.Match{
		ID:          model.ID,
		CommunityID: model.CommunityID,
		OfferID:     model.OfferID,
		NeedID:      model.NeedID,
		GiverID:     model.GiverID,
		ReceiverID:  model.ReceiverID,
		Score:       model.Score,
		Reasons:     reasons,
		Strategy:    domain.Strategy(model.Strategy),
		Status:      domain.MatchStatus(model.Status),
		ChannelID:   model.ChannelID,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
	if model.ClosureType != "" {
		c := &domain.Closure{
			ClosedBy:       model.ClosedBy,
			Type:           domain.ClosureType(model.ClosureType),
			Reason:         model.ClosureReason,
			RewardAmount:   model.RewardAmount,
			GiverReward:    model.GiverReward,
			ReceiverReward: model.ReceiverReward,
		}
		if model.ClosedAt != nil {
			c.ClosedAt = *model.ClosedAt
		}
		m.Closure = c
	}
	return m
}

// FromDomainMatch 将领域模型转换为数据库模型 (用于插入)
func FromDomainMatch(m *domain.Match) (*MatchModel, error) {
	reasons, err := json.Marshal(m.Reasons)
	if err != nil {
		return nil, err
	}
	model := &MatchModel{
		ID:          m.ID,
		CommunityID: m.CommunityID,
		OfferID:     m.OfferID,
		NeedID:      m.NeedID,
		GiverID:     m.GiverID,
		ReceiverID:  m.ReceiverID,
		Score:       m.Score,
		Reasons:     string(reasons),
		Strategy:    string(m.Strategy),
		Status:      string(m.Status),
		ChannelID:   m.ChannelID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Closure != nil {
		closedAt := m.Closure.ClosedAt
		model.ClosedBy = m.Closure.ClosedBy
		model.ClosureType = string(m.Closure.Type)
		model.ClosureReason = m.Closure.Reason
		model.RewardAmount = m.Closure.RewardAmount
		model.GiverReward = m.Closure.GiverReward
		model.ReceiverReward = m.Closure.ReceiverReward
		model.ClosedAt = &closedAt
	}
	return model, nil
}

func ToDomainLedgerEntry(model *LedgerEntryModel) *domain.LedgerEntry {
	if model == nil {
		return nil
	}
	return &domain.LedgerEntry{
		ID:          model.ID,
		UserID:      model.UserID,
		SourceType:  model.SourceType,
		SourceID:    model.SourceID,
		Amount:      model.Amount,
		Status:      domain.LedgerStatus(model.Status),
		Description: model.Description,
		CreatedAt:   model.CreatedAt,
	}
}

func FromDomainLedgerEntry(e *domain.LedgerEntry) *LedgerEntryModel {
	status := e.Status
	if status == "" {
		status = domain.LedgerValid
	}
	return &LedgerEntryModel{
		ID:          e.ID,
		SourceType:  e.SourceType,
		SourceID:    e.SourceID,
		UserID:      e.UserID,
		Amount:      e.Amount,
		Status:      string(status),
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}

func FromDomainPairRecord(r *domain.PairRecord) *PairHistoryModel {
	pair := domain.NewPairKey(r.Pair.Low, r.Pair.High)
	return &PairHistoryModel{
		ID:       r.ID,
		UserLow:  pair.Low,
		UserHigh: pair.High,
		ClosedAt: r.ClosedAt,
		MatchID:  r.MatchID,
		Success:  r.Success,
	}
}
