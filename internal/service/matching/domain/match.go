package domain

import (
	"time"

	"github.com/google/uuid"
)

// Match 把一条供给单和一条需求单配成一对。(OfferID, NeedID) 全局唯一。
type Match struct {
	ID          string
	CommunityID string
	OfferID     string
	NeedID      string
	GiverID     string // 供给单所有者
	ReceiverID  string // 需求单所有者
	Score       float64
	Reasons     []string
	Strategy    Strategy
	Status      MatchStatus
	ChannelID   string
	Closure     *Closure
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Closure 记录撮合是如何、由谁关闭的
type Closure struct {
	ClosedBy     string
	Type         ClosureType
	Reason       string
	RewardAmount int64 // GiverReward + ReceiverReward

	// 关闭时确定的双方奖励金额，补结算沿用该金额
	GiverReward    int64
	ReceiverReward int64
	ClosedAt       time.Time
}

// NewMatch 工厂函数：为一对已通过打分的供给/需求创建撮合实体
func NewMatch(offer *Offer, need *Need, result ScoreResult, strategy Strategy, now time.Time) *Match {
	reasons := make([]string, len(result.Reasons))
	copy(reasons, result.Reasons)
	return &Match{
		ID:          uuid.NewString(),
		CommunityID: offer.CommunityID,
		OfferID:     offer.ID,
		NeedID:      need.ID,
		GiverID:     offer.OwnerID,
		ReceiverID:  need.OwnerID,
		Score:       result.Value,
		Reasons:     reasons,
		Strategy:    strategy,
		Status:      MatchActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HasParticipant 报告 userID 是否为撮合的一方。
func (m *Match) HasParticipant(userID string) bool {
	return userID != "" && (m.GiverID == userID || m.ReceiverID == userID)
}

// OtherParticipant 返回另一方的用户ID。userID 不是参与者时返回 false。
func (m *Match) OtherParticipant(userID string) (string, bool) {
	switch userID {
	case m.GiverID:
		return m.ReceiverID, true
	case m.ReceiverID:
		return m.GiverID, true
	default:
		return "", false
	}
}

// Transition 校验并计算一次关闭请求的目标状态。
// 终态的撮合返回 ErrAlreadyClosed，不做任何修改。
func (m *Match) Transition(closure Closure) (MatchStatus, error) {
	target, err := closure.Type.TargetStatus()
	if err != nil {
		return "", err
	}
	if m.Status.Terminal() {
		return "", ErrAlreadyClosed
	}
	return target, nil
}

// SettledSuccessfully 报告撮合是否已以 successful 方式关闭。
func (m *Match) SettledSuccessfully() bool {
	return m.Status == MatchClosed && m.Closure != nil && m.Closure.Type == ClosureSuccessful
}
