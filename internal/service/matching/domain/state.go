package domain

// OfferStatus 定义了供给单的生命周期状态
type OfferStatus string

const (
	OfferDraft     OfferStatus = "draft"
	OfferActive    OfferStatus = "active"
	OfferMatched   OfferStatus = "matched"
	OfferClosed    OfferStatus = "closed"
	OfferCancelled OfferStatus = "cancelled"
	OfferExpired   OfferStatus = "expired" // 由外部定时任务置位，引擎只负责尊重该状态
)

// NeedStatus 定义了需求单的生命周期状态
type NeedStatus string

const (
	NeedActive    NeedStatus = "active"
	NeedMatched   NeedStatus = "matched"
	NeedClosed    NeedStatus = "closed"
	NeedCancelled NeedStatus = "cancelled"
)

// MatchStatus 定义了撮合的生命周期状态。除 active 外均为终态。
type MatchStatus string

const (
	MatchActive    MatchStatus = "active"
	MatchClosed    MatchStatus = "closed"
	MatchCancelled MatchStatus = "cancelled"
	MatchDisputed  MatchStatus = "disputed"
)

// Terminal 报告该状态是否已不可再流转。
func (s MatchStatus) Terminal() bool {
	return s != MatchActive
}

// ClosureType 是参与者请求关闭撮合时给出的关闭方式
type ClosureType string

const (
	ClosureSuccessful   ClosureType = "successful"
	ClosureUnsuccessful ClosureType = "unsuccessful"
	ClosureCancelled    ClosureType = "cancelled"
	ClosureDisputed     ClosureType = "disputed"
)

// TargetStatus 返回关闭方式对应的撮合终态。
func (c ClosureType) TargetStatus() (MatchStatus, error) {
	switch c {
	case ClosureSuccessful, ClosureUnsuccessful:
		return MatchClosed, nil
	case ClosureCancelled:
		return MatchCancelled, nil
	case ClosureDisputed:
		return MatchDisputed, nil
	default:
		return "", ErrInvalidClosure
	}
}

// Strategy 标记撮合是由哪种策略产生的
type Strategy string

const (
	StrategyCandidate Strategy = "candidate"
	StrategySweep     Strategy = "sweep"
)

// UrgencyTier 是需求单的紧急程度
type UrgencyTier string

const (
	UrgencyLow      UrgencyTier = "low"
	UrgencyNormal   UrgencyTier = "normal"
	UrgencyHigh     UrgencyTier = "high"
	UrgencyCritical UrgencyTier = "critical"
)

// LedgerStatus 奖励流水的状态。作废只翻转状态，不删除记录。
type LedgerStatus string

const (
	LedgerValid LedgerStatus = "valid"
	LedgerVoid  LedgerStatus = "void"
)
