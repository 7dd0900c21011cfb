package domain

import (
	"fmt"
	"math"
)

// 各因子的权重，总和为 1.0
const (
	WeightCategory = 0.50
	WeightTags     = 0.20
	WeightQuantity = 0.15
	WeightTime     = 0.10
	WeightDistance = 0.05

	// FlexibleWindowFactor 任一方时间灵活时的得分系数
	FlexibleWindowFactor = 0.7
	// MismatchWindowFactor 时间段不同（相邻时段）时的部分得分系数
	MismatchWindowFactor = 0.3

	// DefaultEligibilityThreshold 低于该分数的组合不会被撮合
	DefaultEligibilityThreshold = 0.4
)

// 匹配理由
const (
	ReasonCategoryMatch   = "category matches"
	ReasonCategoryPartial = "category partially matches (other)"
	ReasonTagsSatisfied   = "all compatibility requirements satisfied"
	ReasonNoRequirements  = "no compatibility requirements"
	ReasonQuantityEnough  = "sufficient quantity"
	ReasonTimeMatch       = "time window matches"
	ReasonTimeFlexible    = "flexible time window"
	ReasonTimeAdjacent    = "time windows differ"
	ReasonWithinCommunity = "within community distance"
	reasonTagsPartialFmt  = "%d of %d compatibility requirements satisfied"
	reasonQuantityPartFmt = "partial quantity (%s of %s)"
	categoryOther         = "other"
)

// ScoreResult 是一次兼容度打分的结果
type ScoreResult struct {
	Value    float64
	Reasons  []string
	Degraded bool // 至少一方问卷损坏，使用了默认值
}

// Eligible 报告分数是否达到撮合门槛。
func (r ScoreResult) Eligible(threshold float64) bool {
	return r.Value >= threshold
}

// Score 计算供给单与需求单的兼容度。纯函数，没有 I/O，对任何输入都有定义。
func Score(offer *Offer, need *Need) ScoreResult {
	offerSurvey, offerDegraded := ParseSurvey(offer.Survey)
	needSurvey, needDegraded := ParseSurvey(need.Survey)
	r := ScoreSurveys(offerSurvey, needSurvey, offer.CommunityID == need.CommunityID)
	r.Degraded = offerDegraded || needDegraded
	return r
}

// ScoreSurveys 在已解析的问卷上打分。
func ScoreSurveys(offer, need Survey, sameCommunity bool) ScoreResult {
	var (
		total    float64
		maxTotal float64
		reasons  []string
	)
	add := func(weight, earned float64, reason ...string) {
		maxTotal += weight
		total += earned
		reasons = append(reasons, reason...)
	}

	// 1. 品类
	switch {
	case offer.Category == need.Category:
		add(WeightCategory, WeightCategory, ReasonCategoryMatch)
	case offer.Category == categoryOther || need.Category == categoryOther:
		add(WeightCategory, WeightCategory/2, ReasonCategoryPartial)
	default:
		add(WeightCategory, 0)
	}

	// 2. 兼容性标签：任一方未声明标签即视为没有可违反的约束
	if len(offer.Tags) == 0 || len(need.Tags) == 0 {
		if len(need.Tags) == 0 {
			add(WeightTags, WeightTags, ReasonNoRequirements)
		} else {
			add(WeightTags, WeightTags, ReasonTagsSatisfied)
		}
	} else {
		have := make(map[string]struct{}, len(offer.Tags))
		for _, t := range offer.Tags {
			have[t] = struct{}{}
		}
		covered := 0
		for _, t := range need.Tags {
			if _, ok := have[t]; ok {
				covered++
			}
		}
		if covered == len(need.Tags) {
			add(WeightTags, WeightTags, ReasonTagsSatisfied)
		} else {
			add(WeightTags, WeightTags*float64(covered)/float64(len(need.Tags)),
				fmt.Sprintf(reasonTagsPartialFmt, covered, len(need.Tags)))
		}
	}

	// 3. 数量
	needQty := need.Quantity
	if needQty <= 0 {
		needQty = DefaultQuantity
	}
	if offer.Quantity >= needQty {
		add(WeightQuantity, WeightQuantity, ReasonQuantityEnough)
	} else {
		ratio := math.Max(0, offer.Quantity/needQty)
		add(WeightQuantity, WeightQuantity*ratio,
			fmt.Sprintf(reasonQuantityPartFmt, formatQty(offer.Quantity), formatQty(needQty)))
	}

	// 4. 时间段
	switch {
	case offer.TimeWindow == need.TimeWindow:
		add(WeightTime, WeightTime, ReasonTimeMatch)
	case offer.TimeWindow == WindowFlexible || need.TimeWindow == WindowFlexible:
		add(WeightTime, WeightTime*FlexibleWindowFactor, ReasonTimeFlexible)
	default:
		add(WeightTime, WeightTime*MismatchWindowFactor, ReasonTimeAdjacent)
	}

	// 5. 距离：同社区即视为满足出行距离
	if sameCommunity {
		add(WeightDistance, WeightDistance, ReasonWithinCommunity)
	} else {
		add(WeightDistance, 0)
	}

	value := 0.0
	if maxTotal > 0 {
		value = total / maxTotal
	}
	value = math.Min(1, math.Max(0, value))
	return ScoreResult{Value: value, Reasons: reasons}
}

func formatQty(q float64) string {
	if q == math.Trunc(q) {
		return fmt.Sprintf("%d", int64(q))
	}
	return fmt.Sprintf("%.2f", q)
}
