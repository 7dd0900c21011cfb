package domain

import "time"

// DefaultPairFlagThreshold 窗口期内同一对成员关闭次数达到该值即标记为可疑
const DefaultPairFlagThreshold = 5

// PairKey 是与顺序无关的成员对
type PairKey struct {
	Low  string
	High string
}

// NewPairKey 对两个用户ID排序，保证 (a,b) 与 (b,a) 得到相同的键。
func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// PairRecord 是一条撮合关闭事实，创建后不再修改
type PairRecord struct {
	ID       string
	Pair     PairKey
	MatchID  string
	Success  bool
	ClosedAt time.Time
}
