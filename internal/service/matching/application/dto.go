package application

import "neighborly/internal/service/matching/domain"

// ClosureRequest 是关闭撮合用例的输入数据
type ClosureRequest struct {
	MatchID     string
	RequesterID string
	Moderator   bool
	Type        domain.ClosureType
	Reason      string
}

// ClosureResult 是关闭撮合用例的输出数据
type ClosureResult struct {
	Status       domain.MatchStatus
	RewardIssued bool
}

// SweepReport 汇总一次社区批量撮合的结果
type SweepReport struct {
	CommunityID string
	Considered  int // 打过分的 (offer, need) 对
	Eligible    int // 达到阈值的对
	Created     int
	Skipped     int // 一侧已被本轮更高分的对占用，或已存在撮合
	Failed      int
}

// ToClosureRequest 从队列中的关闭命令转换为应用层请求DTO
func ToClosureRequest(cmd *domain.ClosureCommand) ClosureRequest {
	return ClosureRequest{
		MatchID:     cmd.MatchID,
		RequesterID: cmd.RequesterID,
		Moderator:   cmd.Moderator,
		Type:        cmd.Type,
		Reason:      cmd.Reason,
	}
}
