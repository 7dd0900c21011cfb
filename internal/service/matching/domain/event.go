package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkKind 是队列中工作项的类型
type WorkKind string

const (
	WorkEntityCreated  WorkKind = "entity_created"
	WorkCommunitySweep WorkKind = "community_sweep"
	WorkMatchClosure   WorkKind = "match_closure"
)

// WorkItem 是撮合引擎消费的消息。投递语义是至少一次，处理方必须幂等。
type WorkItem struct {
	Kind        WorkKind        `json:"kind"`
	TraceID     string          `json:"traceId,omitempty"`
	CommunityID string          `json:"communityId"`
	Entity      *EntityRef      `json:"entity,omitempty"`
	Closure     *ClosureCommand `json:"closure,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
}

// ClosureCommand 是排队投递的关闭请求
type ClosureCommand struct {
	MatchID     string      `json:"matchId"`
	RequesterID string      `json:"requesterId"`
	Moderator   bool        `json:"moderator,omitempty"`
	Type        ClosureType `json:"type"`
	Reason      string      `json:"reason,omitempty"`
}

// Key 返回消息分区键：同一社区的工作项落在同一分区。
func (w *WorkItem) Key() []byte {
	return []byte(w.CommunityID)
}

// DecodeWorkItem 解析并校验一条工作项。无法处理的消息返回 ErrMalformedWorkItem。
func DecodeWorkItem(raw []byte) (*WorkItem, error) {
	var w WorkItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWorkItem, err)
	}
	switch w.Kind {
	case WorkEntityCreated:
		if w.Entity == nil || !w.Entity.Kind.Valid() || w.Entity.ID == "" {
			return nil, fmt.Errorf("%w: entity reference missing", ErrMalformedWorkItem)
		}
		if w.Entity.CommunityID == "" {
			w.Entity.CommunityID = w.CommunityID
		}
	case WorkCommunitySweep:
		if w.CommunityID == "" {
			return nil, fmt.Errorf("%w: community id missing", ErrMalformedWorkItem)
		}
	case WorkMatchClosure:
		if w.Closure == nil || w.Closure.MatchID == "" {
			return nil, fmt.Errorf("%w: closure command missing", ErrMalformedWorkItem)
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedWorkItem, w.Kind)
	}
	return &w, nil
}

// NotificationEvent 是发往通知主题的消息
type NotificationEvent struct {
	UserID string            `json:"userId"`
	Kind   string            `json:"kind"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// 通知类型
const (
	NotifyMatchCreated = "match_created"
	NotifyMatchClosed  = "match_closed"
)
