package port

import (
	"context"

	"neighborly/internal/service/matching/domain"
)

// WorkQueue 是工作项队列的出站端口。
type WorkQueue interface {
	Enqueue(ctx context.Context, item *domain.WorkItem) error
}
