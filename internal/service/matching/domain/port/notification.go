package port

import "context"

// Notifier 是通知分发的出站端口。发送是尽力而为的，失败不能阻塞撮合流转。
type Notifier interface {
	Send(ctx context.Context, userID, kind, title, body string, data map[string]string) error
}
