package adapter

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"neighborly/internal/pkg/mq"
	"neighborly/internal/service/matching/domain"
)

// NotificationKafkaAdapter 实现了 port.Notifier 接口，把通知写入通知主题。
type NotificationKafkaAdapter struct {
	writer mq.MessageWriter
}

// NewNotificationKafkaAdapter 创建一个新的通知生产者适配器。
func NewNotificationKafkaAdapter(writer mq.MessageWriter) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

// Send 以 userID 作为消息 key，同一用户的通知保持顺序。
func (a *NotificationKafkaAdapter) Send(ctx context.Context, userID, kind, title, body string, data map[string]string) error {
	event := domain.NotificationEvent{
		UserID: userID,
		Kind:   kind,
		Title:  title,
		Body:   body,
		Data:   data,
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal notification event")
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(userID), eventBytes)
}

// Close 关闭底层的Kafka writer。
func (a *NotificationKafkaAdapter) Close() error {
	if c, ok := a.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WorkQueueKafkaAdapter 实现了 port.WorkQueue 接口。
type WorkQueueKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewWorkQueueKafkaAdapter(writer mq.MessageWriter) *WorkQueueKafkaAdapter {
	return &WorkQueueKafkaAdapter{writer: writer}
}

// Enqueue 以社区ID作为消息 key。
func (a *WorkQueueKafkaAdapter) Enqueue(ctx context.Context, item *domain.WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "marshal work item")
	}
	if err := mq.ProduceMessage(ctx, a.writer, item.Key(), payload); err != nil {
		return errors.Wrapf(err, "enqueue %s work item", item.Kind)
	}
	return nil
}

func (a *WorkQueueKafkaAdapter) Close() error {
	if c, ok := a.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
