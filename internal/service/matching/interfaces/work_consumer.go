package interfaces

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"neighborly/internal/pkg/logger"
	"neighborly/internal/pkg/mq"
	"neighborly/internal/service/matching/domain"
)

// MessageReader 是 *kafka.Reader 的最小子集
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// WorkHandler 处理一条已解码的工作项
type WorkHandler interface {
	HandleWorkItem(ctx context.Context, item *domain.WorkItem) error
}

// DeadLetterSink 接收无法处理的原始消息
type DeadLetterSink interface {
	Publish(ctx context.Context, msg kafka.Message, cause error) error
}

// RetryPolicy 控制临时失败的原地重试。临时失败不设次数上限，
// 间隔按指数增长并封顶在 MaxDelay。
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy 返回默认的重试策略。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// WorkConsumer 是一个驱动适配器，它监听工作队列并驱动撮合应用服务。
// 语义是至少一次：只有在处理完成、或结果已经落定时才提交 offset。
// 死信主题只接收无法解码的消息，临时失败一直原地重试。
type WorkConsumer struct {
	reader  MessageReader
	handler WorkHandler
	dlt     DeadLetterSink
	retry   RetryPolicy
}

// NewWorkConsumer 创建一个新的工作队列消费者。
func NewWorkConsumer(reader MessageReader, handler WorkHandler, dlt DeadLetterSink, retry RetryPolicy) *WorkConsumer {
	return &WorkConsumer{reader: reader, handler: handler, dlt: dlt, retry: retry}
}

// Run 阻塞消费直到 ctx 取消。
func (c *WorkConsumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("✅ work consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 work consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		if !c.process(ctx, msg) {
			// ctx 取消，消息未提交，重启后重投
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

// process 返回 false 表示消息不可提交。
func (c *WorkConsumer) process(parent context.Context, msg kafka.Message) bool {
	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	log := logger.Ctx(ctx).With().
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	item, err := domain.DecodeWorkItem(msg.Value)
	if err != nil {
		log.Warn().Err(err).Msg("malformed work item, routing to dead letter topic")
		return c.deadLetter(ctx, msg, err)
	}

	for attempt := 0; ; attempt++ {
		err = c.handler.HandleWorkItem(ctx, item)
		switch {
		case err == nil:
			return true
		case domain.IsSettled(err):
			log.Debug().Err(err).Str("kind", string(item.Kind)).Msg("work item already settled")
			return true
		case domain.IsRejection(err):
			log.Warn().Err(err).Str("kind", string(item.Kind)).Msg("work item rejected")
			return true
		}

		delay := c.retry.delay(attempt)
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", delay).Msg("transient failure, retrying work item")
		if !sleepCtx(parent, delay) {
			return false
		}
	}
}

// deadLetter 转发到死信主题；转发失败时不提交。
func (c *WorkConsumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) bool {
	for attempt := 0; ; attempt++ {
		err := c.dlt.Publish(ctx, msg, cause)
		if err == nil {
			return true
		}
		logger.Ctx(ctx).Error().Err(err).Int("attempt", attempt+1).Msg("failed to publish dead letter")
		if !sleepCtx(ctx, c.retry.delay(attempt)) {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
