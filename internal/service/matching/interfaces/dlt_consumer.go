package interfaces

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"neighborly/internal/pkg/logger"
	"neighborly/internal/pkg/mq"
)

// DltConsumer 监听死信主题并记录日志
type DltConsumer struct {
	reader MessageReader
}

func NewDltConsumer(reader MessageReader) *DltConsumer {
	return &DltConsumer{reader: reader}
}

func (a *DltConsumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("✅ DLT consumer started")
	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 DLT consumer shutting down")
				return nil
			}
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		logDeadLetter(ctx, msg)

		// 记录日志即视为处理完成
		if err := a.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit dead letter")
		}
	}
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", mq.HeaderValue(msg.Headers, mq.HeaderOriginalTopic)).
		Str("original_partition", mq.HeaderValue(msg.Headers, mq.HeaderOriginalPartition)).
		Str("original_offset", mq.HeaderValue(msg.Headers, mq.HeaderOriginalOffset)).
		Str("exception_fqcn", mq.HeaderValue(msg.Headers, mq.HeaderExceptionFqcn)).
		Str("exception_message", mq.HeaderValue(msg.Headers, mq.HeaderExceptionMessage)).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("🚨 dead letter message received")
}
