package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// 死信消息头，记录原始位置和失败原因
const (
	HeaderOriginalTopic     = "dlt-original-topic"
	HeaderOriginalPartition = "dlt-original-partition"
	HeaderOriginalOffset    = "dlt-original-offset"
	HeaderExceptionFqcn     = "dlt-exception-fqcn"
	HeaderExceptionMessage  = "dlt-exception-message"
)

// MessageWriter 是 *kafka.Writer 的最小子集，便于测试替换。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// DeadLetterPublisher 把无法处理的消息转发到死信主题。
type DeadLetterPublisher struct {
	writer MessageWriter
}

func NewDeadLetterPublisher(writer MessageWriter) *DeadLetterPublisher {
	return &DeadLetterPublisher{writer: writer}
}

// Publish 保留原始 key/value/header，并附加死信元数据。
func (p *DeadLetterPublisher) Publish(ctx context.Context, msg kafka.Message, cause error) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", errors.Cause(cause)))},
		kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
	)

	dlt := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
	if err := p.writer.WriteMessages(ctx, dlt); err != nil {
		return errors.Wrap(err, "publish dead letter")
	}
	return nil
}
