package dispatch

import (
	"context"
	"strings"

	xerrors "X402-Registry/internal/errors"
)

// Handler 处理从队列中取出的提案 ID。
type Handler func(ctx context.Context, proposalID string) error

// Producer 负责投递执行命令。
type Producer interface {
	Publish(ctx context.Context, proposalID string) error
	Close() error
}

// Consumer 负责消费执行命令。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 组合生产与消费能力。
type Queue interface {
	Producer
	Consumer
}

// QueueDispatcher 将已通过的提案投递到命令队列，由 Processor 异步执行。
type QueueDispatcher struct {
	producer Producer
}

// NewQueueDispatcher 基于 Producer 构造派发器。
func NewQueueDispatcher(producer Producer) *QueueDispatcher {
	return &QueueDispatcher{producer: producer}
}

// Dispatch 投递提案 ID。
func (d *QueueDispatcher) Dispatch(ctx context.Context, proposalID string) error {
	if d == nil || d.producer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置命令队列")
	}
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "提案 ID 不能为空")
	}
	if err := d.producer.Publish(ctx, proposalID); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "投递执行命令失败",
			xerrors.WithMetadata("proposal_id", proposalID))
	}
	return nil
}
