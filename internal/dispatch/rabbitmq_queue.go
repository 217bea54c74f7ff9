package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "X402-Registry/internal/errors"
	"X402-Registry/pkg/logger"
)

// DefaultRabbitMQQueue 是执行命令默认使用的队列名。
const DefaultRabbitMQQueue = "registry.governance.execute"

// executeMessageType 标记 AMQP 消息的类型，便于在管理界面区分。
const executeMessageType = "governance.execute"

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 通过 RabbitMQ 投递提案执行命令，每条消息的 body 与 MessageId 都是提案 ID。
type RabbitMQQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *slog.Logger
}

// NewRabbitMQQueue 建立连接、设置 QoS 并声明队列。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "rabbitmq url 不能为空")
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultRabbitMQQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "打开 RabbitMQ channel 失败")
	}
	if err := declareExecuteQueue(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &RabbitMQQueue{
		conn:   conn,
		ch:     ch,
		queue:  cfg.Queue,
		logger: logger.Named("dispatch.rabbitmq").With(slog.String("queue", cfg.Queue)),
	}, nil
}

func declareExecuteQueue(ch *amqp.Channel, cfg RabbitMQConfig) error {
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "设置 RabbitMQ prefetch 失败",
				xerrors.WithMetadata("queue", cfg.Queue))
		}
	}
	if _, err := ch.QueueDeclare(cfg.Queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "声明执行命令队列失败",
			xerrors.WithMetadata("queue", cfg.Queue))
	}
	return nil
}

// Publish 以持久化消息投递提案执行命令。
func (q *RabbitMQQueue) Publish(ctx context.Context, proposalID string) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	if strings.TrimSpace(proposalID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "提案 ID 不能为空")
	}
	err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    proposalID,
		Type:         executeMessageType,
		Timestamp:    time.Now().UTC(),
		Body:         []byte(proposalID),
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "投递执行命令失败",
			xerrors.WithMetadata("proposal_id", proposalID))
	}
	return nil
}

// Consume 以手动确认方式消费执行命令，直到 ctx 取消或 broker 关闭投递通道。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅执行命令队列失败")
	}

	var closed sync.Once
	drained := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						closed.Do(func() { close(drained) })
						return
					}
					settleDelivery(ctx, q.logger, handler, d)
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	case <-drained:
		wg.Wait()
		return ErrQueueClosed
	}
}

// settleDelivery 调用 handler 后确认消息：空消息直接丢弃，失败的消息重新入队。
func settleDelivery(ctx context.Context, log *slog.Logger, handler Handler, d amqp.Delivery) {
	proposalID := strings.TrimSpace(string(d.Body))
	if proposalID == "" {
		log.Warn("丢弃空的执行命令", slog.Uint64("delivery_tag", d.DeliveryTag))
		_ = d.Ack(false)
		return
	}
	if err := handler(ctx, proposalID); err != nil {
		log.Warn("执行命令处理失败，重新入队",
			slog.String("proposal_id", proposalID),
			slog.Bool("redelivered", d.Redelivered),
			slog.Any("error", err),
		)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Close 关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
