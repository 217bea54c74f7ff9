package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	xerrors "X402-Registry/internal/errors"
	"X402-Registry/internal/observability/alerting"
	"X402-Registry/pkg/logger"
)

// DefaultMaxAttempts 是单个提案执行命令的默认最大尝试次数。
const DefaultMaxAttempts = 5

// Executor 定义处理器所需的提案执行能力。
type Executor interface {
	ExecuteProposal(ctx context.Context, proposalID string) error
}

// Processor 从命令队列消费提案 ID 并交给 Executor 执行。
type Processor struct {
	executor    Executor
	consumer    Consumer
	producer    Producer
	workerCount int
	maxAttempts int
	logger      *slog.Logger
	alerter     alerting.Dispatcher

	mu       sync.Mutex
	attempts map[string]int
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithMaxAttempts 设置可重试错误的最大尝试次数。
func WithMaxAttempts(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(d alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = d
	}
}

// NewProcessor 构造 Processor。producer 用于可重试失败的重新投递。
func NewProcessor(executor Executor, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		maxAttempts: DefaultMaxAttempts,
		attempts:    make(map[string]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("dispatch")
	}
	return p
}

// Start 启动消费循环，阻塞直到 ctx 取消或队列出错。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置命令消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, proposalID string) error {
	err := p.executor.ExecuteProposal(ctx, proposalID)
	attempt := p.recordAttempt(proposalID, err == nil)
	if err == nil {
		p.logger.Debug("提案执行命令完成", slog.String("proposal_id", proposalID), slog.Int("attempt", attempt))
		return nil
	}

	retryable := xerrors.RetryableError(err)
	terminal := !retryable || attempt >= p.maxAttempts
	logger.Audit().Warn("提案执行命令失败",
		slog.String("proposal_id", proposalID),
		slog.String("error", err.Error()),
		slog.String("error_code", string(xerrors.CodeOf(err))),
		slog.Int("attempt", attempt),
		slog.Bool("terminal", terminal),
	)
	if terminal {
		p.forget(proposalID)
		stage := "terminal"
		if !retryable {
			stage = "non_retryable"
		}
		p.emitAlert(ctx, proposalID, err, stage, attempt)
		return nil
	}
	if p.producer == nil {
		return err
	}
	if pubErr := p.producer.Publish(ctx, proposalID); pubErr != nil {
		wrapped := xerrors.Wrap(xerrors.CodeQueueFailure, pubErr, "重新投递执行命令失败",
			xerrors.WithMetadata("proposal_id", proposalID))
		logger.L().Error("重新投递执行命令失败", slog.Any("error", wrapped))
		p.emitAlert(ctx, proposalID, wrapped, "republish", attempt)
		return nil
	}
	p.logger.Debug("执行命令已重新排队", slog.String("proposal_id", proposalID), slog.Int("attempt", attempt))
	return nil
}

func (p *Processor) recordAttempt(proposalID string, done bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.attempts[proposalID] + 1
	if done {
		delete(p.attempts, proposalID)
	} else {
		p.attempts[proposalID] = n
	}
	return n
}

func (p *Processor) forget(proposalID string) {
	p.mu.Lock()
	delete(p.attempts, proposalID)
	p.mu.Unlock()
}

func (p *Processor) emitAlert(ctx context.Context, proposalID string, cause error, stage string, attempt int) {
	code := xerrors.CodeOf(cause)
	if code == xerrors.CodeUnknown {
		code = xerrors.CodeQueueFailure
	}
	alerting.Emit(ctx, p.alerter, code, cause, "proposal", proposalID, map[string]string{
		"stage":   stage,
		"attempt": strconv.Itoa(attempt),
	})
}
