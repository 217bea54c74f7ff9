package governance

import "context"

// Executor 应用一个已通过的提案。ExecuteProposal 必须幂等。
type Executor interface {
	ExecuteProposal(ctx context.Context, proposalID string) error
}

// Dispatcher 接收已通过提案的执行请求。
type Dispatcher interface {
	Dispatch(ctx context.Context, proposalID string) error
}

// InlineDispatcher 在调用方协程内同步执行提案。
type InlineDispatcher struct {
	Executor Executor
}

// Dispatch 实现 Dispatcher 接口。
func (d InlineDispatcher) Dispatch(ctx context.Context, proposalID string) error {
	return d.Executor.ExecuteProposal(ctx, proposalID)
}

// DispatcherFunc 允许使用普通函数作为 Dispatcher。
type DispatcherFunc func(ctx context.Context, proposalID string) error

// Dispatch 实现 Dispatcher 接口。
func (f DispatcherFunc) Dispatch(ctx context.Context, proposalID string) error {
	return f(ctx, proposalID)
}
