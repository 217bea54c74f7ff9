// Package dispatch 提供提案执行命令的队列与后台处理器。
//
// 治理引擎在关闭提案后通过 QueueDispatcher 投递提案 ID，Processor 从队列消费并调用
// ExecuteProposal。队列支持内存、Redis 与 RabbitMQ 三种实现。
package dispatch
