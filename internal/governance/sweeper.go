package governance

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval 是关闭过期提案的默认周期。
const DefaultSweepInterval = time.Minute

// RunSweeper 周期性调用 ScheduleProposalClosures，直到 ctx 取消。
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("提案关闭巡检已启动", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("提案关闭巡检已停止")
			return
		case <-ticker.C:
			closed, err := e.ScheduleProposalClosures(ctx)
			if err != nil {
				e.logger.Error("提案关闭巡检失败", slog.Any("error", err))
				continue
			}
			if closed > 0 {
				e.logger.Info("已关闭过期提案", slog.Int("count", closed))
			}
		}
	}
}
