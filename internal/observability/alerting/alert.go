package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	xerrors "X402-Registry/internal/errors"
	"X402-Registry/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog      Channel = "log"
	ChannelDingTalk Channel = "dingtalk"
	ChannelSlack    Channel = "slack"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code        xerrors.Code
	Message     string
	Severity    xerrors.Severity
	Aggregate   string
	AggregateID string
	Metadata    map[string]string
	OccurredAt  time.Time
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Emit 根据错误码组装事件并派发，派发失败只记录日志。
func Emit(ctx context.Context, d Dispatcher, code xerrors.Code, cause error, aggregate, aggregateID string, metadata map[string]string) {
	if d == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	event := Event{
		Code:        code,
		Message:     message,
		Severity:    attrs.Severity,
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		Metadata:    metadata,
		OccurredAt:  time.Now().UTC(),
	}
	if err := d.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("aggregate", aggregate),
			slog.String("aggregate_id", aggregateID),
		)
	}
}

// LogNotifier 将告警写入审计日志。
type LogNotifier struct{}

// Channel 返回日志渠道。
func (LogNotifier) Channel() Channel { return ChannelLog }

// Notify 写入审计日志。
func (LogNotifier) Notify(_ context.Context, event Event) error {
	attrs := []any{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("aggregate", event.Aggregate),
		slog.String("aggregate_id", event.AggregateID),
		slog.Time("occurred_at", event.OccurredAt),
	}
	for _, k := range sortedKeys(event.Metadata) {
		attrs = append(attrs, slog.String(k, event.Metadata[k]))
	}
	logger.Audit().Error(event.Message, attrs...)
	return nil
}

// Webhook 以 JSON POST 的方式投递消息。
type Webhook struct {
	URL    string
	Client *http.Client
}

// Post 发送 payload。
func (w *Webhook) Post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}

// DingTalkNotifier 通过钉钉机器人发送告警。
type DingTalkNotifier struct {
	Webhook *Webhook
}

// Channel 返回钉钉渠道。
func (n *DingTalkNotifier) Channel() Channel { return ChannelDingTalk }

// Notify 发送钉钉消息。
func (n *DingTalkNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Webhook == nil || n.Webhook.URL == "" {
		logger.L().Warn("DingTalkNotifier 未正确配置，跳过发送", slog.String("aggregate_id", event.AggregateID))
		return nil
	}
	content := fmt.Sprintf("[%s] %s\n%s: %s\n%s", event.Severity, event.Code, event.Aggregate, event.AggregateID, event.Message)
	return n.Webhook.Post(ctx, map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	})
}

// SlackNotifier 通过 Slack incoming webhook 发送告警。
type SlackNotifier struct {
	Webhook   *Webhook
	ChannelID string
}

// Channel 返回 Slack 渠道。
func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

// Notify 发送 Slack 消息。
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Webhook == nil || n.Webhook.URL == "" {
		logger.L().Warn("SlackNotifier 未正确配置，跳过发送", slog.String("aggregate_id", event.AggregateID))
		return nil
	}
	payload := map[string]string{
		"text": fmt.Sprintf("*[%s]* %s - %s %s: %s", event.Severity, event.Code, event.Aggregate, event.AggregateID, event.Message),
	}
	if n.ChannelID != "" {
		payload["channel"] = n.ChannelID
	}
	return n.Webhook.Post(ctx, payload)
}

// Config 描述告警渠道配置。
type Config struct {
	DingTalkWebhook string `json:"dingtalk_webhook"`
	SlackWebhook    string `json:"slack_webhook"`
	SlackChannel    string `json:"slack_channel"`
}

// NewFromConfig 构造告警派发器，审计日志渠道始终启用。
func NewFromConfig(cfg Config) *FanoutDispatcher {
	notifiers := []Notifier{LogNotifier{}}
	if cfg.DingTalkWebhook != "" {
		notifiers = append(notifiers, &DingTalkNotifier{Webhook: &Webhook{URL: cfg.DingTalkWebhook}})
	}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, &SlackNotifier{Webhook: &Webhook{URL: cfg.SlackWebhook}, ChannelID: cfg.SlackChannel})
	}
	return NewFanout(notifiers...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
