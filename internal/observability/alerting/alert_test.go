package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	xerrors "X402-Registry/internal/errors"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingNotifier) Channel() Channel { return "test" }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestEmitBuildsEventFromCode(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewFanout(rec)

	Emit(context.Background(), d, xerrors.CodeChainFailure, errors.New("rpc down"), "multisig_transaction", "tx-1",
		map[string]string{"stage": "broadcast"})

	if len(rec.events) != 1 {
		t.Fatalf("expected one event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Code != xerrors.CodeChainFailure || ev.Message != "rpc down" || ev.AggregateID != "tx-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Severity != xerrors.SeverityCritical {
		t.Fatalf("unexpected severity %s", ev.Severity)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("boom")}
	d := NewFanout(rec, LogNotifier{})
	if err := d.Notify(context.Background(), Event{Code: xerrors.CodeUnknown}); err == nil {
		t.Fatalf("expected joined error")
	}
}

func TestSlackNotifierPostsWebhook(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &SlackNotifier{Webhook: &Webhook{URL: srv.URL, Client: srv.Client()}, ChannelID: "#ops"}
	err := n.Notify(context.Background(), Event{Code: "GOV_EXECUTION_FAILED", Aggregate: "proposal", AggregateID: "p-1", Message: "dispute missing"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if payload["channel"] != "#ops" || payload["text"] == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestWebhookReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &DingTalkNotifier{Webhook: &Webhook{URL: srv.URL}}
	if err := n.Notify(context.Background(), Event{Code: "X"}); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestNewFromConfigAlwaysLogs(t *testing.T) {
	d := NewFromConfig(Config{SlackWebhook: "http://example.invalid"})
	if _, ok := d.notifiers[ChannelLog]; !ok {
		t.Fatalf("log channel should always be registered")
	}
	if _, ok := d.notifiers[ChannelSlack]; !ok {
		t.Fatalf("slack channel should be registered")
	}
}
