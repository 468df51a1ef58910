package zap

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/theory-cloud/cvsite/pkg/observability"
)

type recordingNotifier struct {
	mu      sync.Mutex
	entries []observability.LogEntry
	calls   int
	err     error

	block <-chan struct{}
}

func (n *recordingNotifier) Notify(_ context.Context, entry observability.LogEntry) error {
	if n.block != nil {
		<-n.block
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.err != nil {
		return n.err
	}
	n.entries = append(n.entries, entry)
	return nil
}

type fakeSNSClient struct {
	mu   sync.Mutex
	last *sns.PublishInput
	err  error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func TestZapLogger_NotifiesOnlyErrorsWithScope(t *testing.T) {
	notifier := &recordingNotifier{}
	logger, _ := newBufferedLogger(t, observability.LoggerConfig{}, WithErrorNotifier(notifier))

	scoped := logger.WithRunID("run-1").WithStage("synthesize").WithField("k", "base")
	scoped.Warn("not sent")
	scoped.Error("stage failed", map[string]any{"k": "call", "exit_code": 1})

	if err := logger.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.entries) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.entries))
	}
	e := notifier.entries[0]
	if e.Message != "stage failed" || e.RunID != "run-1" || e.Stage != "synthesize" {
		t.Fatalf("unexpected entry: %#v", e)
	}
	if e.Fields["k"] != "call" || e.Fields["exit_code"] != "1" {
		t.Fatalf("expected call fields to win: %#v", e.Fields)
	}
}

func TestZapLogger_NotifierRetriesThenMarksUnhealthy(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("throttled")}
	logger, _ := newBufferedLogger(t, observability.LoggerConfig{},
		WithErrorNotifier(notifier), WithNotifyAttempts(2, 0))

	logger.Error("boom")
	if err := logger.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	notifier.mu.Lock()
	calls := notifier.calls
	notifier.mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected two attempts, got %d", calls)
	}
	if logger.IsHealthy() {
		t.Fatal("expected unhealthy after notifier failure")
	}
	if stats := logger.GetStats(); stats.ErrorCount != 1 || stats.LastError != "throttled" {
		t.Fatalf("unexpected stats: %#v", stats)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestZapLogger_DropsWhenBufferFull(t *testing.T) {
	block := make(chan struct{})
	notifier := &recordingNotifier{block: block}
	logger, _ := newBufferedLogger(t, observability.LoggerConfig{BufferSize: 1}, WithErrorNotifier(notifier))

	logger.Error("e1")
	logger.Error("e2")
	logger.Error("e3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := logger.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	close(block)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if logger.GetStats().EntriesDropped == 0 {
		t.Fatalf("expected drops, got %#v", logger.GetStats())
	}

	before := logger.core.entriesDropped.Load()
	logger.core.enqueue(observability.LogEntry{})
	if logger.core.entriesDropped.Load() != before+1 {
		t.Fatal("expected enqueue after close to count as dropped")
	}
}

func TestZapLogger_CloseRightAfterErrorReturns(t *testing.T) {
	for i := 0; i < 200; i++ {
		notifier := &recordingNotifier{}
		logger, _ := newBufferedLogger(t, observability.LoggerConfig{BufferSize: 4}, WithErrorNotifier(notifier))
		logger.Error("boom")

		done := make(chan error, 1)
		go func() { done <- logger.Close() }()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Close: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Close did not return on iteration %d", i)
		}
	}
}

func TestSNSNotifier_PublishesSubjectWithStage(t *testing.T) {
	client := &fakeSNSClient{}
	n := NewSNSNotifier(client, "  arn:aws:sns:us-east-1:000000000000:cvsite  ", SNSNotifierOptions{
		Subject: "cv\r\nsite",
		Context: map[string]string{"repository": "acme/site"},
	})

	err := n.Notify(context.Background(), observability.LogEntry{
		Level:   "error",
		Message: "boom",
		Stage:   "build",
		Fields:  map[string]any{"payload": strings.Repeat("x", 300*1024)},
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if *client.last.TopicArn != "arn:aws:sns:us-east-1:000000000000:cvsite" {
		t.Fatalf("unexpected topic: %s", *client.last.TopicArn)
	}
	if *client.last.Subject != "cvsite: build" {
		t.Fatalf("unexpected subject: %q", *client.last.Subject)
	}
	if len(*client.last.Message) > maxMessageLen {
		t.Fatalf("expected truncated message, len=%d", len(*client.last.Message))
	}
	if !strings.Contains(*client.last.Message, `"repository":"acme/site"`) {
		t.Fatalf("expected context in message: %.200s", *client.last.Message)
	}
}

func TestSNSNotifier_Errors(t *testing.T) {
	var nilNotifier *snsNotifier
	if err := nilNotifier.Notify(context.Background(), observability.LogEntry{}); err == nil {
		t.Fatal("expected error for nil notifier")
	}
	if err := NewSNSNotifier(&fakeSNSClient{}, "", SNSNotifierOptions{}).Notify(context.Background(), observability.LogEntry{}); err == nil {
		t.Fatal("expected error for empty topic")
	}
	failing := NewSNSNotifier(&fakeSNSClient{err: errors.New("denied")}, "arn:aws:sns:us-east-1:000000000000:t", SNSNotifierOptions{})
	if err := failing.Notify(context.Background(), observability.LogEntry{}); err == nil || err.Error() != "denied" {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestWithEnvironmentErrorNotifications(t *testing.T) {
	client := &fakeSNSClient{}
	env := map[string]string{"ERROR_NOTIFICATIONS_TOPIC_ARN": "arn:aws:sns:us-east-1:000000000000:t"}
	cfg := DefaultEnvironmentErrorNotifications()
	cfg.Lookup = func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	cfg.NewClient = func(context.Context) (SNSPublisher, error) { return client, nil }

	logger, _ := newBufferedLogger(t, observability.LoggerConfig{}, WithEnvironmentErrorNotifications(context.Background(), cfg))
	logger.WithStage("deploy").Error("deploy failed")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.last == nil || *client.last.Subject != "cvsite pipeline failure: deploy" {
		t.Fatalf("expected publish through env notifier, got %#v", client.last)
	}
}

func TestWithEnvironmentErrorNotifications_NoTopicOrClientError(t *testing.T) {
	cfg := DefaultEnvironmentErrorNotifications()
	cfg.Lookup = func(string) (string, bool) { return "", false }
	cfg.NewClient = func(context.Context) (SNSPublisher, error) {
		t.Fatal("client must not be built without a topic")
		return nil, nil
	}
	logger, _ := newBufferedLogger(t, observability.LoggerConfig{}, WithEnvironmentErrorNotifications(context.Background(), cfg))
	if logger.core.notifier != nil {
		t.Fatal("expected no notifier")
	}

	cfg.Lookup = func(string) (string, bool) { return "arn:aws:sns:us-east-1:000000000000:t", true }
	cfg.NewClient = func(context.Context) (SNSPublisher, error) { return nil, errors.New("no credentials") }
	if _, err := NewZapLogger(observability.LoggerConfig{}, WithEnvironmentErrorNotifications(context.Background(), cfg)); err == nil {
		t.Fatal("expected client error to fail construction")
	}
}
