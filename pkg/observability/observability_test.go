package observability

import (
	"context"
	"testing"
)

func TestNewNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	if !logger.IsHealthy() {
		t.Fatal("expected noop logger to be healthy")
	}
	if logger.WithRunID("r").WithStage("build").WithField("k", "v") != logger {
		t.Fatal("expected noop scoping to return the same logger")
	}
	if err := logger.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestTestLogger_Basics(t *testing.T) {
	logger := NewTestLogger()
	if !logger.IsHealthy() {
		t.Fatal("expected healthy test logger")
	}

	scoped := logger.WithRunID("01J0000000000000000000000").WithStage("build").WithField("k", "v")
	scoped.Info("stage started", map[string]any{"actions": 2})

	entries := logger.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != "info" || e.Message != "stage started" {
		t.Fatalf("unexpected entry: %#v", e)
	}
	if e.RunID != "01J0000000000000000000000" || e.Stage != "build" {
		t.Fatalf("unexpected scoping: %#v", e)
	}
	if e.Fields["k"] != "v" || e.Fields["actions"] != "2" {
		t.Fatalf("unexpected fields: %#v", e.Fields)
	}
	if got := logger.Messages("info"); len(got) != 1 || got[0] != "stage started" {
		t.Fatalf("unexpected messages: %v", got)
	}

	if logger.GetStats().EntriesLogged != 1 {
		t.Fatalf("expected EntriesLogged=1, got %d", logger.GetStats().EntriesLogged)
	}
	if !logger.GetStats().LastFlush.IsZero() {
		t.Fatal("expected no flush yet")
	}
	if err := logger.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	stats := logger.GetStats()
	if stats.FlushCount != 1 || stats.LastFlush.IsZero() {
		t.Fatalf("unexpected stats after flush: %#v", stats)
	}
}

func TestTestLogger_SanitizesSecrets(t *testing.T) {
	logger := NewTestLogger()
	logger.WithField("github_token", "ghp_secret").Warn("line\none")

	e := logger.Entries()[0]
	if e.Message != "lineone" {
		t.Fatalf("expected control characters stripped, got %q", e.Message)
	}
	if e.Fields["github_token"] != "[REDACTED]" {
		t.Fatalf("expected token redacted, got %#v", e.Fields)
	}
}

func TestTestLogger_CloseAppliesToDerivedLoggers(t *testing.T) {
	logger := NewTestLogger()
	derived := logger.WithStage("deploy")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if logger.IsHealthy() || derived.IsHealthy() {
		t.Fatal("expected closed loggers to be unhealthy")
	}
	derived.Error("ignored")
	if len(logger.Entries()) != 0 {
		t.Fatal("expected no entries after close")
	}
}

func TestTestLogger_FlushHonorsContextCancel(t *testing.T) {
	logger := NewTestLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := logger.Flush(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if logger.GetStats().FlushCount != 0 {
		t.Fatal("expected cancelled flush not to count")
	}
}

func TestTestLogger_NilReceiverClone(t *testing.T) {
	var nilLogger *TestLogger
	cloned := nilLogger.clone()
	if cloned == nil || cloned.core == nil {
		t.Fatal("expected clone() on nil receiver to return a usable logger")
	}
	cloned.Info("ok")
	if len(cloned.Entries()) != 1 {
		t.Fatal("expected cloned logger to record entries")
	}
}
