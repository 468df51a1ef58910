package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/theory-cloud/cvsite/pkg/observability"
	obszap "github.com/theory-cloud/cvsite/pkg/observability/zap"
)

func TestLogger_DefaultIsNoOp(t *testing.T) {
	got := Logger()
	if got == nil {
		t.Fatal("expected Logger() to return a non-nil logger")
	}
	if !got.IsHealthy() {
		t.Fatal("expected default logger to be healthy")
	}
}

func TestLogger_SetLogger(t *testing.T) {
	stub := observability.NewTestLogger()
	SetLogger(stub)
	if Logger() != stub {
		t.Fatal("expected Logger() to return the logger set via SetLogger")
	}

	SetLogger(nil)
	if Logger() == nil || Logger() == stub {
		t.Fatal("expected Logger() to reset to a fresh no-op logger")
	}
}

func TestSetup_InstallsZapLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var buf bytes.Buffer
	notify := obszap.DefaultEnvironmentErrorNotifications()
	notify.Lookup = func(string) (string, bool) { return "", false }

	l, err := Setup(context.Background(), observability.LoggerConfig{Level: "info"}, notify, obszap.WithOutput(&buf))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if Logger() != l {
		t.Fatal("expected Setup to install the logger globally")
	}
	Logger().Info("configured")
	if !bytes.Contains(buf.Bytes(), []byte(`"message":"configured"`)) {
		t.Fatalf("expected output through zap, got %q", buf.String())
	}

	if _, err := Setup(context.Background(), observability.LoggerConfig{Format: "xml"}, notify); err == nil {
		t.Fatal("expected invalid format to fail")
	}
}
