package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestRedactsSensitiveKeys(t *testing.T) {
	l, logs := observed()
	l.Info("login", "access_token", "abc", "Authorization", "Bearer xyz", "company", "acme")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["access_token"] != redacted {
		t.Errorf("access_token not redacted: %v", fields["access_token"])
	}
	if fields["Authorization"] != redacted {
		t.Errorf("Authorization not redacted: %v", fields["Authorization"])
	}
	if fields["company"] != "acme" {
		t.Errorf("company should pass through, got %v", fields["company"])
	}
}

func TestRedactsJWTShapedValues(t *testing.T) {
	l, logs := observed()
	l.Warn("odd", "value", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTYifQ.sig")

	if got := logs.All()[0].ContextMap()["value"]; got != redacted {
		t.Errorf("expected JWT-looking value redacted, got %v", got)
	}
}

func TestWithKeepsRedaction(t *testing.T) {
	l, logs := observed()
	l.With("secret", "s3cr3t").Error("boom")

	if got := logs.All()[0].ContextMap()["secret"]; got != redacted {
		t.Errorf("expected secret redacted, got %v", got)
	}
}

func TestOddKeyValues(t *testing.T) {
	out := sanitizeKVs([]any{"a", 1, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Errorf("unexpected sanitize result: %v", out)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	l, err := New("prod", "nonsense")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.SugaredLogger.Desugar().Core().Enabled(zap.DebugLevel) {
		t.Error("debug should be disabled at fallback level")
	}
}
