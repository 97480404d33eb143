package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestRedactsCredentials(t *testing.T) {
	log, logs := observed()
	log.With("component", "Store").Info("opened",
		"postgres_dsn", "postgres://u:p@db/trips",
		"Password", "hunter2",
		"table", "trip_events",
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries: want=1 got=%d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["postgres_dsn"] != "[REDACTED]" || fields["Password"] != "[REDACTED]" {
		t.Fatalf("credentials leaked: %v", fields)
	}
	if fields["table"] != "trip_events" || fields["component"] != "Store" {
		t.Fatalf("plain fields changed: %v", fields)
	}
}

func TestSanitizeOddKeyValues(t *testing.T) {
	got := sanitizeKVs([]interface{}{"token", "abc", "dangling"})
	if len(got) != 3 || got[1] != "[REDACTED]" || got[2] != "dangling" {
		t.Fatalf("got %v", got)
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		l.Debug("ready")
	}
}
