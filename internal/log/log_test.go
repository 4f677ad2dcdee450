package log

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"Error", slog.LevelError, false},
		{"", 0, true},
		{"trace", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	l := Nop()
	l.Debug(ctx, "x")
	l.Info(ctx, "x", "k", "v")
	l.Warn(ctx, "x")
	l.Error(ctx, nil, "x")
	if l.With("k", "v") == nil {
		t.Fatal("With returned nil")
	}
	if err := l.Sync(); err != nil {
		t.Fatalf("Sync = %v", err)
	}
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()).(nopLogger); !ok {
		t.Fatal("empty context should yield Nop")
	}
	if _, ok := FromContext(nil).(nopLogger); !ok {
		t.Fatal("nil context should yield Nop")
	}

	l, _ := New(Options{Writer: &discard{}})
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("FromContext did not return the stored logger")
	}
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
