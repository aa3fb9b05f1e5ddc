package db

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type fakePurger struct {
	mu    sync.Mutex
	calls []int
	n     int
	err   error
}

var _ SessionPurger = (*fakePurger)(nil)

func (f *fakePurger) ClearOldFavoriteSessions(_ context.Context, daysOld int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, daysOld)
	return f.n, f.err
}

func (f *fakePurger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger(buf *syncBuffer, level zapcore.Level) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(buf),
		level,
	)
	return zap.New(core)
}

func TestStartFavoriteSessionCleaner_Success(t *testing.T) {
	purger := &fakePurger{n: 3}
	var buf syncBuffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartFavoriteSessionCleaner(ctx, purger, 10*time.Millisecond, 30, bufferLogger(&buf, zapcore.InfoLevel))

	time.Sleep(200 * time.Millisecond)
	cancel()

	if purger.callCount() == 0 {
		t.Fatal("cleaner never ran")
	}
	purger.mu.Lock()
	days := purger.calls[0]
	purger.mu.Unlock()
	if days != 30 {
		t.Errorf("daysOld = %d; want 30", days)
	}
	if out := buf.String(); !strings.Contains(out, "cleaned favorite sessions") {
		t.Errorf("expected info log, got:\n%s", out)
	}
}

func TestStartFavoriteSessionCleaner_ErrorLogged(t *testing.T) {
	purger := &fakePurger{err: fmt.Errorf("disk fail")}
	var buf syncBuffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartFavoriteSessionCleaner(ctx, purger, 10*time.Millisecond, 30, bufferLogger(&buf, zapcore.ErrorLevel))

	time.Sleep(200 * time.Millisecond)
	cancel()

	out := buf.String()
	if !strings.Contains(out, "failed to clean favorite sessions") {
		t.Errorf("expected error log, got:\n%s", out)
	}
}

func TestStartFavoriteSessionCleaner_CancelBeforeTicker(t *testing.T) {
	purger := &fakePurger{}

	ctx, cancel := context.WithCancel(context.Background())

	StartFavoriteSessionCleaner(ctx, purger, 100*time.Millisecond, 30, zap.NewNop())
	cancel()

	time.Sleep(50 * time.Millisecond)

	if n := purger.callCount(); n != 0 {
		t.Errorf("purger called %d times after cancel", n)
	}
}
