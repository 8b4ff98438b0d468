package trigger

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"syncshot/internal/capture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTriggerer はテスト用の Triggerer 実装
type mockTriggerer struct {
	calls atomic.Int32
	err   error
}

func (m *mockTriggerer) TriggerCapture(_ context.Context) (capture.Trigger, error) {
	n := m.calls.Add(1)
	if m.err != nil {
		return capture.Trigger{}, m.err
	}
	return capture.Trigger{ID: "cap", Expected: int(n), Timestamp: time.Now()}, nil
}

func TestKeyboard_TriggersOnBlankLines(t *testing.T) {
	m := &mockTriggerer{}
	input := strings.NewReader("\nnot blank\n   \n\n")

	fired, err := Keyboard(context.Background(), input, m)
	require.NoError(t, err)

	assert.Equal(t, 3, fired)
	assert.Equal(t, int32(3), m.calls.Load())
}

func TestKeyboard_NoClientsDoesNotStop(t *testing.T) {
	m := &mockTriggerer{err: capture.ErrNoClientsConnected}

	fired, err := Keyboard(context.Background(), strings.NewReader("\n\n"), m)
	require.NoError(t, err)
	assert.Equal(t, 2, fired)
}

type blockingReader struct{ unblock chan struct{} }

func (b blockingReader) Read(_ []byte) (int, error) {
	<-b.unblock
	return 0, errors.New("closed")
}

func TestKeyboard_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := blockingReader{unblock: make(chan struct{})}
	defer close(r.unblock)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Keyboard(ctx, r, &mockTriggerer{})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル後に終了しませんでした")
	}
}

func TestInterval_TriggersUntilCancel(t *testing.T) {
	m := &mockTriggerer{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		Interval(ctx, 10*time.Millisecond, m)
	}()

	require.Eventually(t, func() bool { return m.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル後に終了しませんでした")
	}
}

func TestFire_ReturnsError(t *testing.T) {
	m := &mockTriggerer{err: capture.ErrNoClientsConnected}
	_, err := Fire(context.Background(), m)
	assert.ErrorIs(t, err, capture.ErrNoClientsConnected)
}
