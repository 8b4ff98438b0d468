package capture

import (
	"context"
	"errors"
	"sync"
)

// mockDispatcher はテスト用の Dispatcher 実装
type mockDispatcher struct {
	mu     sync.Mutex
	live   map[SessionID]bool
	fail   map[SessionID]bool
	sent   []SessionID
	cmds   []CaptureCommand
	onSend func(session SessionID, cmd CaptureCommand)
}

func newMockDispatcher(sessions ...SessionID) *mockDispatcher {
	d := &mockDispatcher{
		live: make(map[SessionID]bool),
		fail: make(map[SessionID]bool),
	}
	for _, s := range sessions {
		d.live[s] = true
	}
	return d
}

func (d *mockDispatcher) SendCaptureRequest(_ context.Context, session SessionID, cmd CaptureCommand) error {
	d.mu.Lock()
	hook := d.onSend
	if d.fail[session] {
		d.mu.Unlock()
		return errors.New("モック: 送信に失敗")
	}
	d.sent = append(d.sent, session)
	d.cmds = append(d.cmds, cmd)
	d.mu.Unlock()

	if hook != nil {
		hook(session, cmd)
	}
	return nil
}

func (d *mockDispatcher) LiveSessions() []SessionID {
	d.mu.Lock()
	defer d.mu.Unlock()

	sessions := make([]SessionID, 0, len(d.live))
	for s, ok := range d.live {
		if ok {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

func (d *mockDispatcher) setLive(session SessionID, live bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live[session] = live
}

func (d *mockDispatcher) setFail(session SessionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[session] = true
}

func (d *mockDispatcher) sentTo() []SessionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SessionID(nil), d.sent...)
}

// notification は mockNotifier が受け取った通知
type notification struct {
	captureID string
	artifacts []ArtifactHandle
}

// mockNotifier はテスト用の Notifier 実装
type mockNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

func (n *mockNotifier) NotifyProcessingReady(_ context.Context, captureID string, artifacts []ArtifactHandle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{captureID: captureID, artifacts: append([]ArtifactHandle(nil), artifacts...)})
	return n.err
}

func (n *mockNotifier) received() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}
