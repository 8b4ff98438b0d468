package capture

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// pendingCapture は Ledger 内部で保持する撮影リクエスト
type pendingCapture struct {
	id        string
	createdAt time.Time
	expected  map[SessionID]struct{}
	responded map[SessionID]struct{}
	departed  map[SessionID]struct{} // 応答前に切断されたセッション
	order     []SessionID            // expected のソート済み一覧
	artifacts []ArtifactHandle
	state     State
}

// remaining は応答も切断もしていない期待セッション数を返す
func (p *pendingCapture) remaining() int {
	return len(p.expected) - len(p.responded) - len(p.departed)
}

func (p *pendingCapture) snapshot() Request {
	req := Request{
		ID:        p.id,
		CreatedAt: p.createdAt,
		Expected:  append([]SessionID(nil), p.order...),
		Responded: sortedSessions(p.responded),
		Departed:  sortedSessions(p.departed),
		Artifacts: append([]ArtifactHandle(nil), p.artifacts...),
		State:     p.state,
	}
	return req
}

// Ledger は撮影リクエストごとの期待・応答・成果物を管理する
//
// ロックを持たないため、Coordinator の排他区間内から呼び出すこと。
type Ledger struct {
	captures map[string]*pendingCapture
	newID    func() (string, error)
	now      func() time.Time
}

// NewLedger は新しい Ledger を作成する
func NewLedger() *Ledger {
	return &Ledger{
		captures: make(map[string]*pendingCapture),
		newID:    newCaptureID,
		now:      time.Now,
	}
}

// newCaptureID は時刻順に並ぶ撮影IDを生成する
func newCaptureID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Open は expected を期待メンバーとする新しい撮影リクエストを開く
func (l *Ledger) Open(expected []SessionID) (Request, error) {
	if len(expected) == 0 {
		return Request{}, ErrInvalidRequest
	}

	id, err := l.newID()
	if err != nil {
		return Request{}, fmt.Errorf("撮影IDの生成に失敗: %w", err)
	}
	if _, exists := l.captures[id]; exists {
		return Request{}, fmt.Errorf("撮影IDが重複しています: %s", id)
	}

	p := &pendingCapture{
		id:        id,
		createdAt: l.now(),
		expected:  make(map[SessionID]struct{}, len(expected)),
		responded: make(map[SessionID]struct{}),
		departed:  make(map[SessionID]struct{}),
		artifacts: []ArtifactHandle{},
		state:     StatePending,
	}
	for _, session := range expected {
		p.expected[session] = struct{}{}
	}
	p.order = sortedSessions(p.expected)

	l.captures[id] = p
	return p.snapshot(), nil
}

// RecordResponse はセッションからの応答を記録する
//
// 未知のID、期待外のセッション、切断済みセッションは OutcomeUnknown を返して何もしない。
// 同じセッションの2回目以降の応答は最初の成果物を残したまま現在の状態を返す。
func (l *Ledger) RecordResponse(id string, session SessionID, artifact ArtifactHandle) (Outcome, Request) {
	p, exists := l.captures[id]
	if !exists || p.state != StatePending {
		return OutcomeUnknown, Request{}
	}
	if _, ok := p.expected[session]; !ok {
		return OutcomeUnknown, Request{}
	}
	if _, gone := p.departed[session]; gone {
		return OutcomeUnknown, Request{}
	}

	if _, dup := p.responded[session]; dup {
		return OutcomeStillPending, p.snapshot()
	}

	p.responded[session] = struct{}{}
	p.artifacts = append(p.artifacts, artifact)

	if p.remaining() == 0 {
		p.state = StateCompleted
		delete(l.captures, id)
		return OutcomeCompleted, p.snapshot()
	}

	return OutcomeStillPending, p.snapshot()
}

// RecordDisconnect はセッションの切断をすべての保留中リクエストに反映する
//
// 残りの未応答セッションがなくなったリクエストは、応答が1件以上あれば Completed、
// なければ Aborted となり、結果として返される。ID順にソートされる。
func (l *Ledger) RecordDisconnect(session SessionID) []Resolution {
	var resolved []Resolution

	for id, p := range l.captures {
		if _, ok := p.expected[session]; !ok {
			continue
		}
		if _, ok := p.responded[session]; ok {
			continue
		}
		if _, ok := p.departed[session]; ok {
			continue
		}

		p.departed[session] = struct{}{}
		if p.remaining() > 0 {
			continue
		}

		outcome := OutcomeAborted
		p.state = StateAborted
		if len(p.responded) > 0 {
			outcome = OutcomeCompleted
			p.state = StateCompleted
		}
		delete(l.captures, id)

		resolved = append(resolved, Resolution{ID: id, Outcome: outcome, Request: p.snapshot()})
	}

	sort.Slice(resolved, func(i, j int) bool { return resolved[i].ID < resolved[j].ID })
	return resolved
}

// Peek は保留中リクエストのスナップショットを返す
func (l *Ledger) Peek(id string) (Request, bool) {
	p, exists := l.captures[id]
	if !exists {
		return Request{}, false
	}
	return p.snapshot(), true
}

// Live は保留中リクエストのスナップショットを作成時刻順で返す
func (l *Ledger) Live() []Request {
	requests := make([]Request, 0, len(l.captures))
	for _, p := range l.captures {
		requests = append(requests, p.snapshot())
	}
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests
}

func sortedSessions(set map[SessionID]struct{}) []SessionID {
	sessions := make([]SessionID, 0, len(set))
	for session := range set {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i] < sessions[j] })
	return sessions
}
