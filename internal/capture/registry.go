package capture

import (
	"sort"
)

// Registry は接続中のクライアントセッションを管理する
//
// ロックを持たないため、Coordinator の排他区間内から呼び出すこと。
type Registry struct {
	live    map[SessionID]Identity // 接続中セッション → 識別子
	current map[Identity]SessionID // 識別子 → 現在のセッション
	frames  map[Identity]int       // 識別子ごとのフレーム番号
}

// NewRegistry は新しい Registry を作成する
func NewRegistry() *Registry {
	return &Registry{
		live:    make(map[SessionID]Identity),
		current: make(map[Identity]SessionID),
		frames:  make(map[Identity]int),
	}
}

// OnConnect はセッションを identity の現在のセッションとして登録する
//
// 同じ identity の古いセッションは切断イベントが届くまで接続中として残る。
func (r *Registry) OnConnect(identity Identity, session SessionID) {
	r.live[session] = identity
	r.current[identity] = session
}

// OnDisconnect はセッションを接続中の集合から取り除く
//
// 実際に接続中だった場合のみ true を返す（重複した切断イベント対策）。
func (r *Registry) OnDisconnect(session SessionID) bool {
	identity, exists := r.live[session]
	if !exists {
		return false
	}

	delete(r.live, session)
	if r.current[identity] == session {
		delete(r.current, identity)
	}

	return true
}

// CurrentSessionFor は identity の現在のセッションを返す
func (r *Registry) CurrentSessionFor(identity Identity) (SessionID, bool) {
	session, exists := r.current[identity]
	return session, exists
}

// IdentityOf はセッションの識別子を返す
func (r *Registry) IdentityOf(session SessionID) (Identity, bool) {
	identity, exists := r.live[session]
	return identity, exists
}

// IsLive はセッションが接続中かどうかを返す
func (r *Registry) IsLive(session SessionID) bool {
	_, exists := r.live[session]
	return exists
}

// Snapshot は呼び出し時点の接続中セッションをソート済みで返す
func (r *Registry) Snapshot() []SessionID {
	sessions := make([]SessionID, 0, len(r.live))
	for session := range r.live {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i] < sessions[j] })
	return sessions
}

// Count は接続中セッション数を返す
func (r *Registry) Count() int {
	return len(r.live)
}

// Reconcile はトランスポートが把握している接続と突き合わせ、存在しないセッションを取り除く
//
// 取り除いたセッションをソート済みで返す。取りこぼした切断イベントの補正に使う。
func (r *Registry) Reconcile(actual []SessionID) []SessionID {
	alive := make(map[SessionID]struct{}, len(actual))
	for _, session := range actual {
		alive[session] = struct{}{}
	}

	var removed []SessionID
	for session, identity := range r.live {
		if _, ok := alive[session]; ok {
			continue
		}
		delete(r.live, session)
		if r.current[identity] == session {
			delete(r.current, identity)
		}
		removed = append(removed, session)
	}

	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed
}

// NextFrame は identity のフレーム番号を1つ進めて返す（1始まり）
func (r *Registry) NextFrame(identity Identity) int {
	r.frames[identity]++
	return r.frames[identity]
}
