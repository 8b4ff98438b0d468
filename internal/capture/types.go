package capture

import (
	"context"
	"time"
)

// SessionID は接続ごとに払い出される一時的なセッションハンドル
type SessionID string

// Identity はネットワークアドレス由来のクライアント識別子（再接続しても変わらない）
type Identity string

// ArtifactHandle は永続化済みフレームを指す不透明なハンドル
type ArtifactHandle string

// State は撮影リクエストの状態を表す
type State string

const (
	StatePending   State = "pending"   // 応答待ち
	StateCompleted State = "completed" // 全員分の応答が揃った
	StateAborted   State = "aborted"   // 応答前に全員切断された
)

// IsTerminal は終端状態かどうかを返す
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Outcome は Ledger 操作の結果を表す
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeAborted      Outcome = "aborted"
	OutcomeStillPending Outcome = "still_pending"
	OutcomeUnknown      Outcome = "unknown"
)

// Request は撮影リクエストのスナップショット
type Request struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Expected  []SessionID      `json:"expected"`
	Responded []SessionID      `json:"responded"`
	Departed  []SessionID      `json:"departed"`
	Artifacts []ArtifactHandle `json:"artifacts"`
	State     State            `json:"state"`
}

// Resolution は切断処理によって終端に達した撮影リクエスト
type Resolution struct {
	ID      string
	Outcome Outcome
	Request Request
}

// Trigger は TriggerCapture の結果
type Trigger struct {
	ID        string
	Expected  int
	Timestamp time.Time
}

// CaptureCommand はクライアントへ送る撮影指示
type CaptureCommand struct {
	CaptureID string    `json:"capture_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher はクライアントへのメッセージ送信を担う（トランスポート層が実装する）
type Dispatcher interface {
	// SendCaptureRequest は1セッションに撮影指示を送る
	SendCaptureRequest(ctx context.Context, session SessionID, cmd CaptureCommand) error

	// LiveSessions はトランスポートが実際に保持しているセッション一覧を返す
	LiveSessions() []SessionID
}

// Notifier は撮影完了後の後続処理の起動を担う
type Notifier interface {
	// NotifyProcessingReady は完了した撮影のIDと成果物一覧を通知する
	NotifyProcessingReady(ctx context.Context, captureID string, artifacts []ArtifactHandle) error
}
