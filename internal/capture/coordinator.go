package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Options は Coordinator の設定
type Options struct {
	SendTimeout   time.Duration // 1セッションあたりの送信タイムアウト
	NotifyTimeout time.Duration // 後続処理通知のタイムアウト
}

// DefaultOptions はデフォルトの設定を返す
func DefaultOptions() Options {
	return Options{
		SendTimeout:   5 * time.Second,
		NotifyTimeout: 10 * time.Second,
	}
}

// Coordinator はトリガーから後続処理通知までの一斉撮影を調停する
//
// Registry と Ledger はすべて mu の排他区間内で操作する。
// 送信と通知はブロッキングI/Oのため mu の外で行う。
type Coordinator struct {
	mu       sync.Mutex
	registry *Registry
	ledger   *Ledger

	dispatcher Dispatcher
	notifier   Notifier
	options    Options
}

// NewCoordinator は新しい Coordinator を作成する
func NewCoordinator(dispatcher Dispatcher, notifier Notifier, options Options) *Coordinator {
	return newCoordinator(NewRegistry(), NewLedger(), dispatcher, notifier, options)
}

func newCoordinator(registry *Registry, ledger *Ledger, dispatcher Dispatcher, notifier Notifier, options Options) *Coordinator {
	defaults := DefaultOptions()
	if options.SendTimeout <= 0 {
		options.SendTimeout = defaults.SendTimeout
	}
	if options.NotifyTimeout <= 0 {
		options.NotifyTimeout = defaults.NotifyTimeout
	}

	return &Coordinator{
		registry:   registry,
		ledger:     ledger,
		dispatcher: dispatcher,
		notifier:   notifier,
		options:    options,
	}
}

// Connect はクライアントの接続を登録する
func (c *Coordinator) Connect(identity Identity, session SessionID) {
	c.mu.Lock()
	c.registry.OnConnect(identity, session)
	total := c.registry.Count()
	c.mu.Unlock()

	log.Printf("[Capture] クライアント接続: %s (%s) 接続数: %d", session, identity, total)
}

// EnsureConnected はセッションが未登録であれば登録し、登録した場合に true を返す
func (c *Coordinator) EnsureConnected(identity Identity, session SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registry.IsLive(session) {
		return false
	}
	c.registry.OnConnect(identity, session)
	log.Printf("[Capture] 接続集合にクライアントを追加: %s 接続数: %d", session, c.registry.Count())
	return true
}

// RecordDisconnect はクライアントの切断を Registry と Ledger に反映する
func (c *Coordinator) RecordDisconnect(ctx context.Context, session SessionID) []Resolution {
	c.mu.Lock()
	wasLive := c.registry.OnDisconnect(session)
	resolved := c.ledger.RecordDisconnect(session)
	total := c.registry.Count()
	c.mu.Unlock()

	if wasLive {
		log.Printf("[Capture] クライアント切断: %s 接続数: %d", session, total)
	}

	c.finish(ctx, resolved)
	return resolved
}

// TriggerCapture は接続中の全クライアントに撮影を指示する
//
// 接続中のクライアントがいない場合は ErrNoClientsConnected を返し、リクエストは作成しない。
func (c *Coordinator) TriggerCapture(ctx context.Context) (Trigger, error) {
	c.mu.Lock()
	_, resolved := c.reconcileLocked()
	expected := c.registry.Snapshot()
	if len(expected) == 0 {
		c.mu.Unlock()
		c.finish(ctx, resolved)
		log.Println("[Trigger] 接続中のクライアントがいません。トリガーをスキップします")
		return Trigger{}, ErrNoClientsConnected
	}

	req, err := c.ledger.Open(expected)
	c.mu.Unlock()
	c.finish(ctx, resolved)
	if err != nil {
		return Trigger{}, fmt.Errorf("撮影リクエストの作成に失敗: %w", err)
	}

	cmd := CaptureCommand{CaptureID: req.ID, Timestamp: req.CreatedAt}
	log.Printf("[Trigger] %d クライアントに撮影指示を送信します (capture=%s)", len(expected), req.ID)
	c.fanOut(ctx, expected, cmd)

	return Trigger{ID: req.ID, Expected: len(expected), Timestamp: req.CreatedAt}, nil
}

// fanOut は各セッションに個別に撮影指示を送る
//
// 送信に失敗したセッションはログに残し、残りのセッションへの送信は続ける。
func (c *Coordinator) fanOut(ctx context.Context, sessions []SessionID, cmd CaptureCommand) {
	delivered := 0
	for _, session := range sessions {
		sendCtx, cancel := context.WithTimeout(ctx, c.options.SendTimeout)
		err := c.dispatcher.SendCaptureRequest(sendCtx, session, cmd)
		cancel()

		if err != nil {
			log.Printf("[Trigger] 送信失敗: %s: %v", session, fmt.Errorf("%w: %w", ErrDeliveryFailure, err))
			continue
		}
		delivered++
		log.Printf("[Trigger] 送信しました: %s", session)
	}

	log.Printf("[Trigger] 撮影指示を送信しました %d/%d (%s)", delivered, len(sessions), cmd.Timestamp.Format("15:04:05"))
}

// RecordResponse はセッションから届いた成果物を撮影リクエストに記録する
//
// captureID が空、未知、終端済みの場合は OutcomeUnknown を返す。
// 完了した場合は後続処理を同期的に1回だけ通知する。
func (c *Coordinator) RecordResponse(ctx context.Context, session SessionID, captureID string, artifact ArtifactHandle) Outcome {
	if captureID == "" {
		return OutcomeUnknown
	}

	c.mu.Lock()
	outcome, req := c.ledger.RecordResponse(captureID, session, artifact)
	c.mu.Unlock()

	switch outcome {
	case OutcomeCompleted:
		log.Printf("[Capture] 撮影完了: %s (%d 件)", req.ID, len(req.Artifacts))
		c.notify(ctx, req)
	case OutcomeStillPending:
		log.Printf("[Capture] 応答を受信: %s %d/%d", req.ID, len(req.Responded), len(req.Expected))
	default:
		log.Printf("[Capture] 対象外の応答です: capture=%s session=%s", captureID, session)
	}

	return outcome
}

// Reconcile はトランスポートの接続情報と Registry を突き合わせる
func (c *Coordinator) Reconcile(ctx context.Context) []SessionID {
	c.mu.Lock()
	removed, resolved := c.reconcileLocked()
	c.mu.Unlock()

	c.finish(ctx, resolved)
	return removed
}

// reconcileLocked は突き合わせで消えたセッションを切断として Ledger に反映する（ロック済み前提）
func (c *Coordinator) reconcileLocked() ([]SessionID, []Resolution) {
	removed := c.registry.Reconcile(c.dispatcher.LiveSessions())

	var resolved []Resolution
	for _, session := range removed {
		log.Printf("[Capture] 切断済みのセッションを除外しました: %s", session)
		resolved = append(resolved, c.ledger.RecordDisconnect(session)...)
	}
	return removed, resolved
}

// finish は終端に達した撮影リクエストを後処理する
func (c *Coordinator) finish(ctx context.Context, resolved []Resolution) {
	for _, res := range resolved {
		switch res.Outcome {
		case OutcomeCompleted:
			log.Printf("[Capture] 撮影完了（切断分を除く）: %s (%d/%d 件)",
				res.ID, len(res.Request.Artifacts), len(res.Request.Expected))
			c.notify(ctx, res.Request)
		case OutcomeAborted:
			log.Printf("[Capture] 撮影中断: %s 全クライアントが応答前に切断されました (受信 %d 件)",
				res.ID, len(res.Request.Responded))
		}
	}
}

// notify は後続処理に通知する。失敗してもリクエストの状態は変えない
func (c *Coordinator) notify(ctx context.Context, req Request) {
	if c.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.options.NotifyTimeout)
	defer cancel()

	if err := c.notifier.NotifyProcessingReady(notifyCtx, req.ID, req.Artifacts); err != nil {
		if !errors.Is(err, ErrDownstreamNotify) {
			err = fmt.Errorf("%w: %w", ErrDownstreamNotify, err)
		}
		log.Printf("[Capture] 後続処理の通知に失敗: %s: %v", req.ID, err)
		return
	}

	log.Printf("[Capture] 後続処理に通知しました: %s", req.ID)
}

// ConnectedCount は接続中のクライアント数を返す。reconcile が true なら先に突き合わせる
func (c *Coordinator) ConnectedCount(ctx context.Context, reconcile bool) int {
	if reconcile {
		c.Reconcile(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Count()
}

// ResolveSession は identity の現在のセッションを返す
func (c *Coordinator) ResolveSession(identity Identity) (SessionID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.CurrentSessionFor(identity)
}

// NextFrame は identity のフレーム番号を進めて返す
func (c *Coordinator) NextFrame(identity Identity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.NextFrame(identity)
}

// Peek は保留中の撮影リクエストを返す
func (c *Coordinator) Peek(id string) (Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, exists := c.ledger.Peek(id)
	if !exists {
		return Request{}, fmt.Errorf("%w: %s", ErrUnknownCapture, id)
	}
	return req, nil
}

// LiveCaptures は保留中の撮影リクエスト一覧を返す
func (c *Coordinator) LiveCaptures() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Live()
}
