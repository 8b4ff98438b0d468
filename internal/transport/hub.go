// Package transport はクライアントとの双方向通信（WebSocket）を管理する
//
// # 責務
//   - WebSocket接続の受け入れとセッションの払い出し
//   - 接続/切断の capture.Coordinator への通知
//   - 撮影指示のセッション単位での送信
//   - 実際に開いている接続一覧の提供（Registry の突き合わせ用）
//
// # 仕様
//   - メッセージは {"event": ..., "data": ...} 形式のJSON
//   - 識別子は接続元ホスト（ポートを除く）
//   - 切断は1セッションにつき1回だけ通知する
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"

	"syncshot/internal/capture"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// イベント名
const (
	EventConnected    = "connected"
	EventCaptureFrame = "capture_frame"
	EventClientReady  = "client_ready"
)

// ErrSessionNotFound は送信先のセッションが接続されていない
var ErrSessionNotFound = errors.New("session not connected")

// Message はWebSocketでやり取りするメッセージ
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectedData は connected イベントの内容
type ConnectedData struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
}

// ClientReadyData は client_ready イベントの内容
type ClientReadyData struct {
	DeviceName string `json:"device_name"`
}

// Listener は接続イベントの受け手（capture.Coordinator が実装する）
type Listener interface {
	Connect(identity capture.Identity, session capture.SessionID)
	EnsureConnected(identity capture.Identity, session capture.SessionID) bool
	RecordDisconnect(ctx context.Context, session capture.SessionID) []capture.Resolution
}

type client struct {
	session  capture.SessionID
	identity capture.Identity
	conn     *websocket.Conn
}

// Hub はWebSocket接続を管理する
type Hub struct {
	mu       sync.RWMutex
	clients  map[capture.SessionID]*client
	listener Listener

	newSession func() capture.SessionID
}

// NewHub は新しい Hub を作成する
func NewHub() *Hub {
	return &Hub{
		clients: make(map[capture.SessionID]*client),
		newSession: func() capture.SessionID {
			return capture.SessionID(uuid.NewString())
		},
	}
}

// SetListener は接続イベントの受け手を設定する
func (h *Hub) SetListener(listener Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = listener
}

func (h *Hub) currentListener() Listener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listener
}

// ServeHTTP はWebSocketにアップグレードし、切断されるまでメッセージを読み続ける
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // 任意のOriginを許可する
	})
	if err != nil {
		log.Printf("[WebSocket] アップグレードに失敗: %v", err)
		return
	}

	c := &client{
		session:  h.newSession(),
		identity: IdentityFromAddr(r.RemoteAddr),
		conn:     conn,
	}

	h.mu.Lock()
	h.clients[c.session] = c
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("[WebSocket] クライアント接続: %s (%s) 接続数: %d", c.session, c.identity, total)
	if l := h.currentListener(); l != nil {
		l.Connect(c.identity, c.session)
	}

	ctx := r.Context()
	defer h.release(c)

	if err := h.write(ctx, c, EventConnected, ConnectedData{Status: "connected", ClientID: string(c.session)}); err != nil {
		log.Printf("[WebSocket] connected の送信に失敗: %s: %v", c.session, err)
		return
	}

	h.readLoop(ctx, c)
}

// readLoop はクライアントからのメッセージを処理する
func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				log.Printf("[WebSocket] 受信エラー: %s: %v", c.session, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WebSocket] 不正なメッセージ: %s: %v", c.session, err)
			continue
		}

		switch msg.Event {
		case EventClientReady:
			var ready ClientReadyData
			if len(msg.Data) > 0 {
				if err := json.Unmarshal(msg.Data, &ready); err != nil {
					log.Printf("[WebSocket] 不正な client_ready: %s: %v", c.session, err)
				}
			}
			if ready.DeviceName == "" {
				ready.DeviceName = "Unknown"
			}
			log.Printf("[WebSocket] クライアント準備完了: %s (%s)", ready.DeviceName, c.session)
			if l := h.currentListener(); l != nil {
				l.EnsureConnected(c.identity, c.session)
			}
		default:
			log.Printf("[WebSocket] 未知のイベント: %q (%s)", msg.Event, c.session)
		}
	}
}

// release は接続を閉じ、切断を1回だけ通知する
func (h *Hub) release(c *client) {
	h.mu.Lock()
	_, exists := h.clients[c.session]
	delete(h.clients, c.session)
	total := len(h.clients)
	h.mu.Unlock()

	c.conn.Close(websocket.StatusNormalClosure, "")
	if !exists {
		return
	}

	log.Printf("[WebSocket] クライアント切断: %s 接続数: %d", c.session, total)
	if l := h.currentListener(); l != nil {
		l.RecordDisconnect(context.Background(), c.session)
	}
}

func (h *Hub) write(ctx context.Context, c *client, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("メッセージのエンコードに失敗: %w", err)
	}
	return wsjson.Write(ctx, c.conn, Message{Event: event, Data: data})
}

// SendCaptureRequest は1セッションに capture_frame を送る
func (h *Hub) SendCaptureRequest(ctx context.Context, session capture.SessionID, cmd capture.CaptureCommand) error {
	h.mu.RLock()
	c, exists := h.clients[session]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session)
	}

	return h.write(ctx, c, EventCaptureFrame, cmd)
}

// LiveSessions は開いている接続のセッション一覧を返す
func (h *Hub) LiveSessions() []capture.SessionID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := make([]capture.SessionID, 0, len(h.clients))
	for session := range h.clients {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i] < sessions[j] })
	return sessions
}

// Close はすべての接続を閉じる
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
}

// IdentityFromAddr は接続元アドレスからポートを除いた識別子を返す
func IdentityFromAddr(addr string) capture.Identity {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return capture.Identity(addr)
	}
	return capture.Identity(host)
}
