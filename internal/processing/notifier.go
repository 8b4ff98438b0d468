// Package processing は撮影完了後の後続処理への通知を担う
package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"syncshot/internal/capture"
)

// Payload は後続処理に送る内容
type Payload struct {
	CaptureID string                   `json:"capture_id"`
	Artifacts []capture.ArtifactHandle `json:"artifacts"`
}

// HTTPNotifier は後続処理サーバーにJSONをPOSTする
type HTTPNotifier struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPNotifier は新しい HTTPNotifier を作成する
func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{
		url:     url,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// NotifyProcessingReady は撮影IDと成果物一覧をPOSTする
//
// 2xx 以外の応答は capture.ErrDownstreamNotify としてエラーを返す。
func (n *HTTPNotifier) NotifyProcessingReady(ctx context.Context, captureID string, artifacts []capture.ArtifactHandle) error {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	body, err := json.Marshal(Payload{CaptureID: captureID, Artifacts: artifacts})
	if err != nil {
		return fmt.Errorf("通知内容のエンコードに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("通知リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", capture.ErrDownstreamNotify, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", capture.ErrDownstreamNotify, resp.StatusCode, bytes.TrimSpace(respBody))
	}

	log.Printf("[Processing] 通知しました: %s (status %d)", captureID, resp.StatusCode)
	return nil
}

// LogNotifier は後続処理サーバーがない場合にログ出力のみ行う
type LogNotifier struct{}

// NotifyProcessingReady は完了した撮影をログに出力する
func (LogNotifier) NotifyProcessingReady(_ context.Context, captureID string, artifacts []capture.ArtifactHandle) error {
	log.Printf("[Processing] 後続処理の準備完了: %s (%d 件) %v", captureID, len(artifacts), artifacts)
	return nil
}
