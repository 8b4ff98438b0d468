// Package trigger は撮影トリガーの発生源（オペレーター入力・定期タイマー）を提供する
//
// どちらも capture.Coordinator.TriggerCapture を呼ぶだけで、状態は持たない。
package trigger

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"syncshot/internal/capture"
)

// Triggerer は撮影を開始できるもの（capture.Coordinator が実装する）
type Triggerer interface {
	TriggerCapture(ctx context.Context) (capture.Trigger, error)
}

// Fire は1回トリガーし、結果をログに出力する
func Fire(ctx context.Context, t Triggerer) (capture.Trigger, error) {
	trig, err := t.TriggerCapture(ctx)
	switch {
	case errors.Is(err, capture.ErrNoClientsConnected):
		log.Println("[Trigger] クライアントが接続されていません。接続を待っています...")
	case err != nil:
		log.Printf("[Trigger] トリガーに失敗: %v", err)
	default:
		log.Printf("[Trigger] 撮影を開始しました: %s (%d クライアント) %s",
			trig.ID, trig.Expected, trig.Timestamp.Format("15:04:05"))
	}
	return trig, err
}

// Keyboard は r から1行読むたびに空行ならトリガーする
//
// EOF またはコンテキストのキャンセルで終了し、読み込んだ空行の数を返す。
func Keyboard(ctx context.Context, r io.Reader, t Triggerer) (int, error) {
	separator := strings.Repeat("=", 60)
	log.Println(separator)
	log.Println("リモートトリガー有効")
	log.Println("ENTER を押すと接続中の全デバイスで撮影します")
	log.Println(separator)

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()

	fired := 0
	for {
		select {
		case <-ctx.Done():
			return fired, nil
		case err := <-errCh:
			if err != nil {
				return fired, err
			}
			log.Println("[Keyboard] 入力が終了しました")
			return fired, nil
		case line := <-lines:
			if strings.TrimSpace(line) != "" {
				continue
			}
			fired++
			_, _ = Fire(ctx, t)
		}
	}
}

// Interval は interval ごとにトリガーする。コンテキストのキャンセルで終了する
func Interval(ctx context.Context, interval time.Duration, t Triggerer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Trigger] %v 間隔の定期トリガーを開始します", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Trigger] 定期トリガーを停止しました")
			return
		case <-ticker.C:
			_, _ = Fire(ctx, t)
		}
	}
}
