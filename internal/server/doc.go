// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// フレームのアップロード受付、撮影トリガーの受付を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - /ws のWebSocket接続を transport.Hub に引き渡す
//   - /upload_frame のマルチパートを ingest.Service に渡す
//   - 撮影トリガーと撮影状態の参照API
//
// 仕様:
//   - ルーティングには gin を使用
//   - WebSocketは coder/websocket を使用
//   - グレースフルシャットダウンに対応（WebSocket接続も閉じる）
//   - エラーは {"status":"error","message":...} 形式で返す
package server
