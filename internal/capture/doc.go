// Package capture は複数デバイスへの一斉撮影の調停を担う
//
// # 責務
// - 接続中クライアントセッションの管理（Registry）
// - 撮影リクエストごとの応答集計と完了/中断判定（Ledger）
// - トリガー → 一斉送信 → 待機 → 完了/中断 → 後続処理通知の調停（Coordinator）
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 1回のトリガーで接続中の全デバイスに1枚ずつ撮影させたい
// - 全デバイスの応答が揃った時点で後続処理を1回だけ起動したい
// - 応答前に切断されたデバイスを待ち続けないようにしたい
//
// # 仕様
// - Registry と Ledger はロックを持たない。Coordinator の単一の排他区間からのみ操作する
// - expected は撮影開始時点の接続セッションのスナップショットで、以後増えない
// - Completed / Aborted は終端状態で、到達したリクエストは Ledger から取り除かれる
// - 後続処理の通知は Completed になったリクエストにつき1回だけ、ロック外で同期的に行う
// - 送信失敗・通知失敗はログに残すのみで、撮影の状態は巻き戻さない
package capture
