package capture

import "errors"

var (
	// ErrInvalidRequest は期待メンバーが空の撮影リクエストを開こうとした
	ErrInvalidRequest = errors.New("invalid capture request: expected set is empty")

	// ErrUnknownCapture は存在しない、または既に終端に達した撮影ID
	ErrUnknownCapture = errors.New("unknown capture")

	// ErrNoClientsConnected はトリガー時に接続中のクライアントがいない
	ErrNoClientsConnected = errors.New("no clients connected")

	// ErrDeliveryFailure は1セッションへの撮影指示の送信に失敗した
	ErrDeliveryFailure = errors.New("capture request delivery failed")

	// ErrDownstreamNotify は後続処理の通知に失敗した
	ErrDownstreamNotify = errors.New("downstream notification failed")
)
