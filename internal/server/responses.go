package server

import (
	"time"

	"syncshot/internal/capture"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ServerInfo はサーバーのリッスン情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status           string            `json:"status"`
	ConnectedClients int               `json:"connected_clients"`
	LiveCaptures     []capture.Request `json:"live_captures"`
	Server           ServerInfo        `json:"server"`
	Timestamp        time.Time         `json:"timestamp"`
}

// TriggerResponse は撮影トリガーのレスポンス
type TriggerResponse struct {
	Status    string `json:"status"`
	CaptureID string `json:"capture_id,omitempty"`
	Expected  int    `json:"expected,omitempty"`
	Message   string `json:"message,omitempty"`
}

// UploadResponse はフレームアップロードのレスポンス
type UploadResponse struct {
	Status     string `json:"status"`
	Frame      int    `json:"frame"`
	DepthSaved bool   `json:"depth_saved"`
	CaptureID  string `json:"capture_id,omitempty"`
	Message    string `json:"message"`
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func errorResponse(message string) ErrorResponse {
	return ErrorResponse{Status: "error", Message: message}
}
