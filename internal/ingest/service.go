// Package ingest はアップロードされたフレームの検証と永続化を担う
//
// 保存後、撮影IDが付いていれば capture.Coordinator に応答として渡す。
// 撮影IDが未知・終端済みでもフレームは保存される。
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"syncshot/internal/capture"
	"syncshot/internal/frame"
)

// Tracker はフレーム番号の払い出しと応答の記録を担う（capture.Coordinator が実装する）
type Tracker interface {
	NextFrame(identity capture.Identity) int
	ResolveSession(identity capture.Identity) (capture.SessionID, bool)
	RecordResponse(ctx context.Context, session capture.SessionID, captureID string, artifact capture.ArtifactHandle) capture.Outcome
}

// Upload はHTTPで受け取ったフレーム
type Upload struct {
	Identity      capture.Identity
	Session       capture.SessionID // 空なら Identity の現在のセッションを使う
	CaptureID     string            // 空ならメタデータの capture_id を使う
	Metadata      string            // JSON
	HasMetadata   bool
	HasImage      bool
	ImageFilename string
	Image         []byte
	Depth         []byte
}

// Result は取り込みの結果
type Result struct {
	FrameNumber int
	DepthSaved  bool
	CaptureID   string
	Session     capture.SessionID
	Handle      capture.ArtifactHandle
	Outcome     capture.Outcome
}

// Service はフレームの取り込みを行う
type Service struct {
	store   *Store
	tracker Tracker
}

// NewService は新しい Service を作成する
func NewService(store *Store, tracker Tracker) *Service {
	return &Service{store: store, tracker: tracker}
}

// Ingest はフレームを検証・保存し、撮影リクエストに応答として記録する
func (s *Service) Ingest(ctx context.Context, u Upload) (Result, error) {
	metadata, err := validate(u)
	if err != nil {
		return Result{}, err
	}

	session := u.Session
	if session == "" {
		if current, ok := s.tracker.ResolveSession(u.Identity); ok {
			session = current
		}
	}

	captureID := strings.TrimSpace(u.CaptureID)
	if captureID == "" {
		if id, ok := metadata["capture_id"].(string); ok {
			captureID = id
		}
	}

	depth := u.Depth
	if len(depth) == 0 {
		depth = nil
	}

	number := s.tracker.NextFrame(u.Identity)
	saved, err := s.store.Save(Frame{
		Identity:    u.Identity,
		Session:     session,
		CaptureID:   captureID,
		FrameNumber: number,
		Metadata:    metadata,
		Image:       u.Image,
		Depth:       depth,
	})
	if err != nil {
		return Result{}, fmt.Errorf("フレームの保存に失敗: %w", err)
	}

	log.Printf("[Upload] [%s] 画像を保存しました: %s", u.Identity, saved.ImagePath)
	if saved.DepthSaved {
		log.Printf("[Upload] [%s] 深度マップを保存しました: %s", u.Identity, saved.DepthPath)
	}
	log.Printf("[Upload] [%s] メタデータを保存しました: %s", u.Identity, saved.MetadataPath)

	result := Result{
		FrameNumber: number,
		DepthSaved:  saved.DepthSaved,
		CaptureID:   captureID,
		Session:     session,
		Handle:      saved.Handle,
		Outcome:     capture.OutcomeUnknown,
	}

	if captureID != "" && session != "" {
		result.Outcome = s.tracker.RecordResponse(ctx, session, captureID, saved.Handle)
	}

	// 診断は表示のみ。応答の記録より後に行う
	logReport(u.Identity, frame.Analyze(saved.Metadata, u.Image, depth))

	return result, nil
}

func validate(u Upload) (map[string]any, error) {
	if !u.HasMetadata {
		return nil, ErrMissingMetadata
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(u.Metadata), &metadata); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if metadata == nil {
		return nil, fmt.Errorf("%w: metadata must be a JSON object", ErrInvalidMetadata)
	}

	if !u.HasImage {
		return nil, ErrMissingImage
	}
	if u.ImageFilename == "" || len(u.Image) == 0 {
		return nil, ErrEmptyImage
	}

	return metadata, nil
}

func logReport(identity capture.Identity, report frame.Report) {
	separator := strings.Repeat("=", 60)
	log.Println(separator)
	log.Printf("%s からARフレームを受信", identity)
	log.Println(separator)
	for _, line := range report.Lines() {
		log.Println(line)
	}
	log.Println(separator)
}
