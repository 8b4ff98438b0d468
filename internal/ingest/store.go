package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"syncshot/internal/capture"
	"syncshot/internal/frame"
)

// timestampLayout はファイル名に埋め込む時刻の書式
const timestampLayout = "20060102_150405"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Frame は永続化するフレーム
type Frame struct {
	Identity    capture.Identity
	Session     capture.SessionID
	CaptureID   string
	FrameNumber int
	Metadata    map[string]any
	Image       []byte
	Depth       []byte
}

// Saved は永続化の結果
type Saved struct {
	Handle       capture.ArtifactHandle // storage.dir からの画像の相対パス
	ImagePath    string
	DepthPath    string
	MetadataPath string
	DepthSaved   bool
	Metadata     map[string]any // 保存したメタデータ
}

// Store はフレームをディレクトリに保存する
type Store struct {
	dir string
	now func() time.Time
}

// NewStore は新しい Store を作成する
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("保存ディレクトリの作成に失敗: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir は保存先ディレクトリを返す
func (s *Store) Dir() string {
	return s.dir
}

// Save は画像・深度・メタデータを識別子ごとのディレクトリに書き込む
func (s *Store) Save(f Frame) (Saved, error) {
	clientDir := IdentitySlug(f.Identity)
	if err := os.MkdirAll(filepath.Join(s.dir, clientDir), 0755); err != nil {
		return Saved{}, fmt.Errorf("クライアントディレクトリの作成に失敗: %w", err)
	}

	base := fmt.Sprintf("frame_%04d_%s", f.FrameNumber, s.now().Format(timestampLayout))
	imageRel := filepath.Join(clientDir, base+".jpg")

	saved := Saved{
		Handle:    capture.ArtifactHandle(filepath.ToSlash(imageRel)),
		ImagePath: filepath.Join(s.dir, imageRel),
	}
	if err := os.WriteFile(saved.ImagePath, f.Image, 0644); err != nil {
		return Saved{}, fmt.Errorf("画像の保存に失敗: %w", err)
	}

	if len(f.Depth) > 0 {
		saved.DepthPath = filepath.Join(s.dir, clientDir, base+"_depth.bin")
		if err := os.WriteFile(saved.DepthPath, f.Depth, 0644); err != nil {
			return Saved{}, fmt.Errorf("深度マップの保存に失敗: %w", err)
		}
		saved.DepthSaved = true
	}

	saved.Metadata = s.sidecar(f, saved)
	encoded, err := json.MarshalIndent(saved.Metadata, "", "  ")
	if err != nil {
		return Saved{}, fmt.Errorf("メタデータのエンコードに失敗: %w", err)
	}

	saved.MetadataPath = filepath.Join(s.dir, clientDir, base+"_metadata.json")
	if err := os.WriteFile(saved.MetadataPath, encoded, 0644); err != nil {
		return Saved{}, fmt.Errorf("メタデータの保存に失敗: %w", err)
	}

	return saved, nil
}

// sidecar は保存用のメタデータを組み立てる。元のメタデータは変更しない
func (s *Store) sidecar(f Frame, saved Saved) map[string]any {
	out := make(map[string]any, len(f.Metadata)+1)
	for k, v := range f.Metadata {
		out[k] = v
	}

	if ex, ok := out["extrinsics"]; ok {
		if normalized, changed := frame.NormalizeExtrinsics(ex); changed {
			out["extrinsics"] = normalized
		}
	}

	server := map[string]any{}
	if existing, ok := out["_server"].(map[string]any); ok {
		for k, v := range existing {
			server[k] = v
		}
	}
	server["image_file"] = filepath.Base(saved.ImagePath)
	if saved.DepthPath != "" {
		server["depth_file"] = filepath.Base(saved.DepthPath)
	}
	server["identity"] = string(f.Identity)
	if f.Session != "" {
		server["session_id"] = string(f.Session)
	}
	if f.CaptureID != "" {
		server["capture_id"] = f.CaptureID
	}
	out["_server"] = server

	return out
}

// IdentitySlug は識別子をディレクトリ名に使える形に変換する
func IdentitySlug(identity capture.Identity) string {
	slug := unsafeChars.ReplaceAllString(string(identity), "_")
	if slug == "" || slug == "." || slug == ".." {
		return "unknown"
	}
	return slug
}
