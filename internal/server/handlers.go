package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"syncshot/internal/capture"
	"syncshot/internal/ingest"
	"syncshot/internal/transport"

	"github.com/gin-gonic/gin"
)

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Message: "Server is running"})
}

// handleStatus は接続状況を突き合わせてから状態を返す
func (s *Server) handleStatus(c *gin.Context) {
	connected := s.coordinator.ConnectedCount(c.Request.Context(), true)

	c.JSON(http.StatusOK, StatusResponse{
		Status:           "running",
		ConnectedClients: connected,
		LiveCaptures:     s.coordinator.LiveCaptures(),
		Server: ServerInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		Timestamp: time.Now(),
	})
}

// handleTrigger は接続中の全クライアントに撮影を指示する
func (s *Server) handleTrigger(c *gin.Context) {
	trig, err := s.coordinator.TriggerCapture(c.Request.Context())
	switch {
	case errors.Is(err, capture.ErrNoClientsConnected):
		c.JSON(http.StatusConflict, TriggerResponse{
			Status:  "skipped",
			Message: "no devices connected, trigger skipped",
		})
	case err != nil:
		log.Printf("[Trigger] トリガーに失敗: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
	default:
		c.JSON(http.StatusAccepted, TriggerResponse{
			Status:    "triggered",
			CaptureID: trig.ID,
			Expected:  trig.Expected,
		})
	}
}

// handleGetCapture は保留中の撮影リクエストを返す
func (s *Server) handleGetCapture(c *gin.Context) {
	req, err := s.coordinator.Peek(c.Param("id"))
	if err != nil {
		if errors.Is(err, capture.ErrUnknownCapture) {
			c.JSON(http.StatusNotFound, errorResponse("unknown capture"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, req)
}

// handleUploadFrame はマルチパートのフレームを受け取り保存する
func (s *Server) handleUploadFrame(c *gin.Context) {
	upload := ingest.Upload{
		Identity:  transport.IdentityFromAddr(c.Request.RemoteAddr),
		Session:   capture.SessionID(c.PostForm("session_id")),
		CaptureID: c.PostForm("capture_id"),
	}
	upload.Metadata, upload.HasMetadata = c.GetPostForm("metadata")

	if fh, err := c.FormFile("image"); err == nil {
		data, err := readFormFile(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		upload.HasImage = true
		upload.ImageFilename = fh.Filename
		upload.Image = data
	}

	if fh, err := c.FormFile("depth"); err == nil {
		data, err := readFormFile(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		upload.Depth = data
	}

	result, err := s.ingest.Ingest(c.Request.Context(), upload)
	if err != nil {
		status := http.StatusInternalServerError
		if isBadUpload(err) {
			status = http.StatusBadRequest
		}
		log.Printf("[Upload] [%s] アップロードを拒否: %v", upload.Identity, err)
		c.JSON(status, errorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Status:     "received",
		Frame:      result.FrameNumber,
		DepthSaved: result.DepthSaved,
		CaptureID:  result.CaptureID,
		Message:    "Frame uploaded successfully",
	})
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("ファイルを開けません: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}
	return data, nil
}

func isBadUpload(err error) bool {
	return errors.Is(err, ingest.ErrMissingMetadata) ||
		errors.Is(err, ingest.ErrInvalidMetadata) ||
		errors.Is(err, ingest.ErrMissingImage) ||
		errors.Is(err, ingest.ErrEmptyImage)
}
