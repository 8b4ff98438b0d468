package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syncshot/internal/capture"
	"syncshot/internal/config"
	"syncshot/internal/ingest"
	"syncshot/internal/transport"

	"github.com/gin-gonic/gin"
)

// maxUploadMemory はマルチパートをメモリに保持する上限
const maxUploadMemory = 64 << 20

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	router     *gin.Engine

	coordinator *capture.Coordinator
	hub         *transport.Hub
	ingest      *ingest.Service
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, coordinator *capture.Coordinator, hub *transport.Hub, ingestService *ingest.Service) *Server {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = maxUploadMemory

	s := &Server{
		config:      cfg,
		router:      router,
		coordinator: coordinator,
		hub:         hub,
		ingest:      ingestService,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.setupRoutes()

	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.router.GET("/health", s.handleHealth)

	// APIエンドポイント
	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/trigger", s.handleTrigger)
	api.GET("/captures/:id", s.handleGetCapture)

	// クライアントからのフレーム
	s.router.POST("/upload_frame", s.handleUploadFrame)

	// WebSocket
	s.router.GET("/ws", gin.WrapH(s.hub))
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はWebSocket接続を閉じ、サーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	// WebSocketはハイジャックされているため個別に閉じる
	s.hub.Close()

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
