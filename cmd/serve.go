package cmd

import (
	"context"
	"fmt"
	"log"

	"syncshot/internal/capture"
	"syncshot/internal/config"
	"syncshot/internal/ingest"
	"syncshot/internal/processing"
	"syncshot/internal/server"
	"syncshot/internal/transport"
	"syncshot/internal/trigger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveFlagBindings は設定キーとフラグ名の対応
var serveFlagBindings = map[string]string{
	"server.host":      "host",
	"server.port":      "port",
	"storage.dir":      "storage-dir",
	"processing.url":   "processing-url",
	"trigger.interval": "interval",
	"trigger.keyboard": "keyboard",
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "サーバーを起動する",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlags(v, cmd, serveFlagBindings)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
	flags.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
	flags.String("storage-dir", "", "フレームの保存先 (デフォルト: received_images)")
	flags.String("processing-url", "", "撮影完了を通知するURL（空ならログ出力のみ）")
	flags.Duration("interval", 0, "定期トリガーの間隔（0で無効）")
	flags.Bool("keyboard", true, "ENTERキーでトリガーする")

	return cmd
}

// bindFlags はフラグを viper の設定キーに結び付ける
func bindFlags(v *viper.Viper, cmd *cobra.Command, bindings map[string]string) error {
	for key, name := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("フラグ %s のバインドに失敗: %w", name, err)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	// 設定を読み込む
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	var notifier capture.Notifier = processing.LogNotifier{}
	if cfg.Processing.URL != "" {
		notifier = processing.NewHTTPNotifier(cfg.Processing.URL, cfg.Processing.Timeout)
	}

	// Hub と Coordinator は互いを参照するため、後から Listener を設定する
	hub := transport.NewHub()
	coord := capture.NewCoordinator(hub, notifier, capture.Options{
		SendTimeout:   cfg.Transport.SendTimeout,
		NotifyTimeout: cfg.Processing.Timeout,
	})
	hub.SetListener(coord)

	store, err := ingest.NewStore(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("保存先の準備に失敗: %w", err)
	}

	srv := server.New(cfg, coord, hub, ingest.NewService(store, coord))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.Trigger.Keyboard {
		go func() {
			if _, err := trigger.Keyboard(ctx, cmd.InOrStdin(), coord); err != nil {
				log.Printf("[Keyboard] 入力の読み込みに失敗: %v", err)
			}
		}()
	}
	if cfg.Trigger.Interval > 0 {
		go trigger.Interval(ctx, cfg.Trigger.Interval, coord)
	}

	log.Printf("syncshot サーバーを起動します: %s (保存先: %s)", cfg.ServerAddress(), store.Dir())
	return srv.Start(ctx)
}
