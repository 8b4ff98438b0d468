package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"syncshot/internal/server"

	"github.com/spf13/cobra"
)

func newTriggerCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "起動中のサーバーに撮影を指示する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: timeout}
			url := strings.TrimRight(addr, "/") + "/api/trigger"

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, nil)
			if err != nil {
				return fmt.Errorf("リクエストの作成に失敗: %w", err)
			}

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("トリガーの送信に失敗: %w", err)
			}
			defer resp.Body.Close()

			var body server.TriggerResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("レスポンスのデコードに失敗 (status %d): %w", resp.StatusCode, err)
			}

			switch resp.StatusCode {
			case http.StatusAccepted:
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "撮影を開始しました: %s (%d クライアント)\n", body.CaptureID, body.Expected)
			case http.StatusConflict:
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "スキップしました: "+body.Message)
			default:
				err = fmt.Errorf("トリガーに失敗 (status %d): %s", resp.StatusCode, body.Message)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "サーバーのURL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "リクエストのタイムアウト")

	return cmd
}
