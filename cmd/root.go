// Package cmd は syncshot のコマンドライン（serve / trigger）を提供する
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute はルートコマンドを実行する
func Execute() error {
	return newRootCmd(viper.New()).Execute()
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "syncshot",
		Short:         "複数デバイスの同時撮影を調整するサーバー",
		Long:          "syncshot は WebSocket で接続したデバイスに一斉に撮影を指示し、アップロードされたフレームを撮影単位で集約して後続処理に通知します。",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(v),
		newTriggerCmd(),
	)

	return rootCmd
}
