package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix は環境変数の接頭辞（例: SYNCSHOT_SERVER_PORT）
const EnvPrefix = "SYNCSHOT"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Trigger    TriggerConfig    `mapstructure:"trigger"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `mapstructure:"host"` // リッスンするホスト
	Port int    `mapstructure:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 書き込みタイムアウト（WebSocket用に0で無効）
}

// StorageConfig はアップロードされたフレームの保存先
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// ProcessingConfig は撮影完了の通知先
type ProcessingConfig struct {
	URL     string        `mapstructure:"url"` // 空ならログ出力のみ
	Timeout time.Duration `mapstructure:"timeout"`
}

// TransportConfig はクライアントへの送信設定
type TransportConfig struct {
	SendTimeout time.Duration `mapstructure:"send_timeout"` // 1セッションあたりの送信タイムアウト
}

// TriggerConfig は撮影トリガーの設定
type TriggerConfig struct {
	Keyboard bool          `mapstructure:"keyboard"` // 標準入力のENTERでトリガーする
	Interval time.Duration `mapstructure:"interval"` // 0なら定期トリガーなし
}

// SetDefaults はデフォルト値を設定する
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("storage.dir", "received_images")
	v.SetDefault("processing.url", "")
	v.SetDefault("processing.timeout", "10s")
	v.SetDefault("transport.send_timeout", "5s")
	v.SetDefault("trigger.keyboard", true)
	v.SetDefault("trigger.interval", "0s")
}

// Load は設定ファイル・環境変数・デフォルト値から設定を読み込む
//
// 設定ファイル（config.yaml）は任意で、見つからなければデフォルト値を使う。
// v が nil の場合は新しい viper インスタンスを使う。
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.syncshot")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	} else {
		log.Printf("設定ファイルを使用します: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定のデコードに失敗: %w", err)
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return &cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("保存ディレクトリが指定されていません")
	}
	if c.Processing.Timeout <= 0 {
		return fmt.Errorf("無効な通知タイムアウト: %v", c.Processing.Timeout)
	}
	if c.Transport.SendTimeout <= 0 {
		return fmt.Errorf("無効な送信タイムアウト: %v", c.Transport.SendTimeout)
	}
	if c.Trigger.Interval < 0 {
		return fmt.Errorf("無効なトリガー間隔: %v", c.Trigger.Interval)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
