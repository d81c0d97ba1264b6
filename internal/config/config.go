package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はconsoleサービス全体の設定。
// 起動時に Load で一度だけ構築し、以降は読み取り専用として扱う。
type Config struct {
	// Server はHTTPサーバーの設定。
	Server ServerConfig `mapstructure:"server"`
	// Services は上流サービスのベースURL。
	Services ServicesConfig `mapstructure:"services"`
	// Proxy はプロキシ転送の設定。
	Proxy ProxyConfig `mapstructure:"proxy"`
	// Auth はログインとセッションの設定。
	Auth AuthConfig `mapstructure:"auth"`
	// Database はオペレーター情報を保存するSQLiteの設定。
	Database DatabaseConfig `mapstructure:"database"`
	// Polymarket はヘルスチェック対象のPolymarket APIの設定。
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	// Log はログ出力の設定。
	Log LogConfig `mapstructure:"log"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port はリッスンポート。
	Port string `mapstructure:"port"`
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ServicesConfig は上流サービスのベースURL。
type ServicesConfig struct {
	// Ingestion はingestionサービスのベースURL。
	Ingestion string `mapstructure:"ingestion_url"`
	// Brain はbrainサービスのベースURL。
	Brain string `mapstructure:"brain_url"`
	// Execution はexecutionサービスのベースURL。
	Execution string `mapstructure:"execution_url"`
}

// ProxyConfig はプロキシ転送の設定。
type ProxyConfig struct {
	// Timeout は上流サービスへの1リクエストあたりのタイムアウト。
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig はログインとセッションの設定。
type AuthConfig struct {
	// JWTSecret はセッションJWTの署名鍵。
	JWTSecret string `mapstructure:"jwt_secret"`
	// AdminUsername はexecutionに到達できない場合のローカル管理者ユーザー名。
	AdminUsername string `mapstructure:"admin_username"`
	// AdminPassword はローカル管理者のパスワード。
	AdminPassword string `mapstructure:"admin_password"`
	// SessionTTL はセッションの有効期間。
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// SecureCookie はセッションCookieにSecure属性を付けるかどうか。
	SecureCookie bool `mapstructure:"secure_cookie"`
}

// DatabaseConfig はSQLiteの設定。
type DatabaseConfig struct {
	// Path はデータベースファイルのパス。":memory:" も指定できる。
	Path string `mapstructure:"path"`
}

// PolymarketConfig はPolymarket APIの接続先と認証情報。
type PolymarketConfig struct {
	// GammaURL はGamma APIのベースURL。
	GammaURL string `mapstructure:"gamma_url"`
	// ClobURL はCLOB APIのベースURL。
	ClobURL string `mapstructure:"clob_url"`
	// DataURL はData APIのベースURL。
	DataURL string `mapstructure:"data_url"`
	// Address は取引用ウォレットアドレス。
	Address string `mapstructure:"address"`
	// APIKey はCLOB L2認証のAPIキー。
	APIKey string `mapstructure:"api_key"`
	// Secret はCLOB L2認証のシークレット。
	Secret string `mapstructure:"secret"`
	// Passphrase はCLOB L2認証のパスフレーズ。
	Passphrase string `mapstructure:"passphrase"`
	// Timeout はヘルスチェック1回あたりのタイムアウト。
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	// Level はzerologのログレベル（debug, info, warn, error）。
	Level string `mapstructure:"level"`
	// Format は出力形式。"console" または "json"。
	Format string `mapstructure:"format"`
}

// envBindings は設定キーと環境変数名の対応。
// 既存のデプロイで使われている名前をそのまま受け付けるため、
// プレフィックスなしの名前を明示的に束縛する。
var envBindings = map[string][]string{
	"server.port":            {"PORT"},
	"server.allowed_origins": {"ALLOWED_ORIGINS"},
	"services.ingestion_url": {"INGESTION_URL", "NEXT_PUBLIC_API_INGESTION_URL"},
	"services.brain_url":     {"BRAIN_URL", "NEXT_PUBLIC_API_BRAIN_URL"},
	"services.execution_url": {"EXECUTION_URL", "NEXT_PUBLIC_API_EXECUTION_URL"},
	"proxy.timeout":          {"PROXY_TIMEOUT"},
	"auth.jwt_secret":        {"NEXTAUTH_SECRET", "JWT_SECRET"},
	"auth.admin_username":    {"ADMIN_USERNAME"},
	"auth.admin_password":    {"ADMIN_PASSWORD"},
	"auth.session_ttl":       {"SESSION_TTL"},
	"auth.secure_cookie":     {"SECURE_COOKIE"},
	"database.path":          {"DATABASE_PATH"},
	"polymarket.gamma_url":   {"GAMMA_API_URL"},
	"polymarket.clob_url":    {"CLOB_API_URL"},
	"polymarket.data_url":    {"DATA_API_URL"},
	"polymarket.address":     {"POLY_ADDRESS"},
	"polymarket.api_key":     {"POLY_API_KEY"},
	"polymarket.secret":      {"POLY_SECRET"},
	"polymarket.passphrase":  {"POLY_PASSPHRASE"},
	"polymarket.timeout":     {"POLYMARKET_TIMEOUT"},
	"log.level":              {"LOG_LEVEL"},
	"log.format":             {"LOG_FORMAT"},
}

// Load は設定ファイル、環境変数、デフォルト値から Config を構築する。
// cfgFile が空の場合はカレントディレクトリと /etc/sovrana の console.toml を探す。
// 設定ファイルは任意で、見つからなくてもエラーにしない。
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("console")
		v.AddConfigPath("/etc/sovrana")
		v.AddConfigPath(".")
	}

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("環境変数の束縛に失敗: key=%s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定のデコードに失敗: %w", err)
	}
	cfg.Server.AllowedOrigins = splitOrigins(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults はすべての設定キーのデフォルト値を登録する。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("services.ingestion_url", "http://ingestion:8001")
	v.SetDefault("services.brain_url", "http://brain:8002")
	v.SetDefault("services.execution_url", "http://execution:8003")

	v.SetDefault("proxy.timeout", 30*time.Second)

	v.SetDefault("auth.jwt_secret", "dev-secret-key")
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_password", "changeme")
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.secure_cookie", false)

	v.SetDefault("database.path", "/data/console.db")

	v.SetDefault("polymarket.gamma_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.clob_url", "https://clob.polymarket.com")
	v.SetDefault("polymarket.data_url", "https://data-api.polymarket.com")
	v.SetDefault("polymarket.timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	services := map[string]string{
		"ingestion": c.Services.Ingestion,
		"brain":     c.Services.Brain,
		"execution": c.Services.Execution,
	}
	for name, raw := range services {
		if err := validateBaseURL(raw); err != nil {
			return fmt.Errorf("%sサービスのURLが不正です: %w", name, err)
		}
	}
	for name, raw := range map[string]string{
		"gamma": c.Polymarket.GammaURL,
		"clob":  c.Polymarket.ClobURL,
		"data":  c.Polymarket.DataURL,
	} {
		if err := validateBaseURL(raw); err != nil {
			return fmt.Errorf("Polymarket %s APIのURLが不正です: %w", name, err)
		}
	}
	if c.Proxy.Timeout <= 0 {
		return fmt.Errorf("proxy.timeoutは正の値である必要があります: %s", c.Proxy.Timeout)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttlは正の値である必要があります: %s", c.Auth.SessionTTL)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secretが設定されていません")
	}
	if c.Server.Port == "" {
		return errors.New("server.portが設定されていません")
	}
	return nil
}

// validateBaseURL はスキームとホストを持つ絶対URLであることを検証する。
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("スキームはhttpまたはhttpsである必要があります: %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("ホストがありません: %q", raw)
	}
	return nil
}

// splitOrigins は環境変数からカンマ区切りで渡されたオリジンを展開する。
func splitOrigins(origins []string) []string {
	var out []string
	for _, o := range origins {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
