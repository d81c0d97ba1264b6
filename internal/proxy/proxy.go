package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/sovrana/pkg/httpclient"
	"github.com/nao1215/sovrana/pkg/middleware"
)

// Request は上流サービスへ転送する1件のリクエスト。
type Request struct {
	// Service は転送先のサービス名。
	Service Service
	// Path はベースURLに連結するパス（例: "/agents/abc/risk"）。
	Path string
	// Method はHTTPメソッド。空の場合はGET。
	Method string
	// Body はJSONにシリアライズして送信するボディ。nilの場合は送信しない。
	Body any
	// Query はクエリ文字列として付与するパラメータ。
	Query url.Values
}

// Fallback は上流のボディがJSONとして解釈できない場合に返す既定値の種類。
type Fallback int

const (
	// FallbackObject は空オブジェクト {} を返す。
	FallbackObject Fallback = iota
	// FallbackArray は空配列 [] を返す。一覧系のエンドポイントで使用する。
	FallbackArray
)

// body は既定値のJSON表現を返す。
func (f Fallback) body() []byte {
	if f == FallbackArray {
		return []byte("[]")
	}
	return []byte("{}")
}

// contentTypeJSON はクライアントに返すレスポンスのContent-Type。
const contentTypeJSON = "application/json; charset=utf-8"

// Proxy はレジストリを使ってリクエストを上流サービスに転送する。
type Proxy struct {
	// registry はサービス名とクライアントの対応表。
	registry *Registry
	// logger は転送エラーを出力するロガー。
	logger zerolog.Logger
}

// New は新しい Proxy を生成する。
func New(registry *Registry, logger zerolog.Logger) *Proxy {
	return &Proxy{
		registry: registry,
		logger:   logger.With().Str("component", "proxy").Logger(),
	}
}

// Registry はプロキシが使用するレジストリを返す。
func (p *Proxy) Registry() *Registry {
	return p.registry
}

// To はリクエストを上流サービスに送信し、上流のレスポンスを加工せずに返す。
// 呼び出し側でレスポンスボディを閉じること。
func (p *Proxy) To(ctx context.Context, req Request) (*http.Response, error) {
	client, err := p.registry.Client(req.Service)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	resp, err := client.Do(ctx, method, req.Path, req.Body, req.Query)
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	upstreamRequestsTotal.WithLabelValues(string(req.Service), method, status).Inc()
	upstreamRequestDuration.WithLabelValues(string(req.Service), method).Observe(time.Since(start).Seconds())

	return resp, err
}

// JSON はリクエストを上流サービスに転送し、上流のステータスコードとJSONボディをそのまま返す。
// 上流のボディがJSONとして解釈できない場合は fallback の既定値を返す。
// 上流に到達できない場合は503を返す。
func (p *Proxy) JSON(c *gin.Context, req Request, fallback Fallback) {
	ctx := httpclient.WithUserID(c.Request.Context(), middleware.GetUserID(c))

	resp, err := p.To(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnknownService) {
			p.logger.Error().Err(err).Str("service", string(req.Service)).Msg("プロキシ先の解決に失敗")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロキシ先のサービスが見つかりません"})
			return
		}
		p.logger.Error().Err(err).
			Str("service", string(req.Service)).
			Str("path", req.Path).
			Msg("上流サービスとの通信に失敗")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "上流サービスに接続できません"})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || !json.Valid(body) {
		if err != nil {
			p.logger.Warn().Err(err).Str("service", string(req.Service)).Str("path", req.Path).Msg("上流レスポンスの読み取りに失敗")
		}
		body = fallback.body()
	}

	if !bodyAllowed(resp.StatusCode) {
		c.Status(resp.StatusCode)
		return
	}
	c.Data(resp.StatusCode, contentTypeJSON, body)
}

// bodyAllowed はステータスコードがレスポンスボディを持てるかどうかを返す。
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
