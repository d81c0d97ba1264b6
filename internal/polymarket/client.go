package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sovrana/internal/config"
	"github.com/nao1215/sovrana/pkg/httpclient"
)

// zeroAddress はData APIの疎通確認で問い合わせるダミーのウォレットアドレス。
const zeroAddress = "0x0000000000000000000000000000000000000000"

// Health は各APIの疎通結果。
type Health struct {
	// Gamma はGamma APIに到達できたかどうか。
	Gamma bool `json:"gamma"`
	// Clob はCLOB APIが2xxを返したかどうか。
	Clob bool `json:"clob"`
	// Data はData APIに到達できたかどうか。
	Data bool `json:"data"`
	// Timestamp は確認した時刻（RFC3339、UTC）。
	Timestamp string `json:"timestamp"`
}

// Operational はGammaとCLOBの両方が利用可能な場合にtrueを返す。
func (h Health) Operational() bool {
	return h.Gamma && h.Clob
}

// ConfigStatus は取引用認証情報の設定状況。値そのものは含まない。
type ConfigStatus struct {
	// HasAddress はウォレットアドレスが設定されているかどうか。
	HasAddress bool `json:"hasAddress"`
	// HasAPIKey はAPIキーが設定されているかどうか。
	HasAPIKey bool `json:"hasApiKey"`
	// HasSecret はシークレットが設定されているかどうか。
	HasSecret bool `json:"hasSecret"`
	// HasPassphrase はパスフレーズが設定されているかどうか。
	HasPassphrase bool `json:"hasPassphrase"`
	// IsFullyConfigured はすべての認証情報が揃っているかどうか。
	IsFullyConfigured bool `json:"isFullyConfigured"`
}

// Client はPolymarketの3つの公開APIに対するクライアント。
type Client struct {
	gamma *httpclient.Client
	clob  *httpclient.Client
	data  *httpclient.Client
	// creds は設定されている認証情報。
	creds config.PolymarketConfig
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// NewClient は設定から新しい Client を生成する。
func NewClient(cfg config.PolymarketConfig) *Client {
	return &Client{
		gamma: httpclient.NewWithTimeout(cfg.GammaURL, cfg.Timeout),
		clob:  httpclient.NewWithTimeout(cfg.ClobURL, cfg.Timeout),
		data:  httpclient.NewWithTimeout(cfg.DataURL, cfg.Timeout),
		creds: cfg,
		now:   time.Now,
	}
}

// probe は1つのAPIに対する疎通確認の結果。
type probe struct {
	ok  bool
	err error
}

// CheckHealth は3つのAPIに並行してリクエストを送り、疎通結果を返す。
// いずれか1つでも応答があればエラーにはならない。
// すべてのAPIに通信レベルで失敗した場合のみ、各失敗をまとめたエラーを返す。
func (c *Client) CheckHealth(ctx context.Context) (Health, error) {
	var gamma, clob, data probe

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		gamma = reachable(egCtx, c.gamma, "/markets", url.Values{"limit": {"1"}})
		return nil
	})
	eg.Go(func() error {
		clob = succeeded(egCtx, c.clob, "/time")
		return nil
	})
	eg.Go(func() error {
		data = reachable(egCtx, c.data, "/positions", url.Values{"user": {zeroAddress}})
		return nil
	})
	_ = eg.Wait()

	if gamma.err != nil && clob.err != nil && data.err != nil {
		return Health{}, fmt.Errorf("Polymarket APIにいずれも接続できません: %w",
			errors.Join(gamma.err, clob.err, data.err))
	}

	return Health{
		Gamma:     gamma.ok,
		Clob:      clob.ok,
		Data:      data.ok,
		Timestamp: c.now().UTC().Format(time.RFC3339),
	}, nil
}

// ConfigStatus は認証情報の設定状況を返す。
func (c *Client) ConfigStatus() ConfigStatus {
	s := ConfigStatus{
		HasAddress:    c.creds.Address != "",
		HasAPIKey:     c.creds.APIKey != "",
		HasSecret:     c.creds.Secret != "",
		HasPassphrase: c.creds.Passphrase != "",
	}
	s.IsFullyConfigured = s.HasAddress && s.HasAPIKey && s.HasSecret && s.HasPassphrase
	return s
}

// reachable は応答が返ればステータスコードに関わらず成功とみなす。
func reachable(ctx context.Context, client *httpclient.Client, path string, query url.Values) probe {
	resp, err := client.Do(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return probe{err: fmt.Errorf("%s%sへの接続に失敗: %w", client.BaseURL(), path, err)}
	}
	resp.Body.Close()
	return probe{ok: true}
}

// succeeded は2xxが返った場合のみ成功とみなす。
func succeeded(ctx context.Context, client *httpclient.Client, path string) probe {
	resp, err := client.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return probe{err: fmt.Errorf("%s%sへの接続に失敗: %w", client.BaseURL(), path, err)}
	}
	resp.Body.Close()
	return probe{ok: resp.StatusCode >= 200 && resp.StatusCode < 300}
}
