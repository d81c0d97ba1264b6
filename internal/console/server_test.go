package console

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/nao1215/sovrana/internal/config"
	"github.com/nao1215/sovrana/internal/proxy"
	"github.com/nao1215/sovrana/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT署名秘密鍵。
const testJWTSecret = "test-secret-key"

// upstreamCall は上流サービスが受け取った1件のリクエスト。
type upstreamCall struct {
	Service proxy.Service
	Method  string
	Path    string
	Query   string
	Body    string
	UserID  string
}

// responder は上流サービスの応答を決める関数。
type responder func(svc proxy.Service, w http.ResponseWriter, r *http.Request)

// respondOK は常に200と固定のJSONを返す。
func respondOK(_ proxy.Service, w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// fakeUpstreams はingestion、brain、executionの3つのモックサービス。
type fakeUpstreams struct {
	mu    sync.Mutex
	calls []upstreamCall
	urls  map[proxy.Service]string
}

func newFakeUpstreams(t *testing.T, respond responder) *fakeUpstreams {
	t.Helper()

	f := &fakeUpstreams{urls: make(map[proxy.Service]string)}
	for _, svc := range []proxy.Service{proxy.Ingestion, proxy.Brain, proxy.Execution} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.calls = append(f.calls, upstreamCall{
				Service: svc,
				Method:  r.Method,
				Path:    r.URL.Path,
				Query:   r.URL.RawQuery,
				Body:    string(body),
				UserID:  r.Header.Get("X-User-ID"),
			})
			f.mu.Unlock()
			respond(svc, w, r)
		}))
		t.Cleanup(srv.Close)
		f.urls[svc] = srv.URL
	}
	return f
}

// last は最後に受け取ったリクエストを返す。
func (f *fakeUpstreams) last(t *testing.T) upstreamCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("上流サービスにリクエストが届いていない")
	}
	return f.calls[len(f.calls)-1]
}

// count は受け取ったリクエスト数を返す。
func (f *fakeUpstreams) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// testConfig はテスト用の設定を返す。
func testConfig(ups *fakeUpstreams) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            "0",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: time.Second,
		},
		Services: config.ServicesConfig{
			Ingestion: ups.urls[proxy.Ingestion],
			Brain:     ups.urls[proxy.Brain],
			Execution: ups.urls[proxy.Execution],
		},
		Proxy: config.ProxyConfig{Timeout: 2 * time.Second},
		Auth: config.AuthConfig{
			JWTSecret:     testJWTSecret,
			AdminUsername: "admin",
			AdminPassword: "changeme",
			SessionTTL:    24 * time.Hour,
		},
		Database: config.DatabaseConfig{Path: ":memory:"},
		Polymarket: config.PolymarketConfig{
			GammaURL: "http://127.0.0.1:1",
			ClobURL:  "http://127.0.0.1:1",
			DataURL:  "http://127.0.0.1:1",
			Timeout:  time.Second,
		},
	}
}

// newTestServerWithConfig はモック上流サービスを持つテスト用サーバーを生成する。
// mutateがnilでなければサーバー生成前に設定を書き換える。
func newTestServerWithConfig(t *testing.T, respond responder, mutate func(*config.Config)) (*Server, *fakeUpstreams) {
	t.Helper()

	ups := newFakeUpstreams(t, respond)
	cfg := testConfig(ups)
	if mutate != nil {
		mutate(cfg)
	}

	s, err := NewServer(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("サーバーの生成に失敗: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, ups
}

// newTestServerWithBackend は応答を指定したモック上流サービスを持つテスト用サーバーを生成する。
func newTestServerWithBackend(t *testing.T, respond responder) (*Server, *fakeUpstreams) {
	t.Helper()
	return newTestServerWithConfig(t, respond, nil)
}

// newTestServer は常に200を返すモック上流サービスを持つテスト用サーバーを生成する。
func newTestServer(t *testing.T) (*Server, *fakeUpstreams) {
	t.Helper()
	return newTestServerWithBackend(t, respondOK)
}

// sessionCookie はテスト用のセッションCookieを生成する。
func sessionCookie(t *testing.T, user middleware.SessionUser) *http.Cookie {
	t.Helper()
	token, err := middleware.GenerateJWT(testJWTSecret, user, time.Hour)
	if err != nil {
		t.Fatalf("テスト用JWT生成に失敗: %v", err)
	}
	return &http.Cookie{Name: middleware.SessionCookieName, Value: token}
}

// testOperator はテストで使うログイン済みオペレーター。
var testOperator = middleware.SessionUser{ID: "op-1", Name: "alice", Email: "alice@sovrana.local"}

// doRequest はサーバーに1件のリクエストを送る。bodyが空ならボディなし。
func doRequest(s *Server, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// decodeJSON はJSON文字列をany型にデコードする。
func decodeJSON(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("JSONのパースに失敗: %v (%s)", err, raw)
	}
	return v
}

// TestHealth はヘルスチェックエンドポイントを検証する。
func TestHealth(t *testing.T) {
	t.Parallel()

	s, ups := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	want := map[string]any{"status": "ok", "service": "console"}
	if diff := cmp.Diff(want, decodeJSON(t, w.Body.String())); diff != "" {
		t.Errorf("レスポンスが一致しない (-want +got):\n%s", diff)
	}
	if ups.count() != 0 {
		t.Error("ヘルスチェックで上流サービスが呼ばれた")
	}
}

// TestProxyRoutes は各APIルートが正しい上流サービスとパスに転送されることを検証する。
func TestProxyRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		target      string
		body        string
		wantService proxy.Service
		wantMethod  string
		wantPath    string
		wantQuery   string
		wantBody    any
	}{
		{name: "エージェント一覧", method: http.MethodGet, target: "/api/agents", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/agents"},
		{
			name: "エージェント作成", method: http.MethodPost, target: "/api/agents",
			body:        `{"name":"alpha","mode":"read_only","is_simulate":true}`,
			wantService: proxy.Execution, wantMethod: http.MethodPost, wantPath: "/agents",
			wantBody: map[string]any{"name": "alpha", "mode": "read_only", "is_simulate": true},
		},
		{name: "エージェント取得", method: http.MethodGet, target: "/api/agents/a1", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/agents/a1"},
		{
			name: "エージェント更新", method: http.MethodPatch, target: "/api/agents/a1",
			body:        `{"manual_approve":false}`,
			wantService: proxy.Execution, wantMethod: http.MethodPatch, wantPath: "/agents/a1",
			wantBody: map[string]any{"manual_approve": false},
		},
		{name: "エージェント削除", method: http.MethodDelete, target: "/api/agents/a1", wantService: proxy.Execution, wantMethod: http.MethodDelete, wantPath: "/agents/a1"},
		{name: "エージェント開始", method: http.MethodPost, target: "/api/agents/a1/start", wantService: proxy.Execution, wantMethod: http.MethodPost, wantPath: "/agents/a1/start"},
		{name: "エージェント停止", method: http.MethodPost, target: "/api/agents/a1/stop", wantService: proxy.Execution, wantMethod: http.MethodPost, wantPath: "/agents/a1/stop"},
		{name: "リスク上限取得", method: http.MethodGet, target: "/api/agents/a1/risk", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/agents/a1/risk"},
		{
			name: "リスク上限更新", method: http.MethodPut, target: "/api/agents/a1/risk",
			body:        `{"max_order_size_usdc":50,"cooldown_seconds":30}`,
			wantService: proxy.Execution, wantMethod: http.MethodPut, wantPath: "/agents/a1/risk",
			wantBody: map[string]any{"max_order_size_usdc": float64(50), "cooldown_seconds": float64(30)},
		},
		{
			name: "リスク上限を0に更新", method: http.MethodPut, target: "/api/agents/a1/risk",
			body:        `{"max_order_size_usdc":0,"max_exposure_usdc":0}`,
			wantService: proxy.Execution, wantMethod: http.MethodPut, wantPath: "/agents/a1/risk",
			wantBody: map[string]any{"max_order_size_usdc": float64(0), "max_exposure_usdc": float64(0)},
		},
		{name: "市場許可一覧", method: http.MethodGet, target: "/api/agents/a1/markets", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/agents/a1/markets"},
		{
			name: "市場許可追加", method: http.MethodPost, target: "/api/agents/a1/markets",
			body:        `{"condition_id":"0xcond"}`,
			wantService: proxy.Execution, wantMethod: http.MethodPost, wantPath: "/agents/a1/markets",
			wantBody: map[string]any{"condition_id": "0xcond"},
		},
		{name: "市場許可削除", method: http.MethodDelete, target: "/api/agents/a1/markets/p9", wantService: proxy.Execution, wantMethod: http.MethodDelete, wantPath: "/agents/a1/markets/p9"},
		{name: "戦略取得", method: http.MethodGet, target: "/api/agents/a1/strategy", wantService: proxy.Brain, wantMethod: http.MethodGet, wantPath: "/agents/a1/strategy"},
		{
			name: "戦略割り当て", method: http.MethodPost, target: "/api/agents/a1/strategy",
			body:        `{"template_type":"momentum","config":{"window":5}}`,
			wantService: proxy.Brain, wantMethod: http.MethodPost, wantPath: "/agents/a1/strategy",
			wantBody: map[string]any{"template_type": "momentum", "config": map[string]any{"window": float64(5)}},
		},
		{
			name: "全体キルスイッチ", method: http.MethodPost, target: "/api/kill/global",
			body:        `{"enabled":true}`,
			wantService: proxy.Execution, wantMethod: http.MethodPost, wantPath: "/kill/global",
			wantBody: map[string]any{"enabled": true},
		},
		{
			name: "エージェントのキルスイッチ", method: http.MethodPost, target: "/api/kill/agent/a1",
			body:        `{"enabled":true,"extra":"dropped"}`,
			wantService: proxy.Execution, wantMethod: http.MethodPost, wantPath: "/kill/agent/a1",
			wantBody: map[string]any{"enabled": true},
		},
		{name: "注文一覧", method: http.MethodGet, target: "/api/orders", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/orders"},
		{
			name: "注文取り消し", method: http.MethodPost, target: "/api/orders/cancel",
			body:        `{"agent_id":"a1","order_id":"o1","polymarket_order_id":"pm1"}`,
			wantService: proxy.Execution, wantMethod: http.MethodPost, wantPath: "/cancel",
			wantBody: map[string]any{"agent_id": "a1", "order_id": "o1", "polymarket_order_id": "pm1"},
		},
		{name: "約定一覧", method: http.MethodGet, target: "/api/fills", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/fills"},
		{name: "ポジション一覧", method: http.MethodGet, target: "/api/positions", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/positions"},
		{name: "損益", method: http.MethodGet, target: "/api/pnl", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/pnl"},
		{name: "監査ログ", method: http.MethodGet, target: "/api/audit", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/audit"},
		{name: "ウォレット一覧", method: http.MethodGet, target: "/api/wallets", wantService: proxy.Execution, wantMethod: http.MethodGet, wantPath: "/wallets"},
		{
			name: "ウォレット作成", method: http.MethodPost, target: "/api/wallets",
			body:        `{"name":"main","evm_address":"0x52908400098527886E0F7030069857D2E4169EE7","secret_ref":"POLY_KEY"}`,
			wantService: proxy.Execution, wantMethod: http.MethodPost, wantPath: "/wallets",
			wantBody: map[string]any{"name": "main", "evm_address": "0x52908400098527886E0F7030069857D2E4169EE7", "secret_ref": "POLY_KEY"},
		},
		{name: "シグナル一覧", method: http.MethodGet, target: "/api/signals", wantService: proxy.Brain, wantMethod: http.MethodGet, wantPath: "/signals"},
		{name: "シグナル承認", method: http.MethodPost, target: "/api/signals/s1/approve", wantService: proxy.Brain, wantMethod: http.MethodPost, wantPath: "/signals/s1/approve"},
		{
			name: "シグナル却下", method: http.MethodPost, target: "/api/signals/s1/reject",
			body:        `{"reason":"too risky"}`,
			wantService: proxy.Brain, wantMethod: http.MethodPost, wantPath: "/signals/s1/reject",
			wantBody: map[string]any{"reason": "too risky"},
		},
		{name: "戦略テンプレート一覧", method: http.MethodGet, target: "/api/strategies/templates", wantService: proxy.Brain, wantMethod: http.MethodGet, wantPath: "/strategies/templates"},
		{name: "実行履歴", method: http.MethodGet, target: "/api/runs", wantService: proxy.Brain, wantMethod: http.MethodGet, wantPath: "/runs"},
		{name: "市場一覧", method: http.MethodGet, target: "/api/markets?active=true", wantService: proxy.Ingestion, wantMethod: http.MethodGet, wantPath: "/markets", wantQuery: "active=true"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"が上流に転送されること", func(t *testing.T) {
			t.Parallel()

			s, ups := newTestServer(t)

			w := doRequest(s, tt.method, tt.target, tt.body, sessionCookie(t, testOperator))
			if w.Code != http.StatusOK {
				t.Fatalf("ステータスコード: got %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
			}
			if w.Body.String() != `{"ok":true}` {
				t.Errorf("レスポンスボディ = %s, want %s", w.Body.String(), `{"ok":true}`)
			}

			got := ups.last(t)
			if got.Service != tt.wantService {
				t.Errorf("転送先サービス = %q, want %q", got.Service, tt.wantService)
			}
			if got.Method != tt.wantMethod {
				t.Errorf("メソッド = %q, want %q", got.Method, tt.wantMethod)
			}
			if got.Path != tt.wantPath {
				t.Errorf("パス = %q, want %q", got.Path, tt.wantPath)
			}
			if got.Query != tt.wantQuery {
				t.Errorf("クエリ = %q, want %q", got.Query, tt.wantQuery)
			}
			if got.UserID != testOperator.ID {
				t.Errorf("X-User-ID = %q, want %q", got.UserID, testOperator.ID)
			}
			if tt.wantBody == nil {
				if got.Body != "" {
					t.Errorf("ボディが送信された: %s", got.Body)
				}
				return
			}
			if diff := cmp.Diff(tt.wantBody, decodeJSON(t, got.Body)); diff != "" {
				t.Errorf("上流に送られたボディが一致しない (-want +got):\n%s", diff)
			}
		})
	}
}

// TestProxyBehavior は転送時の共通動作を検証する。
func TestProxyBehavior(t *testing.T) {
	t.Parallel()

	t.Run("GETのクエリ文字列がそのまま転送されること", func(t *testing.T) {
		t.Parallel()

		s, ups := newTestServer(t)
		w := doRequest(s, http.MethodGet, "/api/orders?status=open&agent_id=a1", "", sessionCookie(t, testOperator))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := ups.last(t).Query; got != "agent_id=a1&status=open" {
			t.Errorf("クエリ = %q, want %q", got, "agent_id=a1&status=open")
		}
	})

	t.Run("キルスイッチの解除もPOSTで転送されること", func(t *testing.T) {
		t.Parallel()

		s, ups := newTestServer(t)
		w := doRequest(s, http.MethodPost, "/api/kill/global", `{"enabled":false}`, sessionCookie(t, testOperator))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		got := ups.last(t)
		if got.Method != http.MethodPost {
			t.Errorf("メソッド = %q, want POST", got.Method)
		}
		if diff := cmp.Diff(map[string]any{"enabled": false}, decodeJSON(t, got.Body)); diff != "" {
			t.Errorf("ボディが一致しない (-want +got):\n%s", diff)
		}
	})

	t.Run("手動注文にシグナルIDと確信度と注文種別が付与されること", func(t *testing.T) {
		t.Parallel()

		s, ups := newTestServer(t)
		body := `{"agent_id":"a1","condition_id":"c1","token_id":"t1","side":"buy","price":0.42,"size_usdc":25}`
		w := doRequest(s, http.MethodPost, "/api/orders/manual", body, sessionCookie(t, testOperator))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
		}

		got := ups.last(t)
		if got.Service != proxy.Execution || got.Path != "/execute" {
			t.Errorf("転送先 = %s%s, want execution/execute", got.Service, got.Path)
		}
		want := map[string]any{
			"agent_id":     "a1",
			"signal_id":    "00000000-0000-0000-0000-000000000000",
			"condition_id": "c1",
			"token_id":     "t1",
			"side":         "buy",
			"price":        0.42,
			"size_usdc":    float64(25),
			"confidence":   float64(1),
			"order_type":   "limit",
		}
		if diff := cmp.Diff(want, decodeJSON(t, got.Body)); diff != "" {
			t.Errorf("上流に送られた注文が一致しない (-want +got):\n%s", diff)
		}
	})

	t.Run("パスパラメータはエスケープして転送されること", func(t *testing.T) {
		t.Parallel()

		s, ups := newTestServer(t)
		w := doRequest(s, http.MethodGet, "/api/agents/agent%20one", "", sessionCookie(t, testOperator))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := ups.last(t).Path; got != "/agents/agent one" {
			t.Errorf("パス = %q, want %q", got, "/agents/agent one")
		}
	})

	t.Run("上流のステータスコードとボディがそのまま返ること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestServerWithBackend(t, func(_ proxy.Service, w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"detail":"Agent already running"}`))
		})
		w := doRequest(s, http.MethodPost, "/api/agents/a1/start", "", sessionCookie(t, testOperator))
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
		if w.Body.String() != `{"detail":"Agent already running"}` {
			t.Errorf("レスポンスボディ = %s", w.Body.String())
		}
	})

	fallbacks := []struct {
		target string
		want   string
	}{
		{target: "/api/agents", want: "{}"},
		{target: "/api/agents/a1/risk", want: "{}"},
		{target: "/api/orders", want: "[]"},
		{target: "/api/wallets", want: "[]"},
		{target: "/api/strategies/templates", want: "[]"},
		{target: "/api/markets", want: "[]"},
	}
	for _, tt := range fallbacks {
		t.Run(tt.target+"でJSONでない応答は既定値になること", func(t *testing.T) {
			t.Parallel()

			s, _ := newTestServerWithBackend(t, func(_ proxy.Service, w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("Internal Server Error"))
			})
			w := doRequest(s, http.MethodGet, tt.target, "", sessionCookie(t, testOperator))
			if w.Code != http.StatusInternalServerError {
				t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusInternalServerError)
			}
			if w.Body.String() != tt.want {
				t.Errorf("レスポンスボディ = %q, want %q", w.Body.String(), tt.want)
			}
		})
	}

	t.Run("上流に接続できない場合は503が返ること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestServerWithConfig(t, respondOK, func(cfg *config.Config) {
			cfg.Services.Execution = "http://127.0.0.1:1"
		})
		w := doRequest(s, http.MethodGet, "/api/agents", "", sessionCookie(t, testOperator))
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		body, ok := decodeJSON(t, w.Body.String()).(map[string]any)
		if !ok || body["error"] == "" {
			t.Errorf("errorフィールドが無い: %s", w.Body.String())
		}
	})
}

// TestInvalidBodies は不正なリクエストボディが上流に転送されないことを検証する。
func TestInvalidBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "エージェント名が無い", method: http.MethodPost, target: "/api/agents", body: `{"mode":"read_only"}`},
		{name: "未知のモード", method: http.MethodPost, target: "/api/agents", body: `{"name":"a","mode":"yolo"}`},
		{name: "JSONでないボディ", method: http.MethodPost, target: "/api/agents", body: `name=a`},
		{name: "空の名前への更新", method: http.MethodPatch, target: "/api/agents/a1", body: `{"name":""}`},
		{name: "負の最大注文サイズ", method: http.MethodPut, target: "/api/agents/a1/risk", body: `{"max_order_size_usdc":-1}`},
		{name: "enabledが無いキルスイッチ", method: http.MethodPost, target: "/api/kill/global", body: `{}`},
		{name: "enabledが真偽値でないキルスイッチ", method: http.MethodPost, target: "/api/kill/agent/a1", body: `{"enabled":"yes"}`},
		{name: "注文IDが無い取り消し", method: http.MethodPost, target: "/api/orders/cancel", body: `{"agent_id":"a1"}`},
		{name: "価格が範囲外の手動注文", method: http.MethodPost, target: "/api/orders/manual", body: `{"agent_id":"a1","condition_id":"c1","token_id":"t1","side":"buy","price":1.5,"size_usdc":10}`},
		{name: "売買方向が不正な手動注文", method: http.MethodPost, target: "/api/orders/manual", body: `{"agent_id":"a1","condition_id":"c1","token_id":"t1","side":"hold","price":0.5,"size_usdc":10}`},
		{name: "アドレスが不正なウォレット", method: http.MethodPost, target: "/api/wallets", body: `{"name":"w","evm_address":"not-an-address","secret_ref":"k"}`},
		{name: "テンプレートが無い戦略", method: http.MethodPost, target: "/api/agents/a1/strategy", body: `{"config":{}}`},
		{name: "condition_idが無い市場許可", method: http.MethodPost, target: "/api/agents/a1/markets", body: `{"notes":"x"}`},
		{name: "ボディが無いシグナル却下", method: http.MethodPost, target: "/api/signals/s1/reject", body: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name+"場合は400が返ること", func(t *testing.T) {
			t.Parallel()

			s, ups := newTestServer(t)
			w := doRequest(s, tt.method, tt.target, tt.body, sessionCookie(t, testOperator))
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード: got %d, want %d, body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
			if ups.count() != 0 {
				t.Errorf("不正なボディが上流に転送された: %+v", ups.last(t))
			}
		})
	}
}

// TestSessionGate は認証ゲートを検証する。
func TestSessionGate(t *testing.T) {
	t.Parallel()

	t.Run("未認証のAPI呼び出しは401になり上流に転送されないこと", func(t *testing.T) {
		t.Parallel()

		s, ups := newTestServer(t)
		for _, target := range []string{"/api/agents", "/api/orders", "/api/polymarket/health", "/api/me"} {
			w := doRequest(s, http.MethodGet, target, "")
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s のステータスコード: got %d, want %d", target, w.Code, http.StatusUnauthorized)
			}
		}
		if ups.count() != 0 {
			t.Error("未認証のリクエストが上流に転送された")
		}
	})

	t.Run("未認証のページアクセスはログインページにリダイレクトされること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestServer(t)
		tests := []struct {
			target string
			want   string
		}{
			{target: "/", want: "/login?callbackUrl=%2F"},
			{target: "/agents/a1", want: "/login?callbackUrl=%2Fagents%2Fa1"},
			{target: "/orders?tab=open", want: "/login?callbackUrl=%2Forders%3Ftab%3Dopen"},
		}
		for _, tt := range tests {
			w := doRequest(s, http.MethodGet, tt.target, "")
			if w.Code != http.StatusFound {
				t.Errorf("%s のステータスコード: got %d, want %d", tt.target, w.Code, http.StatusFound)
			}
			if got := w.Header().Get("Location"); got != tt.want {
				t.Errorf("%s のリダイレクト先 = %q, want %q", tt.target, got, tt.want)
			}
		}
	})

	t.Run("認証済みならダッシュボードが返ること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestServer(t)
		w := doRequest(s, http.MethodGet, "/agents/new", "", sessionCookie(t, testOperator))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("Content-Type = %q, want text/html", ct)
		}
	})

	t.Run("公開パスは認証なしで取得できること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestServer(t)
		for _, target := range []string{"/login", "/health", "/metrics", "/static/console.css", "/static/login.js", "/api/auth/session"} {
			w := doRequest(s, http.MethodGet, target, "")
			if w.Code != http.StatusOK {
				t.Errorf("%s のステータスコード: got %d, want %d", target, w.Code, http.StatusOK)
			}
		}
	})
}

// TestMetricsEndpoint はPrometheusのメトリクスが公開されることを検証する。
func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	_ = doRequest(s, http.MethodGet, "/api/agents", "", sessionCookie(t, testOperator))

	w := doRequest(s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	for _, name := range []string{"sovrana_http_requests_total", "sovrana_upstream_requests_total"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("メトリクス %s が含まれていない", name)
		}
	}
}
