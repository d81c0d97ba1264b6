package console

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/nao1215/sovrana/internal/config"
	"github.com/nao1215/sovrana/internal/polymarket"
	"github.com/nao1215/sovrana/internal/proxy"
	"github.com/nao1215/sovrana/pkg/middleware"
	"github.com/nao1215/sovrana/pkg/migration"
)

//go:embed web/login.html
var loginPage []byte

//go:embed web/index.html
var dashboardPage []byte

//go:embed web/static
var staticFiles embed.FS

// loginPath はログインページのパス。未認証のページアクセスはここにリダイレクトされる。
const loginPath = "/login"

// readHeaderTimeout はリクエストヘッダーの読み取りタイムアウト。
const readHeaderTimeout = 10 * time.Second

// dashboardPaths はダッシュボードのシェルを返すページのパス。
var dashboardPaths = []string{
	"/",
	"/agents",
	"/agents/new",
	"/agents/:id",
	"/signals",
	"/orders",
	"/monitoring",
	"/audit",
	"/settings",
}

// Server はオペレーターコンソールのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は起動時に読み込んだ設定。
	cfg *config.Config
	// logger はサーバー全体で使うロガー。
	logger zerolog.Logger
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store はオペレーター情報のストア。
	store *operatorStore
	// proxy は上流サービスへの転送を行う。
	proxy *proxy.Proxy
	// polymarket はPolymarket公開APIのクライアント。
	polymarket *polymarket.Client
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// NewServer は新しいコンソールサーバーを生成する。
// データベースを開いてマイグレーションを適用し、ルーティングを設定する。
func NewServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	sqlDB, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	applied, err := migration.Run(ctx, sqlDB, migrationFiles, migrationDir, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	logger.Debug().Int("applied", applied).Str("path", cfg.Database.Path).Msg("データベースを初期化しました")

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics("/health", "/metrics"))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	registry := proxy.NewRegistry(cfg.Services, cfg.Proxy.Timeout)

	s := &Server{
		router:     router,
		cfg:        cfg,
		logger:     logger,
		db:         sqlDB,
		store:      &operatorStore{db: sqlDB},
		proxy:      proxy.New(registry, logger),
		polymarket: polymarket.NewClient(cfg.Polymarket),
		now:        time.Now,
	}
	if err := s.setupRoutes(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	for _, svc := range registry.Services() {
		base, _ := registry.BaseURL(svc)
		logger.Info().Str("service", string(svc)).Str("url", base).Msg("上流サービスを登録しました")
	}
	return s, nil
}

// openDatabase はSQLiteデータベースを開く。
func openDatabase(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// インメモリDBは接続ごとに別のDBになるため1接続に制限する
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	return sqlDB, nil
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info().Str("addr", srv.Addr).Msg("コンソールサービスを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		s.logger.Info().Msg("コンソールサービスを停止します")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("シャットダウンに失敗: %w", err)
		}
		return nil
	})
	return eg.Wait()
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() error {
	gate := middleware.SessionAuth(s.cfg.Auth.JWTSecret, loginPath)

	// 認証不要
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "console"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET(loginPath, servePage(loginPage))

	static, err := fs.Sub(staticFiles, "web/static")
	if err != nil {
		return fmt.Errorf("静的ファイルの読み込みに失敗: %w", err)
	}
	s.router.StaticFS("/static", http.FS(static))

	auth := s.router.Group("/api/auth")
	{
		auth.POST("/login", s.handleLogin())
		auth.POST("/logout", s.handleLogout())
		auth.GET("/session", s.handleSession())
	}

	// ダッシュボード（未認証はログインページへリダイレクト）
	pages := s.router.Group("/")
	pages.Use(gate)
	for _, p := range dashboardPaths {
		pages.GET(p, servePage(dashboardPage))
	}

	// 認証必須のAPIエンドポイント
	api := s.router.Group("/api")
	api.Use(gate)
	{
		api.GET("/me", s.handleGetCurrentOperator())

		// エージェント
		api.GET("/agents", s.handleProxy(proxy.Execution, "/agents", proxy.FallbackObject))
		api.POST("/agents", proxyBody[createAgentRequest](s, proxy.Execution, "/agents"))
		api.GET("/agents/:id", s.handleProxy(proxy.Execution, "/agents/:id", proxy.FallbackObject))
		api.PATCH("/agents/:id", proxyBody[updateAgentRequest](s, proxy.Execution, "/agents/:id"))
		api.DELETE("/agents/:id", s.handleProxy(proxy.Execution, "/agents/:id", proxy.FallbackObject))
		api.POST("/agents/:id/start", s.handleProxy(proxy.Execution, "/agents/:id/start", proxy.FallbackObject))
		api.POST("/agents/:id/stop", s.handleProxy(proxy.Execution, "/agents/:id/stop", proxy.FallbackObject))
		api.GET("/agents/:id/risk", s.handleProxy(proxy.Execution, "/agents/:id/risk", proxy.FallbackObject))
		api.PUT("/agents/:id/risk", proxyBody[riskLimitsRequest](s, proxy.Execution, "/agents/:id/risk"))
		api.GET("/agents/:id/markets", s.handleProxy(proxy.Execution, "/agents/:id/markets", proxy.FallbackArray))
		api.POST("/agents/:id/markets", proxyBody[marketPermissionRequest](s, proxy.Execution, "/agents/:id/markets"))
		api.DELETE("/agents/:id/markets/:perm_id", s.handleProxy(proxy.Execution, "/agents/:id/markets/:perm_id", proxy.FallbackObject))
		api.GET("/agents/:id/strategy", s.handleProxy(proxy.Brain, "/agents/:id/strategy", proxy.FallbackObject))
		api.POST("/agents/:id/strategy", proxyBody[strategyAssignRequest](s, proxy.Brain, "/agents/:id/strategy"))

		// キルスイッチ
		api.POST("/kill/global", proxyBody[killSwitchRequest](s, proxy.Execution, "/kill/global"))
		api.POST("/kill/agent/:id", proxyBody[killSwitchRequest](s, proxy.Execution, "/kill/agent/:id"))

		// 注文と約定
		api.GET("/orders", s.handleProxy(proxy.Execution, "/orders", proxy.FallbackArray))
		api.POST("/orders/cancel", proxyBody[cancelOrderRequest](s, proxy.Execution, "/cancel"))
		api.POST("/orders/manual", proxyConverted(s, proxy.Execution, "/execute", manualOrderRequest.toExecute))
		api.GET("/fills", s.handleProxy(proxy.Execution, "/fills", proxy.FallbackArray))
		api.GET("/positions", s.handleProxy(proxy.Execution, "/positions", proxy.FallbackArray))
		api.GET("/pnl", s.handleProxy(proxy.Execution, "/pnl", proxy.FallbackArray))
		api.GET("/audit", s.handleProxy(proxy.Execution, "/audit", proxy.FallbackArray))

		// ウォレット
		api.GET("/wallets", s.handleProxy(proxy.Execution, "/wallets", proxy.FallbackArray))
		api.POST("/wallets", proxyBody[createWalletRequest](s, proxy.Execution, "/wallets"))

		// シグナルと戦略
		api.GET("/signals", s.handleProxy(proxy.Brain, "/signals", proxy.FallbackArray))
		api.POST("/signals/:id/approve", s.handleProxy(proxy.Brain, "/signals/:id/approve", proxy.FallbackObject))
		api.POST("/signals/:id/reject", proxyBody[rejectSignalRequest](s, proxy.Brain, "/signals/:id/reject"))
		api.GET("/strategies/templates", s.handleProxy(proxy.Brain, "/strategies/templates", proxy.FallbackArray))
		api.GET("/runs", s.handleProxy(proxy.Brain, "/runs", proxy.FallbackArray))

		// 市場データ
		api.GET("/markets", s.handleProxy(proxy.Ingestion, "/markets", proxy.FallbackArray))

		// Polymarket
		api.GET("/polymarket/health", s.handlePolymarketHealth())
		api.GET("/polymarket/markets", s.handlePolymarketMarkets())
		api.GET("/polymarket/events", s.handlePolymarketEvents())
		api.GET("/polymarket/orderbook", s.handlePolymarketOrderBook())
		api.GET("/polymarket/prices-history", s.handlePolymarketPricesHistory())
		api.GET("/polymarket/positions", s.handlePolymarketPositions())
		api.GET("/polymarket/trades", s.handlePolymarketTrades())
	}
	return nil
}

// servePage はHTMLページを返すハンドラを返す。
func servePage(page []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	}
}

// handleProxy はボディを持たないリクエストを上流サービスに転送するハンドラを返す。
// GETリクエストのクエリ文字列はそのまま転送する。
func (s *Server) handleProxy(svc proxy.Service, pathTemplate string, fallback proxy.Fallback) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := proxy.Request{
			Service: svc,
			Method:  c.Request.Method,
			Path:    expandPath(c, pathTemplate),
		}
		if c.Request.Method == http.MethodGet {
			req.Query = c.Request.URL.Query()
		}
		s.proxy.JSON(c, req, fallback)
	}
}

// proxyBody はリクエストボディをTとして検証してから上流サービスに転送するハンドラを返す。
func proxyBody[T any](s *Server, svc proxy.Service, pathTemplate string) gin.HandlerFunc {
	return proxyConverted(s, svc, pathTemplate, func(body T) any { return body })
}

// proxyConverted はリクエストボディをTとして検証し、convertで変換したボディを転送するハンドラを返す。
// 検証に失敗した場合は上流に転送せず400を返す。
func proxyConverted[T any, U any](s *Server, svc proxy.Service, pathTemplate string, convert func(T) U) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body T
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です: " + err.Error()})
			return
		}
		s.proxy.JSON(c, proxy.Request{
			Service: svc,
			Method:  c.Request.Method,
			Path:    expandPath(c, pathTemplate),
			Body:    convert(body),
		}, proxy.FallbackObject)
	}
}

// expandPath は上流のパステンプレートの ":name" 区間をginのパスパラメータで置き換える。
func expandPath(c *gin.Context, pathTemplate string) string {
	if !strings.Contains(pathTemplate, ":") {
		return pathTemplate
	}
	segments := strings.Split(pathTemplate, "/")
	for i, seg := range segments {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			segments[i] = url.PathEscape(c.Param(name))
		}
	}
	return strings.Join(segments, "/")
}
