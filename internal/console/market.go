package console

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/sovrana/internal/polymarket"
)

// Polymarket公開APIから市場データを直接取得するハンドラ群。
// 上流サービスを経由しない読み取り専用の経路。

// 省略時のクエリ値。
const (
	defaultMarketsLimit    = 100
	defaultEventsLimit     = 50
	defaultHistoryInterval = "1d"
	defaultHistoryFidelity = 60
)

// bindQuery はクエリをqにバインドする。失敗した場合は400を返してfalseを返す。
func bindQuery(c *gin.Context, q any) bool {
	if err := c.ShouldBindQuery(q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "クエリパラメータが不正です: " + err.Error()})
		return false
	}
	return true
}

// respondMarketData は取得結果をwrapのキーで包んで返す。wrapが空ならそのまま返す。
// 取得に失敗した場合は500を返す。
func (s *Server) respondMarketData(c *gin.Context, wrap string, data json.RawMessage, err error) {
	if err != nil {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Polymarketからの取得に失敗")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if wrap == "" {
		c.JSON(http.StatusOK, data)
		return
	}
	c.JSON(http.StatusOK, gin.H{wrap: data})
}

// handlePolymarketMarkets は市場一覧または検索結果を返すハンドラを返す。
func (s *Server) handlePolymarketMarkets() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := marketsQuery{Limit: defaultMarketsLimit}
		if !bindQuery(c, &q) {
			return
		}
		data, err := s.polymarket.Markets(c.Request.Context(), q.Search, q.Limit)
		s.respondMarketData(c, "", data, err)
	}
}

// handlePolymarketEvents は有効なイベント一覧を返すハンドラを返す。
func (s *Server) handlePolymarketEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := eventsQuery{Limit: defaultEventsLimit}
		if !bindQuery(c, &q) {
			return
		}
		data, err := s.polymarket.Events(c.Request.Context(), q.Limit)
		s.respondMarketData(c, "", data, err)
	}
}

// handlePolymarketOrderBook はトークンの板情報を返すハンドラを返す。
func (s *Server) handlePolymarketOrderBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := orderBookQuery{Type: string(polymarket.OrderBookFull)}
		if !bindQuery(c, &q) {
			return
		}
		data, err := s.polymarket.OrderBook(c.Request.Context(), q.TokenID, polymarket.OrderBookKind(q.Type))
		s.respondMarketData(c, "data", data, err)
	}
}

// handlePolymarketPricesHistory はトークンの価格履歴を返すハンドラを返す。
func (s *Server) handlePolymarketPricesHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := pricesHistoryQuery{Interval: defaultHistoryInterval, Fidelity: defaultHistoryFidelity}
		if !bindQuery(c, &q) {
			return
		}
		data, err := s.polymarket.PricesHistory(c.Request.Context(), q.TokenID, q.Interval, q.Fidelity)
		s.respondMarketData(c, "data", data, err)
	}
}

// handlePolymarketPositions は設定されたウォレットのポジションを返すハンドラを返す。
func (s *Server) handlePolymarketPositions() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q positionsQuery
		if !bindQuery(c, &q) {
			return
		}
		data, err := s.polymarket.Positions(c.Request.Context(), q.Closed)
		s.respondMarketData(c, "positions", data, err)
	}
}

// handlePolymarketTrades は設定されたウォレットの約定履歴を返すハンドラを返す。
func (s *Server) handlePolymarketTrades() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q tradesQuery
		if !bindQuery(c, &q) {
			return
		}
		data, err := s.polymarket.Trades(c.Request.Context(), q.Limit)
		s.respondMarketData(c, "trades", data, err)
	}
}
