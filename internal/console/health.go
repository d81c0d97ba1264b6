package console

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handlePolymarketHealth はPolymarket APIの疎通状況と認証情報の設定状況を返すハンドラを返す。
// 上流サービスには問い合わせない。
func (s *Server) handlePolymarketHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		health, err := s.polymarket.CheckHealth(c.Request.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("Polymarketのヘルスチェックに失敗")
			c.JSON(http.StatusInternalServerError, gin.H{
				"status": "error",
				"error":  err.Error(),
			})
			return
		}

		status := "degraded"
		if health.Operational() {
			status = "operational"
		}
		cfgStatus := s.polymarket.ConfigStatus()

		c.JSON(http.StatusOK, gin.H{
			"status":     status,
			"apis":       health,
			"config":     cfgStatus,
			"configured": cfgStatus.IsFullyConfigured,
		})
	}
}
