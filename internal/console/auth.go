package console

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/sovrana/internal/proxy"
	"github.com/nao1215/sovrana/pkg/middleware"
)

// errInvalidCredentials はユーザー名またはパスワードが誤っていることを表す。
var errInvalidCredentials = errors.New("ユーザー名またはパスワードが正しくありません")

// localAdmin は設定された管理者資格情報でログインしたときのセッションユーザー。
var localAdmin = middleware.SessionUser{ID: "admin", Name: "admin", Email: "admin@sovrana.local"}

// upstreamLoginResponse はexecutionサービスの /auth/login のレスポンス。
type upstreamLoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
}

// authenticate はexecutionサービスで資格情報を検証し、到達できないか拒否された場合は
// 設定された管理者資格情報と照合する。
func (s *Server) authenticate(ctx context.Context, req loginRequest) (middleware.SessionUser, string, error) {
	client, err := s.proxy.Registry().Client(proxy.Execution)
	if err != nil {
		return middleware.SessionUser{}, "", err
	}

	var resp upstreamLoginResponse
	upstreamErr := client.PostJSON(ctx, "/auth/login", req, &resp)
	if upstreamErr == nil {
		if resp.AccessToken == "" || resp.UserID == "" {
			return middleware.SessionUser{}, "", errInvalidCredentials
		}
		return middleware.SessionUser{ID: resp.UserID, Name: req.Username, Email: resp.Email}, sourceUpstream, nil
	}
	s.logger.Debug().Err(upstreamErr).Msg("executionでの認証に失敗したためローカル管理者と照合します")

	if s.matchesAdmin(req.Username, req.Password) {
		return localAdmin, sourceLocal, nil
	}
	return middleware.SessionUser{}, "", errInvalidCredentials
}

// matchesAdmin は資格情報が設定された管理者のものと一致するかを定数時間で判定する。
func (s *Server) matchesAdmin(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Auth.AdminUsername))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Auth.AdminPassword))
	return userOK&passOK == 1
}

// handleLogin はログインしてセッションCookieを発行するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名とパスワードを入力してください"})
			return
		}

		user, source, err := s.authenticate(c.Request.Context(), req)
		if err != nil {
			if !errors.Is(err, errInvalidCredentials) {
				s.logger.Error().Err(err).Msg("認証処理に失敗")
			}
			s.logger.Warn().Str("username", req.Username).Msg("ログインに失敗しました")
			c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidCredentials.Error()})
			return
		}

		now := s.now()
		if err := s.store.recordLogin(c.Request.Context(), operator{
			ID:          user.ID,
			Username:    user.Name,
			Email:       user.Email,
			Source:      source,
			LastLoginAt: now,
		}); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.ID).Msg("ログイン履歴の記録に失敗")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ログイン処理に失敗しました"})
			return
		}

		token, err := middleware.GenerateJWT(s.cfg.Auth.JWTSecret, user, s.cfg.Auth.SessionTTL)
		if err != nil {
			s.logger.Error().Err(err).Msg("JWT生成に失敗")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		s.setSessionCookie(c, token, s.cfg.Auth.SessionTTL)
		s.logger.Info().Str("user_id", user.ID).Str("source", source).Msg("ログインしました")
		c.JSON(http.StatusOK, gin.H{
			"access_token": token,
			"user_id":      user.ID,
			"email":        user.Email,
		})
	}
}

// handleLogout はセッションCookieを削除するハンドラを返す。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.setSessionCookie(c, "", -1)
		c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
	}
}

// handleSession は現在のセッション情報を返すハンドラを返す。
// 未ログインの場合は空オブジェクトを返す。
func (s *Server) handleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := middleware.Authenticate(c, s.cfg.Auth.JWTSecret)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": gin.H{
				"id":    claims.UserID,
				"name":  claims.Name,
				"email": claims.Email,
			},
			"expires": claims.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
}

// handleGetCurrentOperator は認証済みオペレーターの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.GetClaims(c)
		if !ok || claims.UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}
		userID := claims.UserID

		op, err := s.store.get(c.Request.Context(), userID)
		if errors.Is(err, errOperatorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("オペレーターの取得に失敗")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "オペレーターの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, op)
	}
}

// setSessionCookie はセッションCookieを設定する。ttlが負の場合は削除する。
func (s *Server) setSessionCookie(c *gin.Context, token string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, token, maxAge, "/", "", s.cfg.Auth.SecureCookie, true)
}
