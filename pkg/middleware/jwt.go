package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName はセッションJWTを保持するCookieの名前。
const SessionCookieName = "sovrana_session"

// jwtIssuer はconsoleが発行するJWTのiss。
const jwtIssuer = "sovrana-console"

// headerKeyUserID はサービス間でユーザーIDを伝播するためのHTTPヘッダーキー。
const headerKeyUserID = "X-User-ID"

// コンテキストキー。
const (
	contextKeyUserID = "user_id"
	contextKeyClaims = "session_claims"
)

// ErrNoToken はリクエストにセッショントークンが含まれていないことを表す。
var ErrNoToken = errors.New("セッショントークンがありません")

// SessionUser はセッションに保持するオペレーターの情報。
type SessionUser struct {
	// ID はオペレーターの一意識別子。
	ID string
	// Name は表示名（ログインユーザー名）。
	Name string
	// Email はメールアドレス。
	Email string
}

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みオペレーターの一意識別子。
	UserID string `json:"user_id"`
	// Name はオペレーターの表示名。
	Name string `json:"name"`
	// Email はオペレーターのメールアドレス。
	Email string `json:"email"`
}

// GenerateJWT はオペレーター情報から有効期間ttlのJWTトークンを生成する。
// ログイン成功時に呼び出す。
func GenerateJWT(secret string, user SessionUser, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    jwtIssuer,
		},
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はトークン文字列を検証してクレームを返す。
// 署名方式はHS256のみ受け付ける。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(jwtIssuer))
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("トークンが無効です")
	}
	return claims, nil
}

// tokenCandidates はAuthorizationヘッダーのBearerトークンとセッションCookieを、この順で返す。
// Bearer形式でないヘッダーは無視する。
func tokenCandidates(c *gin.Context) []string {
	var tokens []string
	if token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); found && token != "" {
		tokens = append(tokens, token)
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		tokens = append(tokens, cookie)
	}
	return tokens
}

// Authenticate はリクエストに含まれるセッショントークンを検証してクレームを返す。
// BearerトークンとセッションCookieを順に試し、最初に検証できたものを採用する。
// トークンが1つも無い場合は ErrNoToken を返す。
func Authenticate(c *gin.Context, secret string) (*JWTClaims, error) {
	tokens := tokenCandidates(c)
	if len(tokens) == 0 {
		return nil, ErrNoToken
	}

	var errs []error
	for _, token := range tokens {
		claims, err := ParseJWT(secret, token)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// SessionAuth はセッショントークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにユーザーIDとクレームを設定する。
// 失敗した場合、/api/ 配下は401のJSONを返し、それ以外は loginPath にリダイレクトする。
func SessionAuth(secret, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := Authenticate(c, secret)
		if errors.Is(err, ErrNoToken) {
			rejectUnauthenticated(c, loginPath, err.Error())
			return
		}
		if err != nil {
			rejectUnauthenticated(c, loginPath, "トークンが無効です")
			return
		}

		c.Set(contextKeyUserID, claims.UserID)
		c.Set(contextKeyClaims, claims)
		c.Header(headerKeyUserID, claims.UserID)
		c.Next()
	}
}

// rejectUnauthenticated は未認証リクエストを拒否する。
func rejectUnauthenticated(c *gin.Context, loginPath, message string) {
	if isAPIPath(c.Request.URL.Path) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
		return
	}
	target := loginPath + "?callbackUrl=" + url.QueryEscape(c.Request.URL.RequestURI())
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

// isAPIPath はパスがJSON APIのものかどうかを返す。
func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// SessionAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetClaims はGinコンテキストからセッションのクレームを取得する。
func GetClaims(c *gin.Context) (*JWTClaims, bool) {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*JWTClaims)
	return claims, ok
}
