// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// セッションJWTの発行と検証、リクエストID、アクセスログ、
// Prometheusメトリクス、パニックリカバリ、CORS設定を含む。
package middleware
