// Package proxy は上流サービスへのリクエスト転送を提供する。
//
// サービス名（ingestion、brain、execution）からベースURLを解決するレジストリと、
// リクエストをそのまま転送して上流のステータスコードとJSONボディを返す
// To と JSON を含む。レジストリは起動時に一度だけ構築し、以降は変更しない。
package proxy
