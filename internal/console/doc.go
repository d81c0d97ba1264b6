// Package console はオペレーターコンソールのHTTPゲートウェイを提供する。
//
// ブラウザからの /api/... リクエストをingestion、brain、executionの各サービスに
// 転送し、上流のステータスコードとJSONボディをそのまま返す。ログインとセッション管理、
// ログインページとダッシュボードの配信、Polymarket APIのヘルスチェックも担当する。
// 業務ロジックは持たず、リクエストボディの形式検証だけを境界で行う。
package console
