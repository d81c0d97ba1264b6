// Package config はconsoleサービスの設定を読み込む。
//
// 設定ファイル（TOML、任意）、環境変数、デフォルト値の順で解決し、
// プロセス起動時に一度だけ不変の Config を構築する。
// 上流サービスのURLなど、リクエスト処理中に参照される値はすべてここに集約する。
package config
