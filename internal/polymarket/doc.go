// Package polymarket はPolymarketの公開APIに対する疎通確認と市場データの取得を提供する。
//
// 疎通確認ではGamma API、CLOB API、Data APIの3つに並行してリクエストを送り、
// それぞれに到達できたかどうかを返す。取引用の認証情報が設定されているかどうかも
// 報告するが、認証情報そのものを外部に送ることはない。
//
// 市場一覧、板情報、価格履歴、設定されたウォレットのポジションと約定履歴は
// 公開APIのJSONをそのまま返す。
package polymarket
