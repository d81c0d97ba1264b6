package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/nao1215/sovrana/pkg/httpclient"
)

// ErrNoAddress はウォレットアドレスが未設定でユーザーデータを取得できないことを表す。
var ErrNoAddress = errors.New("ウォレットアドレスが設定されていません")

// OrderBookKind はCLOB APIから取得する板情報の種類。
type OrderBookKind string

const (
	// OrderBookFull は板全体。
	OrderBookFull OrderBookKind = "book"
	// OrderBookMidpoint は仲値。
	OrderBookMidpoint OrderBookKind = "midpoint"
	// OrderBookPrice は現在価格。
	OrderBookPrice OrderBookKind = "price"
	// OrderBookLastTrade は直近の約定価格。
	OrderBookLastTrade OrderBookKind = "last-trade"
)

var orderBookPaths = map[OrderBookKind]string{
	OrderBookFull:      "/book",
	OrderBookMidpoint:  "/midpoint",
	OrderBookPrice:     "/price",
	OrderBookLastTrade: "/last-trade-price",
}

// Markets はGamma APIから市場一覧を取得する。
// searchが空でなければキーワード検索、空なら有効な市場をlimit件取得する。
func (c *Client) Markets(ctx context.Context, search string, limit int) (json.RawMessage, error) {
	query := url.Values{}
	if search != "" {
		query.Set("_q", search)
	} else {
		query = activeQuery(limit)
	}
	return fetch(ctx, c.gamma, "/markets", query)
}

// Events はGamma APIから有効なイベントをlimit件取得する。
func (c *Client) Events(ctx context.Context, limit int) (json.RawMessage, error) {
	return fetch(ctx, c.gamma, "/events", activeQuery(limit))
}

// OrderBook はCLOB APIからトークンの板情報を取得する。
func (c *Client) OrderBook(ctx context.Context, tokenID string, kind OrderBookKind) (json.RawMessage, error) {
	path, ok := orderBookPaths[kind]
	if !ok {
		return nil, fmt.Errorf("未対応の板情報の種類です: %q", kind)
	}
	return fetch(ctx, c.clob, path, url.Values{"token_id": {tokenID}})
}

// PricesHistory はCLOB APIからトークンの価格履歴を取得する。
// fidelityは足の間隔（分）。
func (c *Client) PricesHistory(ctx context.Context, tokenID, interval string, fidelity int) (json.RawMessage, error) {
	return fetch(ctx, c.clob, "/prices-history", url.Values{
		"market":   {tokenID},
		"interval": {interval},
		"fidelity": {strconv.Itoa(fidelity)},
	})
}

// Positions は設定されたウォレットの保有ポジションをData APIから取得する。
// closedがtrueなら決済済みのポジションを返す。
func (c *Client) Positions(ctx context.Context, closed bool) (json.RawMessage, error) {
	if c.creds.Address == "" {
		return nil, ErrNoAddress
	}
	path := "/positions"
	if closed {
		path = "/closed-positions"
	}
	return fetch(ctx, c.data, path, url.Values{"user": {c.creds.Address}})
}

// Trades は設定されたウォレットの約定履歴をData APIから取得する。
// limitが0以下なら件数を指定しない。
func (c *Client) Trades(ctx context.Context, limit int) (json.RawMessage, error) {
	if c.creds.Address == "" {
		return nil, ErrNoAddress
	}
	query := url.Values{"user": {c.creds.Address}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return fetch(ctx, c.data, "/trades", query)
}

func activeQuery(limit int) url.Values {
	return url.Values{
		"limit":  {strconv.Itoa(limit)},
		"active": {"true"},
		"closed": {"false"},
	}
}

// fetch は公開APIにGETし、レスポンスのJSONをそのまま返す。
func fetch(ctx context.Context, client *httpclient.Client, path string, query url.Values) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := client.GetJSON(ctx, path, query, &raw); err != nil {
		return nil, fmt.Errorf("%s%sの取得に失敗: %w", client.BaseURL(), path, err)
	}
	return raw, nil
}
