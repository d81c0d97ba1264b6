package console

import "github.com/google/uuid"

// 上流サービスに転送するリクエストボディ。
// 省略可能な項目はポインタにして、クライアントが送らなかった項目を上流に送らない。

// createAgentRequest はエージェント作成のリクエストボディ。
type createAgentRequest struct {
	// Name はエージェント名。
	Name string `json:"name" binding:"required,max=255"`
	// Description は説明文。
	Description *string `json:"description,omitempty"`
	// Mode は動作モード。
	Mode *string `json:"mode,omitempty" binding:"omitempty,oneof=read_only trading_enabled"`
	// IsSimulate はシミュレーションモードかどうか。
	IsSimulate *bool `json:"is_simulate,omitempty"`
	// ManualApprove はシグナルの手動承認が必要かどうか。
	ManualApprove *bool `json:"manual_approve,omitempty"`
	// WalletProfileID は使用するウォレットプロファイル。
	WalletProfileID *string `json:"wallet_profile_id,omitempty"`
}

// updateAgentRequest はエージェント更新のリクエストボディ。すべて任意。
type updateAgentRequest struct {
	Name            *string `json:"name,omitempty" binding:"omitempty,min=1,max=255"`
	Description     *string `json:"description,omitempty"`
	Mode            *string `json:"mode,omitempty" binding:"omitempty,oneof=read_only trading_enabled"`
	IsSimulate      *bool   `json:"is_simulate,omitempty"`
	ManualApprove   *bool   `json:"manual_approve,omitempty"`
	WalletProfileID *string `json:"wallet_profile_id,omitempty"`
}

// riskLimitsRequest はリスク上限の更新リクエストボディ。
// 省略した項目は上流のデフォルト値になる。
type riskLimitsRequest struct {
	MaxOrderSizeUSDC *float64 `json:"max_order_size_usdc,omitempty" binding:"omitempty,gte=0"`
	MaxExposureUSDC  *float64 `json:"max_exposure_usdc,omitempty" binding:"omitempty,gte=0"`
	DailyLossCapUSDC *float64 `json:"daily_loss_cap_usdc,omitempty" binding:"omitempty,gte=0"`
	SlippageCapPct   *float64 `json:"slippage_cap_pct,omitempty" binding:"omitempty,gte=0,lte=100"`
	CooldownSeconds  *int     `json:"cooldown_seconds,omitempty" binding:"omitempty,gte=0"`
	MaxOpenOrders    *int     `json:"max_open_orders,omitempty" binding:"omitempty,gte=0"`
}

// marketPermissionRequest はエージェントが取引できる市場の登録リクエストボディ。
type marketPermissionRequest struct {
	// ConditionID は対象市場のcondition ID。
	ConditionID string `json:"condition_id" binding:"required"`
	// PermissionType は許可リストか拒否リストか。
	PermissionType *string `json:"permission_type,omitempty" binding:"omitempty,oneof=allowlist blocklist"`
	// Notes はメモ。
	Notes *string `json:"notes,omitempty"`
}

// strategyAssignRequest はエージェントへの戦略割り当てリクエストボディ。
type strategyAssignRequest struct {
	// TemplateType は戦略テンプレートの種類。
	TemplateType string `json:"template_type" binding:"required"`
	// Config は戦略固有の設定。
	Config map[string]any `json:"config,omitempty"`
}

// killSwitchRequest はキルスイッチの切り替えリクエストボディ。
// falseも有効な値のためポインタで必須判定する。
type killSwitchRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// cancelOrderRequest は注文取り消しのリクエストボディ。
type cancelOrderRequest struct {
	AgentID           string `json:"agent_id" binding:"required"`
	OrderID           string `json:"order_id" binding:"required"`
	PolymarketOrderID string `json:"polymarket_order_id" binding:"required"`
}

// manualOrderRequest は手動注文のリクエストボディ。
type manualOrderRequest struct {
	AgentID     string  `json:"agent_id" binding:"required"`
	ConditionID string  `json:"condition_id" binding:"required"`
	TokenID     string  `json:"token_id" binding:"required"`
	Side        string  `json:"side" binding:"required,oneof=buy sell"`
	Price       float64 `json:"price" binding:"required,gt=0,lt=1"`
	SizeUSDC    float64 `json:"size_usdc" binding:"required,gt=0"`
}

// executeRequest はexecutionサービスの /execute に送る注文。
type executeRequest struct {
	AgentID     string  `json:"agent_id"`
	SignalID    string  `json:"signal_id"`
	ConditionID string  `json:"condition_id"`
	TokenID     string  `json:"token_id"`
	Side        string  `json:"side"`
	Price       float64 `json:"price"`
	SizeUSDC    float64 `json:"size_usdc"`
	Confidence  float64 `json:"confidence"`
	OrderType   string  `json:"order_type"`
}

// toExecute は手動注文を上流の注文形式に変換する。
// 手動注文はゼロUUIDのシグナルIDを持つ、確信度1.0の指値注文として扱う。
func (r manualOrderRequest) toExecute() executeRequest {
	return executeRequest{
		AgentID:     r.AgentID,
		SignalID:    uuid.Nil.String(),
		ConditionID: r.ConditionID,
		TokenID:     r.TokenID,
		Side:        r.Side,
		Price:       r.Price,
		SizeUSDC:    r.SizeUSDC,
		Confidence:  1.0,
		OrderType:   "limit",
	}
}

// createWalletRequest はウォレットプロファイル作成のリクエストボディ。
type createWalletRequest struct {
	Name          string  `json:"name" binding:"required"`
	EVMAddress    string  `json:"evm_address" binding:"required,eth_addr"`
	SecretRef     string  `json:"secret_ref" binding:"required"`
	SecretBackend *string `json:"secret_backend,omitempty"`
	ChainID       *int    `json:"chain_id,omitempty" binding:"omitempty,gte=0"`
	IsShared      *bool   `json:"is_shared,omitempty"`
}

// rejectSignalRequest はシグナル却下のリクエストボディ。
type rejectSignalRequest struct {
	// Reason は却下理由。省略時は上流が既定の理由を使う。
	Reason *string `json:"reason,omitempty" binding:"omitempty,max=1000"`
}

// loginRequest はログインのリクエストボディ。
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Polymarket公開APIの市場データ取得に使うクエリ。

// marketsQuery は市場一覧のクエリ。
type marketsQuery struct {
	// Search は検索キーワード。指定時はLimitを使わない。
	Search string `form:"q"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// eventsQuery はイベント一覧のクエリ。
type eventsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// orderBookQuery は板情報のクエリ。
type orderBookQuery struct {
	TokenID string `form:"token_id" binding:"required"`
	Type    string `form:"type" binding:"omitempty,oneof=book midpoint price last-trade"`
}

// pricesHistoryQuery は価格履歴のクエリ。
type pricesHistoryQuery struct {
	TokenID  string `form:"token_id" binding:"required"`
	Interval string `form:"interval" binding:"omitempty,oneof=1m 1h 6h 1d 1w max"`
	// Fidelity は足の間隔（分）。
	Fidelity int `form:"fidelity" binding:"omitempty,min=1"`
}

// positionsQuery は保有ポジションのクエリ。
type positionsQuery struct {
	Closed bool `form:"closed"`
}

// tradesQuery は約定履歴のクエリ。
type tradesQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}
