package proxy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nao1215/sovrana/internal/config"
	"github.com/nao1215/sovrana/pkg/httpclient"
)

// Service は上流サービスの論理名。
type Service string

const (
	// Ingestion は市場データを収集するingestionサービス。
	Ingestion Service = "ingestion"
	// Brain は戦略とシグナルを扱うbrainサービス。
	Brain Service = "brain"
	// Execution はエージェント、注文、リスク管理を扱うexecutionサービス。
	Execution Service = "execution"
)

// ErrUnknownService はレジストリに登録されていないサービス名が指定されたことを表す。
var ErrUnknownService = errors.New("未登録のサービスです")

// Registry はサービス名から上流クライアントへの不変の対応表。
type Registry struct {
	// clients はサービスごとのHTTPクライアント。
	clients map[Service]*httpclient.Client
}

// NewRegistry は設定から3つの上流サービスのレジストリを構築する。
// timeoutは各上流リクエストに適用される。
func NewRegistry(services config.ServicesConfig, timeout time.Duration) *Registry {
	return NewRegistryFromMap(map[Service]string{
		Ingestion: services.Ingestion,
		Brain:     services.Brain,
		Execution: services.Execution,
	}, timeout)
}

// NewRegistryFromMap は任意のサービス名とベースURLの対応からレジストリを構築する。
func NewRegistryFromMap(bases map[Service]string, timeout time.Duration) *Registry {
	clients := make(map[Service]*httpclient.Client, len(bases))
	for svc, base := range bases {
		clients[svc] = httpclient.NewWithTimeout(base, timeout)
	}
	return &Registry{clients: clients}
}

// Client はサービスに対応するクライアントを返す。
func (r *Registry) Client(svc Service) (*httpclient.Client, error) {
	c, ok := r.clients[svc]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, svc)
	}
	return c, nil
}

// BaseURL はサービスのベースURLを返す。
func (r *Registry) BaseURL(svc Service) (string, error) {
	c, err := r.Client(svc)
	if err != nil {
		return "", err
	}
	return c.BaseURL(), nil
}

// Services は登録済みのサービス名を名前順で返す。
func (r *Registry) Services() []Service {
	out := make([]Service, 0, len(r.clients))
	for svc := range r.clients {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
