package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/config"
	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

const skipDefaultBaseURL = "https://api.skip.build"

type skipRouteRequest struct {
	AmountIn           string `json:"amount_in"`
	SourceAssetDenom   string `json:"source_asset_denom"`
	SourceAssetChainID string `json:"source_asset_chain_id"`
	DestAssetDenom     string `json:"dest_asset_denom"`
	DestAssetChainID   string `json:"dest_asset_chain_id"`
	AllowMultiTx       bool   `json:"allow_multi_tx"`
	AllowUnsafe        bool   `json:"allow_unsafe"`
	SmartRelay         bool   `json:"smart_relay"`
}

type skipAsset struct {
	Denom   string `json:"denom"`
	ChainID string `json:"chain_id"`
}

type skipFee struct {
	FeeType     string    `json:"fee_type"`
	BridgeID    string    `json:"bridge_id"`
	Amount      string    `json:"amount"`
	USDAmount   string    `json:"usd_amount"`
	OriginAsset skipAsset `json:"origin_asset"`
}

type skipRouteResponse struct {
	AmountIn                      string            `json:"amount_in"`
	AmountOut                     string            `json:"amount_out"`
	SourceAssetDenom              string            `json:"source_asset_denom"`
	SourceAssetChainID            string            `json:"source_asset_chain_id"`
	DestAssetDenom                string            `json:"dest_asset_denom"`
	DestAssetChainID              string            `json:"dest_asset_chain_id"`
	Operations                    []json.RawMessage `json:"operations"`
	ChainIDs                      []string          `json:"chain_ids"`
	RequiredChainAddresses        []string          `json:"required_chain_addresses"`
	EstimatedFees                 []skipFee         `json:"estimated_fees"`
	EstimatedRouteDurationSeconds int               `json:"estimated_route_duration_seconds"`
	USDAmountIn                   string            `json:"usd_amount_in"`
	USDAmountOut                  string            `json:"usd_amount_out"`
	SwapPriceImpactPercent        string            `json:"swap_price_impact_percent"`
	TxsRequired                   int               `json:"txs_required"`
}

type skipMsgsRequest struct {
	SourceAssetDenom         string            `json:"source_asset_denom"`
	SourceAssetChainID       string            `json:"source_asset_chain_id"`
	DestAssetDenom           string            `json:"dest_asset_denom"`
	DestAssetChainID         string            `json:"dest_asset_chain_id"`
	AmountIn                 string            `json:"amount_in"`
	AmountOut                string            `json:"amount_out"`
	AddressList              []string          `json:"address_list"`
	Operations               []json.RawMessage `json:"operations"`
	SlippageTolerancePercent string            `json:"slippage_tolerance_percent"`
}

type skipEvmTx struct {
	ChainID       string `json:"chain_id"`
	To            string `json:"to"`
	Value         string `json:"value"`
	Data          string `json:"data"`
	SignerAddress string `json:"signer_address"`
}

type skipMsgsResponse struct {
	Txs []struct {
		EvmTx    *skipEvmTx      `json:"evm_tx"`
		CosmosTx json.RawMessage `json:"cosmos_tx"`
	} `json:"txs"`
}

// operation keys that only wrap bookkeeping, not a hop
var skipIgnoredKeys = map[string]bool{"tx_index": true, "amount_in": true, "amount_out": true}

// SkipAdapter integrates the Skip Go routing API, which spans EVM and Cosmos chains.
type SkipAdapter struct {
	cfg     config.SourceConfig
	baseURL string
	http    *clients.JSONClient
	memo    *quoteMemo
	mapping *utils.ChainIDMapping
}

// NewSkipAdapter creates the Skip adapter.
func NewSkipAdapter(cfg config.SourceConfig, memoTTL time.Duration) *SkipAdapter {
	baseURL := skipDefaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	return &SkipAdapter{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    clients.NewJSONClient(cfg.Timeout(15 * time.Second)),
		memo:    newQuoteMemo(memoTTL),
		mapping: utils.GlobalChainIDMapping,
	}
}

func (s *SkipAdapter) ID() string { return "skip" }

func (s *SkipAdapter) Capabilities() Capabilities {
	return Capabilities{SameChain: true, CrossChain: true, Chains: s.mapping.SupportedBy("skip")}
}

// GetQuote implements Adapter. Only single-transaction routes are requested.
func (s *SkipAdapter) GetQuote(ctx context.Context, req types.QuoteRequest) ([]types.Route, error) {
	resp, err := s.route(ctx, req)
	if err != nil {
		return nil, Wrap(s.ID(), err)
	}
	out, ok := utils.ParseBaseUnits(resp.AmountOut)
	if !ok {
		return nil, Wrap(s.ID(), malformed("amount_out is not a base-unit integer: %q", resp.AmountOut))
	}
	if out.Sign() == 0 {
		return nil, nil
	}

	route := types.Route{
		Provider:          s.ID(),
		FromChain:         req.FromChain,
		ToChain:           req.ToChain,
		FromToken:         req.FromToken,
		ToToken:           req.ToToken,
		AmountIn:          req.AmountIn,
		AmountOut:         out.String(),
		ExecutionDuration: resp.EstimatedRouteDurationSeconds,
		PriceImpactBps:    skipPriceImpact(resp),
	}
	route.Steps, route.ToolsUsed = s.steps(resp)
	route.FeeCosts, route.Fees = s.fees(resp)
	route = finalize(route)

	s.memo.remember([]types.Route{route})
	return []types.Route{route}, nil
}

// GetTx implements Adapter. The route is fetched again, checked for drift and turned into messages.
func (s *SkipAdapter) GetTx(ctx context.Context, routeID string, req types.ExecutionRequest) (*types.ExecutionPayload, error) {
	qr := req.QuoteRequest()
	resp, err := s.route(ctx, qr)
	if err != nil {
		return nil, Wrap(s.ID(), err)
	}
	if err := s.memo.checkDrift(routeID, resp.AmountOut, qr.SlippageBps()); err != nil {
		return nil, err
	}

	addresses, err := s.addressList(resp, qr)
	if err != nil {
		return nil, Wrap(s.ID(), err)
	}
	body := skipMsgsRequest{
		SourceAssetDenom:         resp.SourceAssetDenom,
		SourceAssetChainID:       resp.SourceAssetChainID,
		DestAssetDenom:           resp.DestAssetDenom,
		DestAssetChainID:         resp.DestAssetChainID,
		AmountIn:                 resp.AmountIn,
		AmountOut:                resp.AmountOut,
		AddressList:              addresses,
		Operations:               resp.Operations,
		SlippageTolerancePercent: decimal.New(int64(qr.SlippageBps()), -2).String(),
	}
	msgs, err := clients.RequestJSON[skipMsgsResponse](ctx, s.http, http.MethodPost, s.baseURL+"/v2/fungible/msgs", s.headers(), body)
	if err != nil {
		return nil, Wrap(s.ID(), err)
	}

	for _, tx := range msgs.Txs {
		if tx.EvmTx == nil {
			continue
		}
		if tx.EvmTx.To == "" || tx.EvmTx.Data == "" {
			return nil, Wrap(s.ID(), ErrNoTransaction)
		}
		value := quantity(tx.EvmTx.Value)
		if value == "" {
			value = "0"
		}
		return &types.ExecutionPayload{
			RouteID:  routeID,
			Provider: s.ID(),
			ChainID:  utils.NormalizeChain(s.mapping.FromSource(s.ID(), tx.EvmTx.ChainID)),
			To:       tx.EvmTx.To,
			Data:     ensureHexPrefix(tx.EvmTx.Data),
			Value:    value,
		}, nil
	}
	if len(msgs.Txs) > 0 {
		return nil, Wrap(s.ID(), ErrUnsupportedTransaction)
	}
	return nil, Wrap(s.ID(), ErrNoTransaction)
}

func (s *SkipAdapter) route(ctx context.Context, req types.QuoteRequest) (*skipRouteResponse, error) {
	fromID, err := s.mapping.ForSource(s.ID(), req.FromChain)
	if err != nil {
		return nil, err
	}
	toID, err := s.mapping.ForSource(s.ID(), req.ToChain)
	if err != nil {
		return nil, err
	}
	body := skipRouteRequest{
		AmountIn:           req.AmountIn,
		SourceAssetDenom:   skipDenom(req.FromToken, req.FromChain),
		SourceAssetChainID: fromID,
		DestAssetDenom:     skipDenom(req.ToToken, req.ToChain),
		DestAssetChainID:   toID,
		SmartRelay:         true,
	}
	resp, err := clients.RequestJSON[skipRouteResponse](ctx, s.http, http.MethodPost, s.baseURL+"/v2/fungible/route", s.headers(), body)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *SkipAdapter) headers() map[string]string {
	if s.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": s.cfg.APIKey}
}

// addressList supplies one address per chain the route touches. Intermediate chains would need
// addresses this service does not know.
func (s *SkipAdapter) addressList(resp *skipRouteResponse, req types.QuoteRequest) ([]string, error) {
	chains := resp.RequiredChainAddresses
	if len(chains) == 0 {
		chains = []string{resp.SourceAssetChainID, resp.DestAssetChainID}
	}
	addresses := make([]string, 0, len(chains))
	for i, chainID := range chains {
		switch {
		case i == len(chains)-1 && chainID == resp.DestAssetChainID:
			addresses = append(addresses, req.ToAddress)
		case i == 0 && chainID == resp.SourceAssetChainID:
			addresses = append(addresses, req.FromAddress)
		default:
			return nil, fmt.Errorf("%w: route needs an address on intermediate chain %s", ErrUnsupportedTransaction, chainID)
		}
	}
	for _, a := range addresses {
		if a == "" {
			return nil, fmt.Errorf("%w: route needs an address on every chain", ErrUnsupportedTransaction)
		}
	}
	return addresses, nil
}

// steps turns each operation into a hop. An operation is an object with one keyed body.
func (s *SkipAdapter) steps(resp *skipRouteResponse) ([]types.RouteStep, []string) {
	steps := make([]types.RouteStep, 0, len(resp.Operations))
	var tools []string
	for _, raw := range resp.Operations {
		op := gjson.ParseBytes(raw)
		var kind string
		var body gjson.Result
		op.ForEach(func(key, value gjson.Result) bool {
			if skipIgnoredKeys[key.String()] || !value.IsObject() {
				return true
			}
			kind, body = key.String(), value
			return false
		})
		if kind == "" {
			continue
		}

		tool := firstNonEmpty(
			body.Get("bridge_id").String(),
			body.Get("swap_venue.name").String(),
			body.Get("swap_in.swap_venue.name").String(),
			body.Get("swap_out.swap_venue.name").String(),
			kind,
		)
		fromChain := firstNonEmpty(body.Get("from_chain_id").String(), body.Get("chain_id").String(),
			body.Get("swap_in.swap_venue.chain_id").String(), resp.SourceAssetChainID)
		toChain := firstNonEmpty(body.Get("to_chain_id").String(), body.Get("chain_id").String(),
			body.Get("swap_in.swap_venue.chain_id").String(), fromChain)

		stepType := "swap"
		if strings.Contains(kind, "transfer") {
			stepType = "bridge"
		}
		steps = append(steps, types.RouteStep{
			Type:      stepType,
			Tool:      tool,
			FromChain: s.mapping.FromSource(s.ID(), fromChain),
			ToChain:   s.mapping.FromSource(s.ID(), toChain),
			FromToken: utils.NormalizeToken(firstNonEmpty(body.Get("denom_in").String(), body.Get("swap_in.swap_amount_in.denom").String())),
			ToToken:   utils.NormalizeToken(body.Get("denom_out").String()),
			AmountIn:  baseUnits(op.Get("amount_in").String()),
			AmountOut: baseUnits(op.Get("amount_out").String()),
		})
		tools = append(tools, tool)
	}
	return steps, tools
}

// fees itemizes estimated fees; those charged in the destination asset count toward Fees.
func (s *SkipAdapter) fees(resp *skipRouteResponse) ([]types.FeeCost, string) {
	costs := make([]types.FeeCost, 0, len(resp.EstimatedFees))
	total := decimal.Zero
	for _, f := range resp.EstimatedFees {
		amount := baseUnits(f.Amount)
		if amount == "" {
			continue
		}
		costs = append(costs, types.FeeCost{
			Name:      firstNonEmpty(f.FeeType, f.BridgeID),
			Amount:    amount,
			AmountUSD: f.USDAmount,
			Token:     utils.NormalizeToken(f.OriginAsset.Denom),
		})
		if f.OriginAsset.ChainID == resp.DestAssetChainID && strings.EqualFold(f.OriginAsset.Denom, resp.DestAssetDenom) {
			total = total.Add(decimal.RequireFromString(amount))
		}
	}
	return costs, total.String()
}

// skipDenom renders a token in Skip's vocabulary: checksummed EVM addresses and "<chain>-native" gas tokens.
func skipDenom(token, chain string) string {
	if !utils.IsNativeToken(token) {
		return utils.ChecksumAddress(token)
	}
	info, ok := utils.GlobalChainRegistry.Chain(chain)
	if !ok || !info.IsEVM {
		return token
	}
	name := strings.ToLower(strings.Fields(info.Name)[0])
	return name + "-native"
}

func skipPriceImpact(resp *skipRouteResponse) *int {
	if pct, err := decimal.NewFromString(resp.SwapPriceImpactPercent); err == nil {
		bps := int(pct.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
		if bps < 0 {
			bps = 0
		}
		return &bps
	}
	return priceImpact(resp.USDAmountIn, resp.USDAmountOut)
}

func ensureHexPrefix(data string) string {
	if data == "" || strings.HasPrefix(data, "0x") {
		return data
	}
	return "0x" + data
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
