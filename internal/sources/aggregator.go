package sources

import (
	"context"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/config"
	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

// quoteInput is a request translated into one source's vocabulary.
type quoteInput struct {
	FromChainID string
	ToChainID   string
	FromToken   string
	ToToken     string
	AmountIn    string
	FromAddress string
	ToAddress   string
	SlippageBps int
	Integrator  string
}

// ParamFunc renders one query parameter from the translated request.
type ParamFunc func(in quoteInput) string

// Param maps a query parameter name to its value. Optional parameters are omitted when empty.
type Param struct {
	Name     string
	Value    ParamFunc
	Optional bool
}

// Endpoint is a GET endpoint of an aggregator. Path may reference {fromChainId} and {toChainId}.
type Endpoint struct {
	Path   string
	Params []Param
}

// FeeField locates itemized fees. Items may resolve to an array, a single object or a scalar amount;
// the other paths are relative to each item.
type FeeField struct {
	Items        string
	Name         string // constant name
	NamePath     string
	Amount       string
	AmountUSD    string
	Token        string
	Included     string
	DefaultToken string
}

// StepFields locates per-hop data relative to each element of Items.
type StepFields struct {
	Items        string
	Type         string
	Tool         string
	FromChain    string
	ToChain      string
	FromToken    string
	ToToken      string
	AmountIn     string
	AmountOut    string
	EstimatedGas string
}

// TxFields locates the transaction request in a response.
type TxFields struct {
	To                   string
	Data                 string
	Value                string
	GasLimit             string
	GasPrice             string
	MaxFeePerGas         string
	MaxPriorityFeePerGas string
	ChainID              string
}

// ResponseFields are gjson paths into a quote response.
type ResponseFields struct {
	Routes       string // array of routes; empty when the response is a single route
	AmountOut    string
	AmountOutMin string
	EstimatedGas string
	Duration     string // seconds
	Tools        []string
	USDIn        string
	USDOut       string
	Fees         []FeeField
	Steps        *StepFields
	Tx           TxFields
}

// AggregatorSpec describes an HTTP quote aggregator well enough to drive it without bespoke code.
type AggregatorSpec struct {
	ID           string
	Name         string
	BaseURL      string
	Public       bool
	SameChain    bool
	CrossChain   bool
	NativeToken  string // the source's spelling of a chain's gas token
	AuthHeader   string
	AuthScheme   string
	Headers      map[string]string
	DefaultTools []string
	Quote        Endpoint
	Tx           *Endpoint // nil when the quote endpoint returns transactions once addresses are given
	Fields       ResponseFields
}

// AggregatorAdapter is an Adapter driven by an AggregatorSpec.
type AggregatorAdapter struct {
	spec    AggregatorSpec
	cfg     config.SourceConfig
	baseURL string
	http    *clients.JSONClient
	memo    *quoteMemo
	mapping *utils.ChainIDMapping
}

// NewAggregatorAdapter creates an adapter for spec. memoTTL bounds how long quoted routes are remembered for GetTx.
func NewAggregatorAdapter(spec AggregatorSpec, cfg config.SourceConfig, memoTTL time.Duration) *AggregatorAdapter {
	baseURL := spec.BaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	return &AggregatorAdapter{
		spec:    spec,
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    clients.NewJSONClient(cfg.Timeout(15 * time.Second)),
		memo:    newQuoteMemo(memoTTL),
		mapping: utils.GlobalChainIDMapping,
	}
}

func (a *AggregatorAdapter) ID() string { return a.spec.ID }

func (a *AggregatorAdapter) Capabilities() Capabilities {
	return Capabilities{
		SameChain:  a.spec.SameChain,
		CrossChain: a.spec.CrossChain,
		Chains:     a.mapping.SupportedBy(a.spec.ID),
	}
}

// GetQuote implements Adapter.
func (a *AggregatorAdapter) GetQuote(ctx context.Context, req types.QuoteRequest) ([]types.Route, error) {
	in, err := a.translate(req)
	if err != nil {
		return nil, Wrap(a.spec.ID, err)
	}
	body, err := a.call(ctx, a.spec.Quote, in)
	if err != nil {
		return nil, Wrap(a.spec.ID, err)
	}
	routes, err := a.parseRoutes(body, req)
	if err != nil {
		return nil, Wrap(a.spec.ID, err)
	}
	a.memo.remember(routes)
	return routes, nil
}

// GetTx implements Adapter. The source is asked again with the execution parameters and the fresh
// quote must stay within the slippage tolerance of the quoted route.
func (a *AggregatorAdapter) GetTx(ctx context.Context, routeID string, req types.ExecutionRequest) (*types.ExecutionPayload, error) {
	qr := req.QuoteRequest()
	in, err := a.translate(qr)
	if err != nil {
		return nil, Wrap(a.spec.ID, err)
	}
	endpoint := a.spec.Quote
	if a.spec.Tx != nil {
		endpoint = *a.spec.Tx
	}
	body, err := a.call(ctx, endpoint, in)
	if err != nil {
		return nil, Wrap(a.spec.ID, err)
	}

	doc := gjson.ParseBytes(body)
	if a.spec.Fields.Routes != "" {
		doc = doc.Get(a.spec.Fields.Routes + ".0")
	}
	if err := a.memo.checkDrift(routeID, doc.Get(a.spec.Fields.AmountOut).String(), qr.SlippageBps()); err != nil {
		return nil, err
	}

	f := a.spec.Fields.Tx
	to := doc.Get(f.To).String()
	data := doc.Get(f.Data).String()
	if to == "" || data == "" {
		return nil, Wrap(a.spec.ID, ErrNoTransaction)
	}
	chainID := req.FromChain
	if f.ChainID != "" {
		if id := doc.Get(f.ChainID).String(); id != "" {
			chainID = a.mapping.FromSource(a.spec.ID, quantity(id))
		}
	}
	value := quantity(doc.Get(f.Value).String())
	if value == "" {
		value = "0"
	}
	return &types.ExecutionPayload{
		RouteID:              routeID,
		Provider:             a.spec.ID,
		ChainID:              utils.NormalizeChain(chainID),
		To:                   to,
		Data:                 data,
		Value:                value,
		GasLimit:             quantity(lookup(doc, f.GasLimit)),
		GasPrice:             quantity(lookup(doc, f.GasPrice)),
		MaxFeePerGas:         quantity(lookup(doc, f.MaxFeePerGas)),
		MaxPriorityFeePerGas: quantity(lookup(doc, f.MaxPriorityFeePerGas)),
	}, nil
}

func (a *AggregatorAdapter) translate(req types.QuoteRequest) (quoteInput, error) {
	fromID, err := a.mapping.ForSource(a.spec.ID, req.FromChain)
	if err != nil {
		return quoteInput{}, err
	}
	toID, err := a.mapping.ForSource(a.spec.ID, req.ToChain)
	if err != nil {
		return quoteInput{}, err
	}
	return quoteInput{
		FromChainID: fromID,
		ToChainID:   toID,
		FromToken:   a.sourceToken(req.FromToken),
		ToToken:     a.sourceToken(req.ToToken),
		AmountIn:    req.AmountIn,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		SlippageBps: req.SlippageBps(),
		Integrator:  a.cfg.Integrator,
	}, nil
}

func (a *AggregatorAdapter) sourceToken(token string) string {
	if a.spec.NativeToken != "" && utils.IsNativeToken(token) {
		return a.spec.NativeToken
	}
	return token
}

func (a *AggregatorAdapter) call(ctx context.Context, endpoint Endpoint, in quoteInput) ([]byte, error) {
	params := url.Values{}
	for _, p := range endpoint.Params {
		v := p.Value(in)
		if v == "" && p.Optional {
			continue
		}
		params.Set(p.Name, v)
	}
	path := strings.NewReplacer("{fromChainId}", in.FromChainID, "{toChainId}", in.ToChainID).Replace(endpoint.Path)
	reqURL := a.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	headers := make(map[string]string, len(a.spec.Headers)+1)
	for k, v := range a.spec.Headers {
		headers[k] = v
	}
	if a.spec.AuthHeader != "" && a.cfg.APIKey != "" {
		headers[a.spec.AuthHeader] = a.spec.AuthScheme + a.cfg.APIKey
	}
	return a.http.Do(ctx, http.MethodGet, reqURL, headers, nil)
}

func (a *AggregatorAdapter) parseRoutes(body []byte, req types.QuoteRequest) ([]types.Route, error) {
	if !gjson.ValidBytes(body) {
		return nil, malformed("invalid JSON")
	}
	doc := gjson.ParseBytes(body)

	items := []gjson.Result{doc}
	if a.spec.Fields.Routes != "" {
		items = doc.Get(a.spec.Fields.Routes).Array()
	}

	routes := make([]types.Route, 0, len(items))
	for _, item := range items {
		route, ok, err := a.parseRoute(item, req)
		if err != nil {
			return nil, err
		}
		if ok {
			routes = append(routes, route)
		}
	}
	return routes, nil
}

func (a *AggregatorAdapter) parseRoute(item gjson.Result, req types.QuoteRequest) (types.Route, bool, error) {
	f := a.spec.Fields
	amountOut := item.Get(f.AmountOut)
	if !amountOut.Exists() {
		return types.Route{}, false, malformed("%s missing", f.AmountOut)
	}
	out, ok := utils.ParseBaseUnits(amountOut.String())
	if !ok {
		return types.Route{}, false, malformed("%s is not a base-unit integer: %q", f.AmountOut, amountOut.String())
	}
	if out.Sign() == 0 {
		return types.Route{}, false, nil
	}

	route := types.Route{
		Provider:     a.spec.ID,
		FromChain:    req.FromChain,
		ToChain:      req.ToChain,
		FromToken:    req.FromToken,
		ToToken:      req.ToToken,
		AmountIn:     req.AmountIn,
		AmountOut:    out.String(),
		AmountOutMin: baseUnits(lookup(item, f.AmountOutMin)),
		EstimatedGas: quantity(lookup(item, f.EstimatedGas)),
		ToolsUsed:    a.tools(item),
	}
	if f.Duration != "" {
		route.ExecutionDuration = int(item.Get(f.Duration).Int())
	}
	route.PriceImpactBps = priceImpact(lookup(item, f.USDIn), lookup(item, f.USDOut))
	route.FeeCosts, route.Fees = a.fees(item, req)
	if f.Steps != nil {
		route.Steps = a.steps(item, *f.Steps)
	}
	return finalize(route), true, nil
}

func (a *AggregatorAdapter) tools(item gjson.Result) []string {
	var tools []string
	for _, path := range a.spec.Fields.Tools {
		tools = append(tools, flatten(item.Get(path))...)
	}
	if len(tools) == 0 {
		tools = append(tools, a.spec.DefaultTools...)
	}
	return tools
}

// fees itemizes every reported fee and sums, in toToken base units, those not already deducted from the output.
func (a *AggregatorAdapter) fees(item gjson.Result, req types.QuoteRequest) ([]types.FeeCost, string) {
	var costs []types.FeeCost
	total := new(big.Int)
	toToken := utils.NormalizeToken(a.sourceToken(req.ToToken))

	for _, ff := range a.spec.Fields.Fees {
		res := item.Get(ff.Items)
		if !res.Exists() || res.Type == gjson.Null {
			continue
		}
		entries := []gjson.Result{res}
		if res.IsArray() {
			entries = res.Array()
		}
		for _, e := range entries {
			cost := types.FeeCost{Name: ff.Name, Token: ff.DefaultToken}
			if e.IsObject() {
				cost.Amount = e.Get(ff.Amount).String()
				if ff.NamePath != "" {
					cost.Name = e.Get(ff.NamePath).String()
				}
				if ff.AmountUSD != "" {
					cost.AmountUSD = e.Get(ff.AmountUSD).String()
				}
				if ff.Token != "" && e.Get(ff.Token).String() != "" {
					cost.Token = e.Get(ff.Token).String()
				}
				if ff.Included != "" {
					cost.Included = e.Get(ff.Included).Bool()
				}
			} else {
				cost.Amount = e.String()
			}
			cost.Amount = quantity(cost.Amount)
			if cost.Amount == "" {
				continue
			}
			costs = append(costs, cost)

			if cost.Included || utils.NormalizeToken(cost.Token) != toToken {
				continue
			}
			if v, ok := utils.ParseBaseUnits(cost.Amount); ok {
				total.Add(total, v)
			}
		}
	}
	return costs, total.String()
}

func (a *AggregatorAdapter) steps(item gjson.Result, sf StepFields) []types.RouteStep {
	elems := item.Get(sf.Items).Array()
	steps := make([]types.RouteStep, 0, len(elems))
	for _, e := range elems {
		steps = append(steps, types.RouteStep{
			Type:         lookup(e, sf.Type),
			Tool:         lookup(e, sf.Tool),
			FromChain:    a.mapping.FromSource(a.spec.ID, lookup(e, sf.FromChain)),
			ToChain:      a.mapping.FromSource(a.spec.ID, lookup(e, sf.ToChain)),
			FromToken:    utils.NormalizeToken(lookup(e, sf.FromToken)),
			ToToken:      utils.NormalizeToken(lookup(e, sf.ToToken)),
			AmountIn:     baseUnits(lookup(e, sf.AmountIn)),
			AmountOut:    baseUnits(lookup(e, sf.AmountOut)),
			EstimatedGas: quantity(lookup(e, sf.EstimatedGas)),
		})
	}
	return steps
}

func lookup(doc gjson.Result, path string) string {
	if path == "" {
		return ""
	}
	return doc.Get(path).String()
}

// baseUnits keeps v only when it is a base-unit integer.
func baseUnits(v string) string {
	if n, ok := utils.ParseBaseUnits(v); ok {
		return n.String()
	}
	return ""
}

// flatten collects the strings of a possibly nested gjson array.
func flatten(res gjson.Result) []string {
	if !res.IsArray() {
		if s := res.String(); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, e := range res.Array() {
		out = append(out, flatten(e)...)
	}
	return out
}

// priceImpact derives the impact in basis points from the USD value in and out. Gains count as zero.
func priceImpact(usdIn, usdOut string) *int {
	in, err := decimal.NewFromString(usdIn)
	if err != nil || !in.IsPositive() {
		return nil
	}
	out, err := decimal.NewFromString(usdOut)
	if err != nil {
		return nil
	}
	bps := int(in.Sub(out).Div(in).Mul(decimal.NewFromInt(10000)).Round(0).IntPart())
	if bps < 0 {
		bps = 0
	}
	return &bps
}

// Param value helpers shared by the aggregator specs.

func fromChainID(in quoteInput) string { return in.FromChainID }
func toChainID(in quoteInput) string   { return in.ToChainID }
func fromToken(in quoteInput) string   { return in.FromToken }
func toToken(in quoteInput) string     { return in.ToToken }
func amountIn(in quoteInput) string    { return in.AmountIn }
func fromAddress(in quoteInput) string { return in.FromAddress }
func toAddress(in quoteInput) string   { return in.ToAddress }
func integrator(in quoteInput) string  { return in.Integrator }
func slippageBps(in quoteInput) string { return strconv.Itoa(in.SlippageBps) }

func slippagePercent(in quoteInput) string {
	return decimal.New(int64(in.SlippageBps), -2).String()
}

func slippageFraction(in quoteInput) string {
	return decimal.New(int64(in.SlippageBps), -4).String()
}

func recipientOrSender(in quoteInput) string {
	if in.ToAddress != "" {
		return in.ToAddress
	}
	return in.FromAddress
}

func constant(v string) ParamFunc {
	return func(quoteInput) string { return v }
}
