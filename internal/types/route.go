package types

import (
	"time"
)

// RouteKind distinguishes same-chain swaps from cross-chain bridges.
type RouteKind string

const (
	RouteKindSwap   RouteKind = "swap"
	RouteKindBridge RouteKind = "bridge"
)

// KindFor returns the route kind implied by a chain pair.
func KindFor(fromChain, toChain string) RouteKind {
	if fromChain != toChain {
		return RouteKindBridge
	}
	return RouteKindSwap
}

// FeeCost is one itemized fee reported by a source.
type FeeCost struct {
	Name      string `json:"name"`
	Amount    string `json:"amount"`
	AmountUSD string `json:"amountUSD,omitempty"`
	Token     string `json:"token,omitempty"`
	Included  bool   `json:"included"`
}

// RouteStep is one hop of a route.
type RouteStep struct {
	Type         string `json:"type"`
	Tool         string `json:"tool,omitempty"`
	FromChain    string `json:"fromChain"`
	ToChain      string `json:"toChain"`
	FromToken    string `json:"fromToken"`
	ToToken      string `json:"toToken"`
	AmountIn     string `json:"amountIn,omitempty"`
	AmountOut    string `json:"amountOut,omitempty"`
	EstimatedGas string `json:"estimatedGas,omitempty"`
	Fees         string `json:"fees,omitempty"`
}

// Route is one candidate way to convert fromToken into toToken.
// Amounts are base-unit integer strings; Fees is denominated in toToken base units.
type Route struct {
	RouteID            string      `json:"routeId"`
	Provider           string      `json:"provider"`
	Kind               RouteKind   `json:"type"`
	FromChain          string      `json:"fromChain"`
	ToChain            string      `json:"toChain"`
	FromToken          string      `json:"fromToken"`
	ToToken            string      `json:"toToken"`
	AmountIn           string      `json:"amountIn"`
	AmountOut          string      `json:"amountOut,omitempty"`
	AmountOutMin       string      `json:"amountOutMin,omitempty"`
	AmountOutFormatted string      `json:"amountOutFormatted,omitempty"`
	EstimatedGas       string      `json:"estimatedGas,omitempty"`
	Fees               string      `json:"fees,omitempty"`
	FeeCosts           []FeeCost   `json:"feeCosts,omitempty"`
	PriceImpactBps     *int        `json:"priceImpactBps,omitempty"`
	ExecutionDuration  int         `json:"executionDurationSec,omitempty"`
	Steps              []RouteStep `json:"steps"`
	Warnings           []string    `json:"warnings"`
	ToolsUsed          []string    `json:"toolsUsed"`
}

// EffectiveAmountOut is the top-level output, or the last step's output when absent.
func (r Route) EffectiveAmountOut() string {
	if r.AmountOut != "" {
		return r.AmountOut
	}
	if n := len(r.Steps); n > 0 {
		return r.Steps[n-1].AmountOut
	}
	return ""
}

// WithWarnings returns a copy carrying the existing warnings followed by extra.
func (r Route) WithWarnings(extra ...string) Route {
	if len(extra) == 0 {
		return r
	}
	warnings := make([]string, 0, len(r.Warnings)+len(extra))
	warnings = append(warnings, r.Warnings...)
	warnings = append(warnings, extra...)
	r.Warnings = warnings
	return r
}

// FilteredRoute is a route removed by policy, with a caller-safe reason.
type FilteredRoute struct {
	RouteID string `json:"routeId"`
	Reason  string `json:"reason"`
}

// SourceStatus is the outcome of asking one source during a quote request.
type SourceStatus string

const (
	SourceStatusOK          SourceStatus = "ok"
	SourceStatusRateLimited SourceStatus = "rate_limited"
	SourceStatusCircuitOpen SourceStatus = "circuit_open"
	SourceStatusUnsupported SourceStatus = "unsupported"
	SourceStatusError       SourceStatus = "error"
)

// SourceOutcome summarizes one source's participation in a quote request.
type SourceOutcome struct {
	Source     string       `json:"source"`
	Status     SourceStatus `json:"status"`
	Routes     int          `json:"routes"`
	LatencyMs  int64        `json:"latencyMs,omitempty"`
	ErrorClass string       `json:"errorClass,omitempty"`
}

// QuoteResponse is the ranked result of a quote request.
type QuoteResponse struct {
	RequestID      string          `json:"requestId"`
	Routes         []Route         `json:"routes"`
	FilteredRoutes []FilteredRoute `json:"filteredRoutes,omitempty"`
	Sources        []SourceOutcome `json:"sources"`
	QuotedAt       time.Time       `json:"quotedAt"`
}

// ExecutionPayload is an unsigned transaction built by the route's source.
type ExecutionPayload struct {
	RouteID              string `json:"routeId"`
	Provider             string `json:"provider"`
	ChainID              string `json:"chainId"`
	To                   string `json:"to"`
	Data                 string `json:"txData"`
	Value                string `json:"value"`
	GasLimit             string `json:"gasLimit,omitempty"`
	GasPrice             string `json:"gasPrice,omitempty"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
	Memo                 string `json:"memo,omitempty"`
}
