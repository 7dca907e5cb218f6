package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"route-aggregator/internal/config"
	"route-aggregator/internal/metrics"
	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

// Rejection reasons returned to callers. They never name the list or hook that matched.
const (
	ReasonChainNotAllowed    = "Chain not allowed"
	ReasonTokenNotAllowed    = "Token not allowed"
	ReasonToolNotAllowed     = "Bridge or exchange not allowed"
	ReasonNotAvailable       = "Route not available"
	ReasonPriceImpactUnknown = "Price impact unknown"
	ReasonPriceImpactHigh    = "Price impact too high"
	ReasonSlippageTooHigh    = "Slippage tolerance too high"
	ReasonAmountBelowMinimum = "Amount below minimum"
)

// Warnings attached to allowed routes.
const (
	WarningPriceImpactUnknown = "Price impact could not be determined"
	WarningPriceUnavailable   = "USD value could not be verified"
	WarningCrossChain         = "Cross-chain route: funds arrive after the bridge settles"
)

// SanctionsChecker screens addresses against sanctions lists.
type SanctionsChecker interface {
	IsSanctioned(ctx context.Context, address, chain string) (bool, error)
}

// PriceOracle prices one base unit of a token in USD.
type PriceOracle interface {
	PriceUSDPerSmallestUnit(ctx context.Context, token, chain string) (decimal.Decimal, error)
}

// PolicyResult is the verdict for one route.
type PolicyResult struct {
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// PolicyOutcome partitions routes after policy evaluation.
type PolicyOutcome struct {
	Allowed  []types.Route
	Rejected []types.FilteredRoute
}

// PolicyEngine filters routes through compliance and risk checks in a fixed order,
// stopping at the first rejection.
type PolicyEngine struct {
	cfg       config.PolicyConfig
	sanctions SanctionsChecker
	prices    PriceOracle
	logger    *logrus.Logger

	allowedChains, allowedTokens, allowedTools set
	deniedChains, deniedTokens, deniedTools    set
	minNotional                                *decimal.Decimal
}

type set map[string]struct{}

func newSet(values []string, normalize func(string) string) set {
	s := make(set, len(values))
	for _, v := range values {
		s[normalize(v)] = struct{}{}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

func lowerKey(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

func chainKey(v string) string { return strings.ToLower(utils.NormalizeChain(v)) }

// NewPolicyEngine builds an engine. A nil sanctions checker disables screening; a nil price
// oracle makes every minimum-notional lookup fail open with a warning.
func NewPolicyEngine(cfg config.PolicyConfig, sanctions SanctionsChecker, prices PriceOracle, logger *logrus.Logger) *PolicyEngine {
	e := &PolicyEngine{
		cfg:           cfg,
		sanctions:     sanctions,
		prices:        prices,
		logger:        logger,
		allowedChains: newSet(cfg.AllowedChains, chainKey),
		allowedTokens: newSet(cfg.AllowedTokens, lowerKey),
		allowedTools:  newSet(cfg.AllowedTools, lowerKey),
		deniedChains:  newSet(cfg.DeniedChains, chainKey),
		deniedTokens:  newSet(cfg.DeniedTokens, lowerKey),
		deniedTools:   newSet(cfg.DeniedTools, lowerKey),
	}
	if cfg.MinNotionalUSD != nil && *cfg.MinNotionalUSD > 0 {
		min := decimal.NewFromFloat(*cfg.MinNotionalUSD)
		e.minNotional = &min
	}
	return e
}

type screenKey struct{ address, chain string }

type screenResult struct {
	hit bool
	err error
}

// evaluation holds per-request memoized hook results so a token shared by many routes is
// screened and priced once.
type evaluation struct {
	screened map[screenKey]screenResult
	priced   map[screenKey]*decimal.Decimal
}

func newEvaluation() *evaluation {
	return &evaluation{
		screened: make(map[screenKey]screenResult),
		priced:   make(map[screenKey]*decimal.Decimal),
	}
}

// Evaluate runs every check against a single route.
func (e *PolicyEngine) Evaluate(ctx context.Context, route types.Route, req types.QuoteRequest) PolicyResult {
	return e.evaluate(ctx, route, req, newEvaluation())
}

// Apply evaluates each route and partitions them. Allowed routes are copies with the
// accumulated warnings appended after their existing ones.
func (e *PolicyEngine) Apply(ctx context.Context, routes []types.Route, req types.QuoteRequest) PolicyOutcome {
	out := PolicyOutcome{
		Allowed:  make([]types.Route, 0, len(routes)),
		Rejected: make([]types.FilteredRoute, 0),
	}
	memo := newEvaluation()
	for _, route := range routes {
		res := e.evaluate(ctx, route, req, memo)
		if !res.Allowed {
			metrics.PolicyRejections.WithLabelValues(res.Reason).Inc()
			e.logger.WithFields(logrus.Fields{
				"route_id": route.RouteID,
				"provider": route.Provider,
				"reason":   res.Reason,
			}).Debug("route rejected by policy")
			out.Rejected = append(out.Rejected, types.FilteredRoute{RouteID: route.RouteID, Reason: res.Reason})
			continue
		}
		out.Allowed = append(out.Allowed, route.WithWarnings(res.Warnings...))
	}
	return out
}

func reject(reason string) PolicyResult {
	return PolicyResult{Allowed: false, Reason: reason}
}

func (e *PolicyEngine) evaluate(ctx context.Context, route types.Route, req types.QuoteRequest, memo *evaluation) PolicyResult {
	var warnings []string
	chains := []string{chainKey(route.FromChain), chainKey(route.ToChain)}
	tokens := []string{lowerKey(route.FromToken), lowerKey(route.ToToken)}
	tools := declaredTools(route)

	// 1. allowlists
	if len(e.allowedChains) > 0 {
		for _, c := range chains {
			if !e.allowedChains.has(c) {
				return reject(ReasonChainNotAllowed)
			}
		}
	}
	if len(e.allowedTokens) > 0 {
		for _, t := range tokens {
			if !e.allowedTokens.has(t) {
				return reject(ReasonTokenNotAllowed)
			}
		}
	}
	if len(e.allowedTools) > 0 {
		permitted := false
		for _, t := range tools {
			if e.allowedTools.has(t) {
				permitted = true
				break
			}
		}
		if !permitted {
			return reject(ReasonToolNotAllowed)
		}
	}

	// 2. denylists
	for _, c := range chains {
		if e.deniedChains.has(c) {
			return reject(ReasonChainNotAllowed)
		}
	}
	for _, t := range tokens {
		if e.deniedTokens.has(t) {
			return reject(ReasonTokenNotAllowed)
		}
	}
	for _, t := range tools {
		if e.deniedTools.has(t) {
			return reject(ReasonToolNotAllowed)
		}
	}

	// 3. sanctions
	if e.cfg.SanctionsCheck && e.sanctions != nil {
		pairs := []screenKey{
			{route.FromToken, route.FromChain},
			{route.ToToken, route.ToChain},
		}
		if req.FromAddress != "" {
			pairs = append(pairs, screenKey{req.FromAddress, route.FromChain})
		}
		if req.ToAddress != "" {
			pairs = append(pairs, screenKey{req.ToAddress, route.ToChain})
		}
		for _, p := range pairs {
			if e.screen(ctx, p, memo) {
				return reject(ReasonNotAvailable)
			}
		}
	}

	// 4. price impact
	if max := e.cfg.MaxPriceImpactBps; max != nil {
		switch impact := route.PriceImpactBps; {
		case impact == nil && *max == 0:
			return reject(ReasonPriceImpactUnknown)
		case impact == nil:
			warnings = append(warnings, WarningPriceImpactUnknown)
		case *impact > *max:
			return reject(ReasonPriceImpactHigh)
		case *impact*10 > *max*8:
			warnings = append(warnings, fmt.Sprintf("High price impact: %.2f%% (limit %.2f%%)",
				float64(*impact)/100, float64(*max)/100))
		}
	}

	// 5. slippage
	if max := e.cfg.MaxSlippageBps; max != nil && req.SlippageBps() > *max {
		return reject(ReasonSlippageTooHigh)
	}

	// 6. minimum notional
	if e.minNotional != nil {
		price := e.price(ctx, screenKey{route.FromToken, route.FromChain}, memo)
		amountIn, ok := utils.ParseBaseUnits(route.AmountIn)
		switch {
		case price == nil || !ok:
			warnings = append(warnings, WarningPriceUnavailable)
		case decimal.NewFromBigInt(amountIn, 0).Mul(*price).LessThan(*e.minNotional):
			return reject(ReasonAmountBelowMinimum)
		}
	}

	// 7. informational
	if e.cfg.WarnCrossChain && route.Kind == types.RouteKindBridge {
		warnings = append(warnings, WarningCrossChain)
	}

	return PolicyResult{Allowed: true, Warnings: warnings}
}

// screen fails closed: a hook error counts as a hit.
func (e *PolicyEngine) screen(ctx context.Context, key screenKey, memo *evaluation) bool {
	if res, ok := memo.screened[key]; ok {
		return res.hit || res.err != nil
	}
	hit, err := e.sanctions.IsSanctioned(ctx, key.address, key.chain)
	memo.screened[key] = screenResult{hit: hit, err: err}
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"address": key.address,
			"chain":   key.chain,
		}).Warn("sanctions screening failed, rejecting route")
		return true
	}
	return hit
}

// price fails open: a lookup error yields nil.
func (e *PolicyEngine) price(ctx context.Context, key screenKey, memo *evaluation) *decimal.Decimal {
	if p, ok := memo.priced[key]; ok {
		return p
	}
	var result *decimal.Decimal
	if e.prices != nil {
		p, err := e.prices.PriceUSDPerSmallestUnit(ctx, key.address, key.chain)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"token": key.address,
				"chain": key.chain,
			}).Warn("price lookup failed, skipping minimum notional check")
		} else {
			result = &p
		}
	}
	memo.priced[key] = result
	return result
}

func declaredTools(route types.Route) []string {
	seen := make(map[string]struct{})
	var tools []string
	add := func(t string) {
		t = lowerKey(t)
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		tools = append(tools, t)
	}
	for _, t := range route.ToolsUsed {
		add(t)
	}
	for _, s := range route.Steps {
		add(s.Tool)
	}
	return tools
}
