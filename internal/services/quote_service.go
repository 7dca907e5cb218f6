package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/config"
	"route-aggregator/internal/events"
	"route-aggregator/internal/metrics"
	"route-aggregator/internal/sources"
	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

// ErrSourceUnavailable is returned when the provider of a quoted route is no longer enabled.
var ErrSourceUnavailable = errors.New("Route provider is not available")

// SourceRegistry is the view of the source registry the orchestrator needs.
type SourceRegistry interface {
	Enabled() []sources.Adapter
	Get(id string) (sources.Adapter, bool)
	Descriptor(id string) (sources.Descriptor, bool)
}

// GasOracle suggests gas prices for execution payloads that arrive without one.
type GasOracle interface {
	Supports(chain string) bool
	GetGasPrice(ctx context.Context, chain string) (*clients.GasPrice, error)
}

// QuoteServiceDeps are the collaborators of a QuoteService. Gas and Publisher are optional.
type QuoteServiceDeps struct {
	Registry  SourceRegistry
	Limiter   *RateLimiter
	Health    *HealthTracker
	Quality   *QualityTracker
	Policy    *PolicyEngine
	Snapshots *SnapshotStore
	Gas       GasOracle
	Publisher events.Publisher
	Logger    *logrus.Logger
	Config    config.QuoteConfig
	RateLimit config.RateLimitConfig // default when a source has none
}

// QuoteService fans quote requests out to the enabled sources and turns the answers into a
// ranked, policy-checked route list. It also builds execution payloads for quoted routes.
type QuoteService struct {
	registry       SourceRegistry
	limiter        *RateLimiter
	health         *HealthTracker
	quality        *QualityTracker
	policy         *PolicyEngine
	snapshots      *SnapshotStore
	gas            GasOracle
	publisher      events.Publisher
	logger         *logrus.Logger
	defaultTimeout time.Duration
	rateLimit      config.RateLimitConfig
	now            func() time.Time
}

// NewQuoteService creates a new QuoteService instance
func NewQuoteService(deps QuoteServiceDeps) *QuoteService {
	timeout := time.Duration(deps.Config.SourceTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &QuoteService{
		registry:       deps.Registry,
		limiter:        deps.Limiter,
		health:         deps.Health,
		quality:        deps.Quality,
		policy:         deps.Policy,
		snapshots:      deps.Snapshots,
		gas:            deps.Gas,
		publisher:      publisher,
		logger:         deps.Logger,
		defaultTimeout: timeout,
		rateLimit:      deps.RateLimit,
		now:            time.Now,
	}
}

type sourceResult struct {
	outcome types.SourceOutcome
	routes  []types.Route
}

// ============================================================================
// Quotes
// ============================================================================

// GetQuotes asks every enabled source for routes and returns them ranked best first.
// Source failures only reduce coverage; a total outage yields an empty route list.
func (s *QuoteService) GetQuotes(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error) {
	start := time.Now()
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		metrics.QuoteRequests.WithLabelValues("invalid").Inc()
		return nil, err
	}
	requestID := uuid.New().String()

	adapters := s.registry.Enabled()
	results := make([]sourceResult, len(adapters))

	// source calls outlive the caller; trackers are updated from each call's own completion
	callCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(max(1, len(adapters)))
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			results[i] = s.callSource(callCtx, a, req)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		metrics.QuoteRequests.WithLabelValues("abandoned").Inc()
		return nil, ctx.Err()
	}

	outcomes := make([]types.SourceOutcome, 0, len(results))
	var candidates []types.Route
	for _, r := range results {
		outcomes = append(outcomes, r.outcome)
		candidates = append(candidates, r.routes...)
	}

	filtered := s.policy.Apply(ctx, candidates, req)
	ranked := RankRoutes(filtered.Allowed)
	for i := range ranked {
		if ranked[i].AmountOutFormatted == "" {
			ranked[i].AmountOutFormatted = formatAmountOut(ranked[i])
		}
		s.snapshots.Store(ranked[i])
	}

	resp := &types.QuoteResponse{
		RequestID:      requestID,
		Routes:         ranked,
		FilteredRoutes: filtered.Rejected,
		Sources:        outcomes,
		QuotedAt:       s.now(),
	}

	elapsed := time.Since(start)
	metrics.QuoteDuration.Observe(elapsed.Seconds())
	result := "ok"
	if len(ranked) == 0 {
		result = "empty"
	}
	metrics.QuoteRequests.WithLabelValues(result).Inc()

	s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"from_chain": req.FromChain,
		"to_chain":   req.ToChain,
		"sources":    len(adapters),
		"candidates": len(candidates),
		"routes":     len(ranked),
		"filtered":   len(filtered.Rejected),
		"elapsed_ms": elapsed.Milliseconds(),
	}).Info("Quote request completed")

	event := events.QuoteCompleted{
		RequestID:     requestID,
		FromChain:     req.FromChain,
		ToChain:       req.ToChain,
		FromToken:     req.FromToken,
		ToToken:       req.ToToken,
		AmountIn:      req.AmountIn,
		RouteCount:    len(ranked),
		FilteredCount: len(filtered.Rejected),
		Sources:       outcomes,
		DurationMs:    elapsed.Milliseconds(),
		Timestamp:     resp.QuotedAt,
	}
	if len(ranked) > 0 {
		event.BestProvider = ranked[0].Provider
		event.BestAmountOut = ranked[0].EffectiveAmountOut()
	}
	s.publisher.Publish(events.SubjectQuoteCompleted, event)

	return resp, nil
}

// callSource runs one source through capability, rate-limit and health gates and records the outcome.
func (s *QuoteService) callSource(ctx context.Context, a sources.Adapter, req types.QuoteRequest) sourceResult {
	id := a.ID()
	res := sourceResult{outcome: types.SourceOutcome{Source: id}}

	if !a.Capabilities().Supports(req) {
		res.outcome.Status = types.SourceStatusUnsupported
		return res
	}
	desc, _ := s.registry.Descriptor(id)
	if !s.limiter.Check(id, s.sourceRateLimit(desc)).Allowed {
		res.outcome.Status = types.SourceStatusRateLimited
		metrics.SourceRequests.WithLabelValues(id, string(types.SourceStatusRateLimited)).Inc()
		return res
	}
	if !s.health.Admit(id) {
		res.outcome.Status = types.SourceStatusCircuitOpen
		metrics.SourceRequests.WithLabelValues(id, string(types.SourceStatusCircuitOpen)).Inc()
		return res
	}

	timeout := desc.Timeout()
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type quoteReply struct {
		routes []types.Route
		err    error
	}
	// buffered so an adapter that overruns its deadline can still deliver and exit
	replies := make(chan quoteReply, 1)
	started := time.Now()
	go func() {
		routes, err := a.GetQuote(callCtx, req)
		replies <- quoteReply{routes: routes, err: err}
	}()

	var routes []types.Route
	var err error
	select {
	case reply := <-replies:
		routes, err = reply.routes, reply.err
		if err == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = sources.Wrap(id, callCtx.Err())
		}
	case <-callCtx.Done():
		err = sources.Wrap(id, callCtx.Err())
	}
	latency := time.Since(started)

	res.outcome.LatencyMs = latency.Milliseconds()
	metrics.SourceLatency.WithLabelValues(id).Observe(latency.Seconds())

	if err != nil {
		class := sources.ClassOf(err)
		s.health.RecordFailure(id, err.Error(), class)
		s.quality.RecordFailure(id, latency)
		metrics.SourceRequests.WithLabelValues(id, string(types.SourceStatusError)).Inc()
		s.logger.WithFields(logrus.Fields{
			"source":     id,
			"class":      class,
			"latency_ms": latency.Milliseconds(),
			"error":      err,
		}).Warn("Quote source failed")

		res.outcome.Status = types.SourceStatusError
		res.outcome.ErrorClass = string(class)
		return res
	}

	kept := make([]types.Route, 0, len(routes))
	for _, r := range routes {
		if r.RouteID == "" || r.Provider != id {
			continue
		}
		kept = append(kept, r)
	}

	sample := ""
	if len(kept) > 0 {
		sample = kept[0].EffectiveAmountOut()
	}
	s.health.RecordSuccess(id, latency)
	s.quality.RecordSuccess(id, latency, len(kept), sample)
	metrics.SourceRequests.WithLabelValues(id, string(types.SourceStatusOK)).Inc()
	metrics.SourceRoutesReturned.WithLabelValues(id).Add(float64(len(kept)))

	res.outcome.Status = types.SourceStatusOK
	res.outcome.Routes = len(kept)
	res.routes = kept
	return res
}

func (s *QuoteService) sourceRateLimit(desc sources.Descriptor) config.RateLimitConfig {
	if desc.RateLimit.MaxRequests > 0 && desc.RateLimit.WindowSeconds > 0 {
		return desc.RateLimit
	}
	return s.rateLimit
}

// formatAmountOut renders the output in human units when the destination token's decimals are known.
func formatAmountOut(r types.Route) string {
	decimals, ok := utils.GlobalChainRegistry.DecimalsOf(r.ToChain, r.ToToken)
	if !ok {
		return ""
	}
	return utils.FormatUnits(r.EffectiveAmountOut(), decimals)
}

// ============================================================================
// Execution
// ============================================================================

// PrepareExecution builds the unsigned transaction of a quoted route. The request must match the
// route's snapshot; on any snapshot failure nothing is built. The snapshot is claimed for the duration of
// the build, so concurrent requests for one route cannot both succeed, and is consumed by a successful build.
func (s *QuoteService) PrepareExecution(ctx context.Context, req types.ExecutionRequest) (*types.ExecutionPayload, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	snap, err := s.snapshots.Claim(req)
	if err != nil {
		metrics.ExecutionRequests.WithLabelValues("unknown", "rejected").Inc()
		s.rejected(req.RouteID, "", err)
		return nil, err
	}

	adapter, ok := s.registry.Get(snap.Provider)
	if !ok {
		s.snapshots.Release(snap.RouteID)
		metrics.ExecutionRequests.WithLabelValues(snap.Provider, "unavailable").Inc()
		s.rejected(snap.RouteID, snap.Provider, ErrSourceUnavailable)
		return nil, ErrSourceUnavailable
	}

	timeout := s.defaultTimeout
	if desc, ok := s.registry.Descriptor(snap.Provider); ok && desc.TimeoutMs > 0 {
		timeout = desc.Timeout()
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := adapter.GetTx(callCtx, snap.RouteID, req)
	if err != nil {
		s.snapshots.Release(snap.RouteID)
		metrics.ExecutionRequests.WithLabelValues(snap.Provider, "error").Inc()
		s.rejected(snap.RouteID, snap.Provider, err)
		return nil, fmt.Errorf("failed to build execution payload: %w", err)
	}

	s.fillGas(ctx, payload)
	s.snapshots.Invalidate(snap.RouteID)

	metrics.ExecutionRequests.WithLabelValues(snap.Provider, "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"route_id": snap.RouteID,
		"provider": snap.Provider,
		"chain_id": payload.ChainID,
	}).Info("Execution payload prepared")
	s.publisher.Publish(events.SubjectExecutionPrepared, events.ExecutionEvent{
		RouteID:   snap.RouteID,
		Provider:  snap.Provider,
		ChainID:   payload.ChainID,
		Timestamp: s.now(),
	})
	return payload, nil
}

func (s *QuoteService) rejected(routeID, provider string, err error) {
	s.logger.WithFields(logrus.Fields{
		"route_id": routeID,
		"provider": provider,
		"error":    err,
	}).Warn("Execution request rejected")
	s.publisher.Publish(events.SubjectExecutionRejected, events.ExecutionEvent{
		RouteID:   routeID,
		Provider:  provider,
		Reason:    err.Error(),
		Timestamp: s.now(),
	})
}

// fillGas adds fee fields to EVM payloads that carry none. EIP-1559 chains get a max fee of twice
// the suggested price.
func (s *QuoteService) fillGas(ctx context.Context, p *types.ExecutionPayload) {
	if s.gas == nil || p.GasPrice != "" || p.MaxFeePerGas != "" {
		return
	}
	if !utils.GlobalChainRegistry.IsEVMCompatible(p.ChainID) || !s.gas.Supports(p.ChainID) {
		return
	}
	gp, err := s.gas.GetGasPrice(ctx, p.ChainID)
	if err != nil {
		s.logger.WithError(err).WithField("chain_id", p.ChainID).Warn("Failed to get gas price, leaving fees to the wallet")
		return
	}
	if gp.TipCap == nil {
		p.GasPrice = gp.GasPrice.String()
		return
	}
	p.MaxFeePerGas = new(big.Int).Mul(gp.GasPrice, big.NewInt(2)).String()
	p.MaxPriorityFeePerGas = gp.TipCap.String()
}
