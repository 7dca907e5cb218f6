package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/config"
	"route-aggregator/internal/types"
)

const (
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

type mockSanctions struct{ mock.Mock }

func (m *mockSanctions) IsSanctioned(ctx context.Context, address, chain string) (bool, error) {
	args := m.Called(address, chain)
	return args.Bool(0), args.Error(1)
}

type mockPrices struct{ mock.Mock }

func (m *mockPrices) PriceUSDPerSmallestUnit(ctx context.Context, token, chain string) (decimal.Decimal, error) {
	args := m.Called(token, chain)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func testRoute(id string, impact *int) types.Route {
	return types.Route{
		RouteID:        id,
		Provider:       "lifi",
		Kind:           types.RouteKindSwap,
		FromChain:      "1",
		ToChain:        "1",
		FromToken:      usdc,
		ToToken:        weth,
		AmountIn:       "1000000",
		AmountOut:      "400000000000000",
		PriceImpactBps: impact,
		ToolsUsed:      []string{"uniswap"},
		Warnings:       []string{},
	}
}

func testRequest() types.QuoteRequest {
	return types.QuoteRequest{FromChain: "1", ToChain: "1", FromToken: usdc, ToToken: weth, AmountIn: "1000000"}
}

func TestPolicyPriceImpactLimit(t *testing.T) {
	e := NewPolicyEngine(config.PolicyConfig{MaxPriceImpactBps: intPtr(500)}, nil, nil, quietLogger())

	routes := []types.Route{
		testRoute("0x01", intPtr(100)),
		testRoute("0x02", intPtr(600)),
		testRoute("0x03", intPtr(200)),
	}
	out := e.Apply(context.Background(), routes, testRequest())

	require.Len(t, out.Allowed, 2)
	assert.Equal(t, "0x01", out.Allowed[0].RouteID)
	assert.Equal(t, "0x03", out.Allowed[1].RouteID)
	assert.Equal(t, []types.FilteredRoute{{RouteID: "0x02", Reason: ReasonPriceImpactHigh}}, out.Rejected)
}

func TestPolicyUnknownPriceImpact(t *testing.T) {
	strict := NewPolicyEngine(config.PolicyConfig{MaxPriceImpactBps: intPtr(0)}, nil, nil, quietLogger())
	out := strict.Apply(context.Background(), []types.Route{testRoute("0x01", nil)}, testRequest())
	assert.Empty(t, out.Allowed)
	assert.Equal(t, []types.FilteredRoute{{RouteID: "0x01", Reason: ReasonPriceImpactUnknown}}, out.Rejected)

	lenient := NewPolicyEngine(config.PolicyConfig{MaxPriceImpactBps: intPtr(300)}, nil, nil, quietLogger())
	res := lenient.Evaluate(context.Background(), testRoute("0x01", nil), testRequest())
	assert.True(t, res.Allowed)
	assert.Equal(t, []string{WarningPriceImpactUnknown}, res.Warnings)
}

func TestPolicyPriceImpactNearLimitWarns(t *testing.T) {
	e := NewPolicyEngine(config.PolicyConfig{MaxPriceImpactBps: intPtr(500)}, nil, nil, quietLogger())
	res := e.Evaluate(context.Background(), testRoute("0x01", intPtr(450)), testRequest())
	require.True(t, res.Allowed)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "4.50%")
}

func TestPolicyAllowAndDenyLists(t *testing.T) {
	ctx := context.Background()

	e := NewPolicyEngine(config.PolicyConfig{AllowedChains: []string{"ethereum"}}, nil, nil, quietLogger())
	assert.True(t, e.Evaluate(ctx, testRoute("0x01", nil), testRequest()).Allowed)
	bridge := testRoute("0x02", nil)
	bridge.ToChain = "42161"
	assert.Equal(t, ReasonChainNotAllowed, e.Evaluate(ctx, bridge, testRequest()).Reason)

	e = NewPolicyEngine(config.PolicyConfig{AllowedTools: []string{"Stargate"}}, nil, nil, quietLogger())
	assert.Equal(t, ReasonToolNotAllowed, e.Evaluate(ctx, testRoute("0x01", nil), testRequest()).Reason)
	noTools := testRoute("0x03", nil)
	noTools.ToolsUsed = nil
	assert.Equal(t, ReasonToolNotAllowed, e.Evaluate(ctx, noTools, testRequest()).Reason)

	e = NewPolicyEngine(config.PolicyConfig{DeniedTokens: []string{"0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"}}, nil, nil, quietLogger())
	assert.Equal(t, ReasonTokenNotAllowed, e.Evaluate(ctx, testRoute("0x01", nil), testRequest()).Reason)

	e = NewPolicyEngine(config.PolicyConfig{DeniedTools: []string{"UNISWAP"}}, nil, nil, quietLogger())
	assert.Equal(t, ReasonToolNotAllowed, e.Evaluate(ctx, testRoute("0x01", nil), testRequest()).Reason)
}

func TestPolicySanctions(t *testing.T) {
	sanctions := &mockSanctions{}
	sanctions.On("IsSanctioned", usdc, "1").Return(false, nil)
	sanctions.On("IsSanctioned", weth, "1").Return(true, nil)

	e := NewPolicyEngine(config.PolicyConfig{SanctionsCheck: true}, sanctions, nil, quietLogger())
	out := e.Apply(context.Background(), []types.Route{testRoute("0x01", nil), testRoute("0x02", nil)}, testRequest())

	assert.Empty(t, out.Allowed)
	require.Len(t, out.Rejected, 2)
	assert.Equal(t, ReasonNotAvailable, out.Rejected[0].Reason)
	// memoized across routes within one request
	sanctions.AssertNumberOfCalls(t, "IsSanctioned", 2)
}

func TestPolicySanctionsErrorFailsClosed(t *testing.T) {
	sanctions := &mockSanctions{}
	sanctions.On("IsSanctioned", mock.Anything, mock.Anything).Return(false, errors.New("oracle down"))

	e := NewPolicyEngine(config.PolicyConfig{SanctionsCheck: true}, sanctions, nil, quietLogger())
	res := e.Evaluate(context.Background(), testRoute("0x01", nil), testRequest())
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonNotAvailable, res.Reason)
}

func TestPolicySlippage(t *testing.T) {
	e := NewPolicyEngine(config.PolicyConfig{MaxSlippageBps: intPtr(100)}, nil, nil, quietLogger())
	req := testRequest()
	req.SlippageTolerance = floatPtr(1.5)
	assert.Equal(t, ReasonSlippageTooHigh, e.Evaluate(context.Background(), testRoute("0x01", nil), req).Reason)

	req.SlippageTolerance = floatPtr(1)
	assert.True(t, e.Evaluate(context.Background(), testRoute("0x01", nil), req).Allowed)
}

func TestPolicyMinimumNotional(t *testing.T) {
	prices := &mockPrices{}
	// 1 USDC = $1, so one base unit is $0.000001
	prices.On("PriceUSDPerSmallestUnit", usdc, "1").Return(decimal.RequireFromString("0.000001"), nil)

	e := NewPolicyEngine(config.PolicyConfig{MinNotionalUSD: floatPtr(5)}, nil, prices, quietLogger())
	small := testRoute("0x01", nil) // 1 USDC
	assert.Equal(t, ReasonAmountBelowMinimum, e.Evaluate(context.Background(), small, testRequest()).Reason)

	large := testRoute("0x02", nil)
	large.AmountIn = "5000000"
	assert.True(t, e.Evaluate(context.Background(), large, testRequest()).Allowed)
}

func TestPolicyMinimumNotionalLookupFailureFailsOpen(t *testing.T) {
	prices := &mockPrices{}
	prices.On("PriceUSDPerSmallestUnit", mock.Anything, mock.Anything).Return(decimal.Zero, errors.New("timeout"))

	e := NewPolicyEngine(config.PolicyConfig{MinNotionalUSD: floatPtr(5)}, nil, prices, quietLogger())
	res := e.Evaluate(context.Background(), testRoute("0x01", nil), testRequest())
	assert.True(t, res.Allowed)
	assert.Equal(t, []string{WarningPriceUnavailable}, res.Warnings)
}

func TestPolicyCrossChainWarningKeepsExistingWarnings(t *testing.T) {
	e := NewPolicyEngine(config.PolicyConfig{WarnCrossChain: true}, nil, nil, quietLogger())
	bridge := testRoute("0x01", nil)
	bridge.Kind = types.RouteKindBridge
	bridge.ToChain = "42161"
	bridge.Warnings = []string{"source warning"}

	out := e.Apply(context.Background(), []types.Route{bridge}, testRequest())
	require.Len(t, out.Allowed, 1)
	assert.Equal(t, []string{"source warning", WarningCrossChain}, out.Allowed[0].Warnings)
	assert.Equal(t, []string{"source warning"}, bridge.Warnings, "input route not mutated")
}
