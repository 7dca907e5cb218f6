package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/config"
	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

const (
	ethUSDC = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	arbUSDC = "0xaf88d065e77c8cc2239327c5edb3a432268e5831"
	alice   = "0x00000000000000000000000000000000000a11ce"
	bob     = "0x0000000000000000000000000000000000000b0b"
)

func withBaseURL(spec AggregatorSpec, url string) AggregatorSpec {
	spec.BaseURL = url
	return spec
}

const lifiQuote = `{
  "tool": "stargate",
  "estimate": {
    "toAmount": "998000000",
    "toAmountMin": "993010000",
    "executionDuration": 120,
    "fromAmountUSD": "1000.00",
    "toAmountUSD": "998.00",
    "gasCosts": [{"limit": "0x493e0"}],
    "feeCosts": [
      {"name": "LIFI Fixed Fee", "amount": "2500000", "amountUSD": "2.50", "token": {"address": "0xaf88d065e77c8cc2239327c5edb3a432268e5831"}, "included": false},
      {"name": "Relayer", "amount": "100", "token": {"address": "0x0000000000000000000000000000000000000000"}, "included": false},
      {"name": "Protocol", "amount": "500", "token": {"address": "0xAF88d065e77c8cC2239327C5EDb3A432268e5831"}, "included": true}
    ]
  },
  "includedSteps": [
    {"type": "swap", "tool": "uniswap",
     "action": {"fromChainId": 1, "toChainId": 1, "fromToken": {"address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"}, "toToken": {"address": "0xdAC17F958D2ee523a2206206994597C13D831ec7"}, "fromAmount": "1000000000"},
     "estimate": {"toAmount": "999000000"}},
    {"type": "cross", "tool": "stargate",
     "action": {"fromChainId": 1, "toChainId": 42161, "fromToken": {"address": "0xdAC17F958D2ee523a2206206994597C13D831ec7"}, "toToken": {"address": "0xaf88d065e77c8cc2239327c5edb3a432268e5831"}, "fromAmount": "999000000"},
     "estimate": {"toAmount": "998000000"}}
  ]
}`

func TestLiFiQuoteParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("fromChain"))
		assert.Equal(t, "42161", q.Get("toChain"))
		assert.Equal(t, "1000000000", q.Get("fromAmount"))
		assert.Equal(t, "0.005", q.Get("slippage"))
		assert.False(t, q.Has("fromAddress"))
		assert.Empty(t, r.Header.Get("x-lifi-api-key"))
		_, _ = w.Write([]byte(lifiQuote))
	}))
	defer srv.Close()

	a := NewAggregatorAdapter(withBaseURL(LiFiSpec, srv.URL), config.SourceConfig{}, time.Minute)
	routes, err := a.GetQuote(context.Background(), types.QuoteRequest{
		FromChain: "1", ToChain: "42161", FromToken: ethUSDC, ToToken: arbUSDC, AmountIn: "1000000000",
	})
	require.NoError(t, err)
	require.Len(t, routes, 1)

	r := routes[0]
	assert.Equal(t, "lifi", r.Provider)
	assert.Equal(t, types.RouteKindBridge, r.Kind)
	assert.Equal(t, "998000000", r.AmountOut)
	assert.Equal(t, "993010000", r.AmountOutMin)
	assert.Equal(t, "300000", r.EstimatedGas)
	assert.Equal(t, 120, r.ExecutionDuration)
	require.NotNil(t, r.PriceImpactBps)
	assert.Equal(t, 20, *r.PriceImpactBps)
	assert.Equal(t, "2500000", r.Fees)
	assert.Len(t, r.FeeCosts, 3)
	assert.Equal(t, []string{"uniswap", "stargate"}, r.ToolsUsed)
	require.Len(t, r.Steps, 2)
	assert.Equal(t, "42161", r.Steps[1].ToChain)
	assert.Equal(t, "0xdac17f958d2ee523a2206206994597c13d831ec7", r.Steps[0].ToToken)
	assert.Equal(t, RouteID(r), r.RouteID)
	assert.NotNil(t, r.Warnings)
}

func TestAggregatorSkipsZeroOutputAndRejectsNonIntegers(t *testing.T) {
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	defer srv.Close()

	a := NewAggregatorAdapter(withBaseURL(LiFiSpec, srv.URL), config.SourceConfig{}, time.Minute)
	req := types.QuoteRequest{FromChain: "1", ToChain: "1", FromToken: ethUSDC, ToToken: utils.NativeTokenZero, AmountIn: "1000"}

	body.Store(`{"estimate":{"toAmount":"0"}}`)
	routes, err := a.GetQuote(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, routes)

	body.Store(`{"estimate":{"toAmount":"1.5"}}`)
	_, err = a.GetQuote(context.Background(), req)
	assert.Equal(t, types.FailureMalformed, ClassOf(err))

	body.Store(`{"estimate":`)
	_, err = a.GetQuote(context.Background(), req)
	assert.Equal(t, types.FailureMalformed, ClassOf(err))
}

func TestZeroExQuoteAndDriftCheckedTx(t *testing.T) {
	var fresh atomic.Value
	fresh.Store("990000")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("0x-api-key"))
		assert.Equal(t, "v2", r.Header.Get("0x-version"))
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("chainId"))
		assert.Equal(t, utils.NativeTokenEeee, q.Get("sellToken"))
		assert.Equal(t, "50", q.Get("slippageBps"))

		switch r.URL.Path {
		case "/swap/allowance-holder/price":
			_, _ = w.Write([]byte(`{
			  "buyAmount": "1000000", "minBuyAmount": "995000", "gas": "150000",
			  "route": {"fills": [{"source": "Uniswap_V3"}, {"source": "Curve"}, {"source": "Uniswap_V3"}]},
			  "fees": {"zeroExFee": {"amount": "1500", "token": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"}, "integratorFee": null}
			}`))
		case "/swap/allowance-holder/quote":
			assert.Equal(t, alice, q.Get("taker"))
			assert.Equal(t, bob, q.Get("recipient"))
			_, _ = w.Write([]byte(`{
			  "buyAmount": "` + fresh.Load().(string) + `",
			  "transaction": {"to": "0x0000000000001fF3684f28c67538d4D072C22734", "data": "0x2213bc0b", "value": "1000000000000000", "gas": "160000", "gasPrice": "0x3b9aca00"}
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewAggregatorAdapter(withBaseURL(ZeroExSpec, srv.URL), config.SourceConfig{APIKey: "k"}, time.Minute)
	assert.False(t, a.Capabilities().CrossChain)

	routes, err := a.GetQuote(context.Background(), types.QuoteRequest{
		FromChain: "1", ToChain: "1", FromToken: utils.NativeTokenZero, ToToken: ethUSDC, AmountIn: "1000000000000000",
	})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	route := routes[0]
	assert.Equal(t, types.RouteKindSwap, route.Kind)
	assert.Equal(t, "1500", route.Fees)
	assert.Equal(t, []string{"Uniswap_V3", "Curve"}, route.ToolsUsed)

	exec := types.ExecutionRequest{
		RouteID: route.RouteID, FromChain: "1", ToChain: "1", FromToken: utils.NativeTokenZero, ToToken: ethUSDC,
		AmountIn: "1000000000000000", Recipient: bob, FromAddress: alice,
	}
	_, err = a.GetTx(context.Background(), route.RouteID, exec)
	assert.ErrorIs(t, err, ErrQuoteDrift)

	fresh.Store("996000")
	payload, err := a.GetTx(context.Background(), route.RouteID, exec)
	require.NoError(t, err)
	assert.Equal(t, route.RouteID, payload.RouteID)
	assert.Equal(t, "zerox", payload.Provider)
	assert.Equal(t, "1", payload.ChainID)
	assert.Equal(t, "0x2213bc0b", payload.Data)
	assert.Equal(t, "1000000000000000", payload.Value)
	assert.Equal(t, "160000", payload.GasLimit)
	assert.Equal(t, "1000000000", payload.GasPrice)

	// routes this process never quoted are not drift-checked
	fresh.Store("1")
	_, err = a.GetTx(context.Background(), "0xunknown", exec)
	assert.NoError(t, err)
}

func TestDeBridgeCreateTx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("srcChainId"))
		assert.Equal(t, "42161", q.Get("dstChainId"))
		assert.Equal(t, "true", q.Get("prependOperatingExpenses"))
		switch r.URL.Path {
		case "/dln/order/quote":
			_, _ = w.Write([]byte(`{"estimation":{"dstChainTokenOut":{"amount":"997000000","recommendedAmount":"996000000"}},"fixFee":"1000000000000000","order":{"approximateFulfillmentDelay":2}}`))
		case "/dln/order/create-tx":
			assert.Equal(t, bob, q.Get("dstChainTokenOutRecipient"))
			assert.Equal(t, alice, q.Get("srcChainOrderAuthorityAddress"))
			assert.Equal(t, bob, q.Get("dstChainOrderAuthorityAddress"))
			_, _ = w.Write([]byte(`{"estimation":{"dstChainTokenOut":{"amount":"997100000"}},"tx":{"to":"0xeF4fB24aD0916217251F553c0596F8Edc630EB66","data":"0xfbe16ca7","value":"1000000000000000"}}`))
		}
	}))
	defer srv.Close()

	a := NewAggregatorAdapter(withBaseURL(DeBridgeSpec, srv.URL), config.SourceConfig{}, time.Minute)
	routes, err := a.GetQuote(context.Background(), types.QuoteRequest{
		FromChain: "1", ToChain: "42161", FromToken: ethUSDC, ToToken: arbUSDC, AmountIn: "1000000000",
	})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "0", routes[0].Fees)
	assert.Equal(t, []string{"dln"}, routes[0].ToolsUsed)
	require.Len(t, routes[0].FeeCosts, 1)
	assert.Equal(t, "fixFee", routes[0].FeeCosts[0].Name)

	payload, err := a.GetTx(context.Background(), routes[0].RouteID, types.ExecutionRequest{
		RouteID: routes[0].RouteID, FromChain: "1", ToChain: "42161", FromToken: ethUSDC, ToToken: arbUSDC,
		AmountIn: "1000000000", Recipient: bob, FromAddress: alice,
	})
	require.NoError(t, err)
	assert.Equal(t, "1", payload.ChainID)
	assert.Equal(t, "0xfbe16ca7", payload.Data)
}

func TestOneInchPathAndBearerAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/56/quote", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"dstAmount":"5000","gas":210000}`))
	}))
	defer srv.Close()

	a := NewAggregatorAdapter(withBaseURL(OneInchSpec, srv.URL), config.SourceConfig{APIKey: "key"}, time.Minute)
	routes, err := a.GetQuote(context.Background(), types.QuoteRequest{
		FromChain: "bsc", ToChain: "bsc", FromToken: utils.NativeTokenZero, ToToken: "0x55d398326f99059ff775485246999027b3197955", AmountIn: "1000",
	})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "56", routes[0].FromChain)
	assert.Equal(t, "210000", routes[0].EstimatedGas)
}

func TestWrapClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.FailureClass
	}{
		{"unauthorized", &clients.HTTPError{StatusCode: 401}, types.FailureAuth},
		{"forbidden", &clients.HTTPError{StatusCode: 403}, types.FailureAuth},
		{"throttled", &clients.HTTPError{StatusCode: 429}, types.FailureThrottle},
		{"server", &clients.HTTPError{StatusCode: 502}, types.FailureServer},
		{"client", &clients.HTTPError{StatusCode: 400}, types.FailureClient},
		{"deadline", context.DeadlineExceeded, types.FailureTimeout},
		{"malformed", malformed("bad"), types.FailureMalformed},
		{"other", errors.New("boom"), types.FailureUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrap("lifi", tt.err)
			assert.Equal(t, tt.want, ClassOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.Nil(t, Wrap("lifi", nil))

	wrapped := Wrap("lifi", &clients.HTTPError{StatusCode: 429})
	assert.Same(t, wrapped, Wrap("zerox", wrapped))
}

func TestRouteIDStability(t *testing.T) {
	base := types.Route{
		Provider: "lifi", FromChain: "1", ToChain: "42161", FromToken: ethUSDC, ToToken: arbUSDC,
		AmountIn: "1000", AmountOut: "990",
	}
	a := finalize(base)

	upper := base
	upper.FromChain = "ethereum"
	upper.FromToken = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	assert.Equal(t, a.RouteID, finalize(upper).RouteID)

	other := base
	other.AmountOut = "991"
	assert.NotEqual(t, a.RouteID, finalize(other).RouteID)

	assert.Len(t, a.RouteID, 34)
}

func TestCapabilitiesSupports(t *testing.T) {
	caps := Capabilities{SameChain: true, Chains: []string{"1", "56"}}
	assert.True(t, caps.Supports(types.QuoteRequest{FromChain: "eth", ToChain: "ethereum"}))
	assert.False(t, caps.Supports(types.QuoteRequest{FromChain: "1", ToChain: "56"}))
	assert.False(t, caps.Supports(types.QuoteRequest{FromChain: "137", ToChain: "137"}))

	open := Capabilities{SameChain: true, CrossChain: true}
	assert.True(t, open.Supports(types.QuoteRequest{FromChain: "solana", ToChain: "1"}))
}
