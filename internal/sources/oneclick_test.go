package sources

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/types"
)

type mockOneClick struct {
	mock.Mock
}

func (m *mockOneClick) FindAsset(ctx context.Context, chain, token string) (string, error) {
	args := m.Called(ctx, chain, token)
	return args.String(0), args.Error(1)
}

func (m *mockOneClick) GetQuote(ctx context.Context, p clients.OneClickQuoteParams) (*clients.OneClickQuote, error) {
	args := m.Called(ctx, p)
	q, _ := args.Get(0).(*clients.OneClickQuote)
	return q, args.Error(1)
}

func dry(want bool) any {
	return mock.MatchedBy(func(p clients.OneClickQuoteParams) bool { return p.Dry == want })
}

func TestOneClickNeedsAddresses(t *testing.T) {
	api := new(mockOneClick)
	o := NewOneClickAdapter(api, time.Minute)

	routes, err := o.GetQuote(context.Background(), types.QuoteRequest{
		FromChain: "1", ToChain: "42161", FromToken: ethUSDC, ToToken: arbUSDC, AmountIn: "1000000",
	})
	require.NoError(t, err)
	assert.Empty(t, routes)
	api.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
}

func TestOneClickUnlistedTokenHasNoRoutes(t *testing.T) {
	api := new(mockOneClick)
	api.On("FindAsset", mock.Anything, "1", ethUSDC).
		Return("", fmt.Errorf("%w: token %s", clients.ErrAssetNotFound, ethUSDC))

	o := NewOneClickAdapter(api, time.Minute)
	routes, err := o.GetQuote(context.Background(), types.QuoteRequest{
		FromChain: "1", ToChain: "42161", FromToken: ethUSDC, ToToken: arbUSDC, AmountIn: "1000000", FromAddress: alice,
	})
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestOneClickQuoteAndDepositTransfer(t *testing.T) {
	api := new(mockOneClick)
	api.On("FindAsset", mock.Anything, "1", ethUSDC).Return("nep141:eth-usdc", nil)
	api.On("FindAsset", mock.Anything, "42161", arbUSDC).Return("nep141:arb-usdc", nil)
	api.On("GetQuote", mock.Anything, dry(true)).
		Return(&clients.OneClickQuote{AmountOut: "999000", MinAmountOut: "994000", TimeEstimate: 30}, nil)
	api.On("GetQuote", mock.Anything, dry(false)).
		Return(&clients.OneClickQuote{AmountOut: "998500", DepositAddress: "0x1111111111111111111111111111111111111111"}, nil)

	o := NewOneClickAdapter(api, time.Minute)
	routes, err := o.GetQuote(context.Background(), types.QuoteRequest{
		FromChain: "1", ToChain: "42161", FromToken: ethUSDC, ToToken: arbUSDC, AmountIn: "1000000", FromAddress: alice,
	})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	r := routes[0]
	assert.Equal(t, "999000", r.AmountOut)
	assert.Equal(t, "994000", r.AmountOutMin)
	assert.Equal(t, 30, r.ExecutionDuration)
	assert.Equal(t, types.RouteKindBridge, r.Kind)
	assert.Equal(t, []string{"near-intents"}, r.ToolsUsed)

	payload, err := o.GetTx(context.Background(), r.RouteID, types.ExecutionRequest{
		RouteID: r.RouteID, FromChain: "1", ToChain: "42161", FromToken: ethUSDC, ToToken: arbUSDC,
		AmountIn: "1000000", Recipient: bob, FromAddress: alice,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", payload.To)
	assert.Equal(t, "0", payload.Value)
	wantData := "0xa9059cbb" + strings.Repeat("0", 24) + strings.Repeat("1", 40) + strings.Repeat("0", 59) + "f4240"
	assert.Equal(t, wantData, payload.Data)

	api.AssertCalled(t, "GetQuote", mock.Anything, mock.MatchedBy(func(p clients.OneClickQuoteParams) bool {
		return !p.Dry && p.Recipient == bob && p.RefundTo == alice && p.SlippageBps == 50
	}))
}

func TestOneClickDriftRejected(t *testing.T) {
	api := new(mockOneClick)
	api.On("FindAsset", mock.Anything, mock.Anything, mock.Anything).Return("nep141:asset", nil)
	api.On("GetQuote", mock.Anything, dry(true)).Return(&clients.OneClickQuote{AmountOut: "1000000"}, nil)
	api.On("GetQuote", mock.Anything, dry(false)).Return(&clients.OneClickQuote{AmountOut: "900000", DepositAddress: "0x1111111111111111111111111111111111111111"}, nil)

	o := NewOneClickAdapter(api, time.Minute)
	req := types.QuoteRequest{FromChain: "1", ToChain: "1", FromToken: ethUSDC, ToToken: arbUSDC, AmountIn: "1000000", FromAddress: alice}
	routes, err := o.GetQuote(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, routes, 1)

	_, err = o.GetTx(context.Background(), routes[0].RouteID, types.ExecutionRequest{
		RouteID: routes[0].RouteID, FromChain: "1", ToChain: "1", FromToken: ethUSDC, ToToken: arbUSDC,
		AmountIn: "1000000", Recipient: bob, FromAddress: alice,
	})
	assert.ErrorIs(t, err, ErrQuoteDrift)
}
