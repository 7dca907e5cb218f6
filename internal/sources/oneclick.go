package sources

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

// erc20 transfer(address,uint256)
var transferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// oneClickAPI is the part of the 1Click client the adapter drives.
type oneClickAPI interface {
	FindAsset(ctx context.Context, chain, token string) (string, error)
	GetQuote(ctx context.Context, p clients.OneClickQuoteParams) (*clients.OneClickQuote, error)
}

// OneClickAdapter integrates the 1Click intents API. Execution is a plain transfer to a deposit address
// allocated by a non-dry quote.
type OneClickAdapter struct {
	api      oneClickAPI
	memo     *quoteMemo
	deadline time.Duration
	now      func() time.Time
}

// NewOneClickAdapter creates the 1Click adapter over api.
func NewOneClickAdapter(api oneClickAPI, memoTTL time.Duration) *OneClickAdapter {
	return &OneClickAdapter{
		api:      api,
		memo:     newQuoteMemo(memoTTL),
		deadline: 30 * time.Minute,
		now:      time.Now,
	}
}

func (o *OneClickAdapter) ID() string { return "oneclick" }

func (o *OneClickAdapter) Capabilities() Capabilities {
	return Capabilities{SameChain: true, CrossChain: true, Chains: utils.GlobalChainIDMapping.SupportedBy("oneclick")}
}

// GetQuote implements Adapter. 1Click prices only requests that name a refund and a recipient address,
// so requests without them get no routes.
func (o *OneClickAdapter) GetQuote(ctx context.Context, req types.QuoteRequest) ([]types.Route, error) {
	params, ok, err := o.params(ctx, req, true)
	if err != nil || !ok {
		return nil, Wrap(o.ID(), err)
	}
	q, err := o.api.GetQuote(ctx, params)
	if err != nil {
		return nil, Wrap(o.ID(), err)
	}
	out, ok := utils.ParseBaseUnits(q.AmountOut)
	if !ok {
		return nil, Wrap(o.ID(), malformed("amountOut is not a base-unit integer: %q", q.AmountOut))
	}
	if out.Sign() == 0 {
		return nil, nil
	}

	stepType := "swap"
	if req.IsCrossChain() {
		stepType = "bridge"
	}
	route := finalize(types.Route{
		Provider:          o.ID(),
		FromChain:         req.FromChain,
		ToChain:           req.ToChain,
		FromToken:         req.FromToken,
		ToToken:           req.ToToken,
		AmountIn:          req.AmountIn,
		AmountOut:         out.String(),
		AmountOutMin:      baseUnits(q.MinAmountOut),
		ExecutionDuration: int(q.TimeEstimate),
		ToolsUsed:         []string{"near-intents"},
		Steps: []types.RouteStep{{
			Type:      stepType,
			Tool:      "near-intents",
			FromChain: req.FromChain,
			ToChain:   req.ToChain,
			FromToken: req.FromToken,
			ToToken:   req.ToToken,
			AmountIn:  req.AmountIn,
			AmountOut: out.String(),
		}},
	})
	o.memo.remember([]types.Route{route})
	return []types.Route{route}, nil
}

// GetTx implements Adapter. A live quote allocates the deposit address the payload transfers to.
func (o *OneClickAdapter) GetTx(ctx context.Context, routeID string, req types.ExecutionRequest) (*types.ExecutionPayload, error) {
	qr := req.QuoteRequest()
	params, ok, err := o.params(ctx, qr, false)
	if err != nil {
		return nil, Wrap(o.ID(), err)
	}
	if !ok {
		return nil, Wrap(o.ID(), ErrUnsupportedTransaction)
	}
	q, err := o.api.GetQuote(ctx, params)
	if err != nil {
		return nil, Wrap(o.ID(), err)
	}
	if err := o.memo.checkDrift(routeID, q.AmountOut, qr.SlippageBps()); err != nil {
		return nil, err
	}
	if q.DepositAddress == "" {
		return nil, Wrap(o.ID(), ErrNoTransaction)
	}

	payload := &types.ExecutionPayload{
		RouteID:  routeID,
		Provider: o.ID(),
		ChainID:  qr.FromChain,
		To:       q.DepositAddress,
		Value:    qr.AmountIn,
		Memo:     q.DepositMemo,
	}
	if !utils.GlobalChainRegistry.IsEVMCompatible(qr.FromChain) {
		return payload, nil
	}
	if !utils.IsEvmAddress(q.DepositAddress) {
		return nil, Wrap(o.ID(), malformed("deposit address %q is not an EVM address", q.DepositAddress))
	}
	payload.To = utils.ChecksumAddress(q.DepositAddress)
	payload.Data = "0x"
	if utils.IsNativeToken(qr.FromToken) {
		return payload, nil
	}

	amount, ok := utils.ParseBaseUnits(qr.AmountIn)
	if !ok {
		return nil, Wrap(o.ID(), malformed("amountIn %q", qr.AmountIn))
	}
	data := make([]byte, 0, 4+64)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(q.DepositAddress).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)

	payload.To = utils.ChecksumAddress(qr.FromToken)
	payload.Value = "0"
	payload.Data = hexutil.Encode(data)
	return payload, nil
}

// params resolves both assets. ok is false when the request lacks the addresses 1Click needs.
func (o *OneClickAdapter) params(ctx context.Context, req types.QuoteRequest, dry bool) (clients.OneClickQuoteParams, bool, error) {
	refundTo := req.FromAddress
	recipient := req.ToAddress
	if recipient == "" && utils.GlobalChainRegistry.IsEVMCompatible(req.FromChain) && utils.GlobalChainRegistry.IsEVMCompatible(req.ToChain) {
		recipient = refundTo
	}
	if refundTo == "" || recipient == "" {
		return clients.OneClickQuoteParams{}, false, nil
	}

	origin, err := o.api.FindAsset(ctx, req.FromChain, req.FromToken)
	if err != nil {
		return clients.OneClickQuoteParams{}, false, unlisted(err)
	}
	destination, err := o.api.FindAsset(ctx, req.ToChain, req.ToToken)
	if err != nil {
		return clients.OneClickQuoteParams{}, false, unlisted(err)
	}
	return clients.OneClickQuoteParams{
		Dry:              dry,
		OriginAsset:      origin,
		DestinationAsset: destination,
		Amount:           req.AmountIn,
		SlippageBps:      req.SlippageBps(),
		RefundTo:         refundTo,
		Recipient:        recipient,
		Deadline:         o.now().Add(o.deadline),
	}, true, nil
}

// unlisted drops the error of a token 1Click does not list; the request is simply out of reach.
func unlisted(err error) error {
	if errors.Is(err, clients.ErrAssetNotFound) {
		return nil
	}
	return err
}
