package sources

import "route-aggregator/internal/utils"

// LiFiSpec drives the LI.FI quote API. One call returns the route and, with addresses, its transaction.
var LiFiSpec = AggregatorSpec{
	ID:          "lifi",
	Name:        "LI.FI",
	BaseURL:     "https://li.quest/v1",
	Public:      true,
	SameChain:   true,
	CrossChain:  true,
	NativeToken: utils.NativeTokenZero,
	AuthHeader:  "x-lifi-api-key",
	Quote: Endpoint{
		Path: "/quote",
		Params: []Param{
			{Name: "fromChain", Value: fromChainID},
			{Name: "toChain", Value: toChainID},
			{Name: "fromToken", Value: fromToken},
			{Name: "toToken", Value: toToken},
			{Name: "fromAmount", Value: amountIn},
			{Name: "fromAddress", Value: fromAddress, Optional: true},
			{Name: "toAddress", Value: toAddress, Optional: true},
			{Name: "slippage", Value: slippageFraction},
			{Name: "integrator", Value: integrator, Optional: true},
		},
	},
	Fields: ResponseFields{
		AmountOut:    "estimate.toAmount",
		AmountOutMin: "estimate.toAmountMin",
		EstimatedGas: "estimate.gasCosts.0.limit",
		Duration:     "estimate.executionDuration",
		Tools:        []string{"includedSteps.#.tool", "tool"},
		USDIn:        "estimate.fromAmountUSD",
		USDOut:       "estimate.toAmountUSD",
		Fees: []FeeField{{
			Items:     "estimate.feeCosts",
			NamePath:  "name",
			Amount:    "amount",
			AmountUSD: "amountUSD",
			Token:     "token.address",
			Included:  "included",
		}},
		Steps: &StepFields{
			Items:        "includedSteps",
			Type:         "type",
			Tool:         "tool",
			FromChain:    "action.fromChainId",
			ToChain:      "action.toChainId",
			FromToken:    "action.fromToken.address",
			ToToken:      "action.toToken.address",
			AmountIn:     "action.fromAmount",
			AmountOut:    "estimate.toAmount",
			EstimatedGas: "estimate.gasCosts.0.limit",
		},
		Tx: TxFields{
			To:       "transactionRequest.to",
			Data:     "transactionRequest.data",
			Value:    "transactionRequest.value",
			GasLimit: "transactionRequest.gasLimit",
			GasPrice: "transactionRequest.gasPrice",
			ChainID:  "transactionRequest.chainId",
		},
	},
}

var deBridgeParams = []Param{
	{Name: "srcChainId", Value: fromChainID},
	{Name: "srcChainTokenIn", Value: fromToken},
	{Name: "srcChainTokenInAmount", Value: amountIn},
	{Name: "dstChainId", Value: toChainID},
	{Name: "dstChainTokenOut", Value: toToken},
	{Name: "prependOperatingExpenses", Value: constant("true")},
}

// DeBridgeSpec drives the deBridge DLN order API. Cross-chain only; fees are already deducted from the output.
var DeBridgeSpec = AggregatorSpec{
	ID:           "debridge",
	Name:         "deBridge DLN",
	BaseURL:      "https://api.dln.trade/v1.0",
	Public:       true,
	CrossChain:   true,
	NativeToken:  utils.NativeTokenZero,
	AuthHeader:   "x-api-key",
	DefaultTools: []string{"dln"},
	Quote: Endpoint{
		Path: "/dln/order/quote",
		Params: append(append([]Param{}, deBridgeParams...),
			Param{Name: "affiliateFeeRecipient", Value: integrator, Optional: true},
		),
	},
	Tx: &Endpoint{
		Path: "/dln/order/create-tx",
		Params: append(append([]Param{}, deBridgeParams...),
			Param{Name: "dstChainTokenOutAmount", Value: constant("auto")},
			Param{Name: "dstChainTokenOutRecipient", Value: toAddress},
			Param{Name: "srcChainOrderAuthorityAddress", Value: fromAddress},
			Param{Name: "dstChainOrderAuthorityAddress", Value: recipientOrSender},
		),
	},
	Fields: ResponseFields{
		AmountOut:    "estimation.dstChainTokenOut.amount",
		AmountOutMin: "estimation.dstChainTokenOut.recommendedAmount",
		Duration:     "order.approximateFulfillmentDelay",
		USDIn:        "estimation.srcChainTokenIn.approximateUsdValue",
		USDOut:       "estimation.dstChainTokenOut.approximateUsdValue",
		Fees: []FeeField{{
			Items:        "fixFee",
			Name:         "fixFee",
			DefaultToken: utils.NativeTokenZero,
		}},
		Tx: TxFields{
			To:    "tx.to",
			Data:  "tx.data",
			Value: "tx.value",
		},
	},
}

var zeroExParams = []Param{
	{Name: "chainId", Value: fromChainID},
	{Name: "sellToken", Value: fromToken},
	{Name: "buyToken", Value: toToken},
	{Name: "sellAmount", Value: amountIn},
	{Name: "slippageBps", Value: slippageBps},
}

// ZeroExSpec drives the 0x Swap API v2 (allowance holder). Same-chain only; requires an API key.
var ZeroExSpec = AggregatorSpec{
	ID:          "zerox",
	Name:        "0x",
	BaseURL:     "https://api.0x.org",
	SameChain:   true,
	NativeToken: utils.NativeTokenEeee,
	AuthHeader:  "0x-api-key",
	Headers:     map[string]string{"0x-version": "v2"},
	Quote: Endpoint{
		Path: "/swap/allowance-holder/price",
		Params: append(append([]Param{}, zeroExParams...),
			Param{Name: "taker", Value: fromAddress, Optional: true},
		),
	},
	Tx: &Endpoint{
		Path: "/swap/allowance-holder/quote",
		Params: append(append([]Param{}, zeroExParams...),
			Param{Name: "taker", Value: fromAddress},
			Param{Name: "recipient", Value: toAddress, Optional: true},
		),
	},
	Fields: ResponseFields{
		AmountOut:    "buyAmount",
		AmountOutMin: "minBuyAmount",
		EstimatedGas: "gas",
		Tools:        []string{"route.fills.#.source"},
		Fees: []FeeField{
			{Items: "fees.zeroExFee", Name: "zeroExFee", Amount: "amount", Token: "token"},
			{Items: "fees.integratorFee", Name: "integratorFee", Amount: "amount", Token: "token"},
		},
		Tx: TxFields{
			To:       "transaction.to",
			Data:     "transaction.data",
			Value:    "transaction.value",
			GasLimit: "transaction.gas",
			GasPrice: "transaction.gasPrice",
		},
	},
}

// OneInchSpec drives the 1inch Swap API v6. Same-chain only; requires an API key.
var OneInchSpec = AggregatorSpec{
	ID:          "oneinch",
	Name:        "1inch",
	BaseURL:     "https://api.1inch.dev/swap/v6.0",
	SameChain:   true,
	NativeToken: utils.NativeTokenEeee,
	AuthHeader:  "Authorization",
	AuthScheme:  "Bearer ",
	Quote: Endpoint{
		Path: "/{fromChainId}/quote",
		Params: []Param{
			{Name: "src", Value: fromToken},
			{Name: "dst", Value: toToken},
			{Name: "amount", Value: amountIn},
			{Name: "includeGas", Value: constant("true")},
			{Name: "includeProtocols", Value: constant("true")},
		},
	},
	Tx: &Endpoint{
		Path: "/{fromChainId}/swap",
		Params: []Param{
			{Name: "src", Value: fromToken},
			{Name: "dst", Value: toToken},
			{Name: "amount", Value: amountIn},
			{Name: "from", Value: fromAddress},
			{Name: "origin", Value: fromAddress},
			{Name: "receiver", Value: toAddress, Optional: true},
			{Name: "slippage", Value: slippagePercent},
			{Name: "includeGas", Value: constant("true")},
		},
	},
	Fields: ResponseFields{
		AmountOut:    "dstAmount",
		EstimatedGas: "gas",
		Tools:        []string{"protocols.#.#.#.name"},
		Tx: TxFields{
			To:       "tx.to",
			Data:     "tx.data",
			Value:    "tx.value",
			GasLimit: "tx.gas",
			GasPrice: "tx.gasPrice",
		},
	},
}

// AggregatorSpecs lists every table-driven source.
var AggregatorSpecs = []AggregatorSpec{LiFiSpec, DeBridgeSpec, ZeroExSpec, OneInchSpec}
