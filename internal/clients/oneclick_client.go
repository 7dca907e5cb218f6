package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"route-aggregator/internal/utils"
)

// ErrAssetNotFound means 1Click does not list the token on the chain.
var ErrAssetNotFound = errors.New("asset not supported by 1Click")

// OneClickToken is a token supported by the 1Click intents API.
type OneClickToken struct {
	AssetID         string
	Blockchain      string
	Symbol          string
	ContractAddress string
	Decimals        int32
}

// OneClickQuoteParams describes an EXACT_INPUT swap through 1Click.
type OneClickQuoteParams struct {
	Dry              bool
	OriginAsset      string
	DestinationAsset string
	Amount           string
	SlippageBps      int
	RefundTo         string
	Recipient        string
	Deadline         time.Time
}

// OneClickQuote is the part of a 1Click quote the aggregator uses.
type OneClickQuote struct {
	AmountOut          string
	MinAmountOut       string
	AmountOutFormatted string
	DepositAddress     string
	DepositMemo        string
	TimeEstimate       float64
}

// OneClickClient wraps the 1Click SDK
type OneClickClient struct {
	client *oneclick.APIClient
	jwt    string
	tokens *expirable.LRU[string, []OneClickToken]
}

// NewOneClickClient creates a new 1Click API client. An empty baseURL keeps the SDK default server.
func NewOneClickClient(jwtToken, baseURL string, timeout time.Duration) *OneClickClient {
	cfg := oneclick.NewConfiguration()
	if baseURL != "" {
		cfg.Servers = oneclick.ServerConfigurations{{URL: strings.TrimRight(baseURL, "/")}}
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &OneClickClient{
		client: oneclick.NewAPIClient(cfg),
		jwt:    jwtToken,
		tokens: expirable.NewLRU[string, []OneClickToken](1, nil, 10*time.Minute),
	}
}

func (c *OneClickClient) authContext(ctx context.Context) context.Context {
	if c.jwt == "" {
		return ctx
	}
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.jwt)
}

// GetSupportedTokens retrieves all supported tokens. The list is cached for ten minutes.
func (c *OneClickClient) GetSupportedTokens(ctx context.Context) ([]OneClickToken, error) {
	if tokens, ok := c.tokens.Get("all"); ok {
		return tokens, nil
	}

	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.authContext(ctx)).Execute()
	if err != nil {
		return nil, sdkError("failed to get tokens", httpResp, err)
	}
	defer httpResp.Body.Close()

	tokens := make([]OneClickToken, 0, len(resp))
	for _, t := range resp {
		tokens = append(tokens, OneClickToken{
			AssetID:         t.GetAssetId(),
			Blockchain:      strings.ToLower(t.GetBlockchain()),
			Symbol:          t.GetSymbol(),
			ContractAddress: t.GetContractAddress(),
			Decimals:        int32(t.GetDecimals()),
		})
	}
	c.tokens.Add("all", tokens)
	return tokens, nil
}

// FindAsset returns the 1Click asset id of a token on a chain. Native placeholders match the
// chain's token without a contract address.
func (c *OneClickClient) FindAsset(ctx context.Context, chain, token string) (string, error) {
	blockchain, err := utils.GlobalChainIDMapping.ForSource("oneclick", chain)
	if err != nil {
		return "", err
	}
	tokens, err := c.GetSupportedTokens(ctx)
	if err != nil {
		return "", err
	}

	native := utils.IsNativeToken(token)
	want := utils.NormalizeToken(token)
	for _, t := range tokens {
		if t.Blockchain != blockchain {
			continue
		}
		if native && t.ContractAddress == "" {
			return t.AssetID, nil
		}
		if !native && t.ContractAddress != "" && utils.NormalizeToken(t.ContractAddress) == want {
			return t.AssetID, nil
		}
	}
	return "", fmt.Errorf("%w: token %s on chain %s", ErrAssetNotFound, token, chain)
}

// GetQuote requests a quote. A non-dry quote allocates a deposit address.
func (c *OneClickClient) GetQuote(ctx context.Context, p OneClickQuoteParams) (*OneClickQuote, error) {
	deadline := p.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(24 * time.Hour)
	}

	req := oneclick.NewQuoteRequest(
		p.Dry,
		"EXACT_INPUT",
		float32(p.SlippageBps),
		p.OriginAsset,
		"ORIGIN_CHAIN",
		p.DestinationAsset,
		p.Amount,
		p.RefundTo,
		"ORIGIN_CHAIN",
		p.Recipient,
		"DESTINATION_CHAIN",
		deadline,
	)

	resp, httpResp, err := c.client.OneClickAPI.GetQuote(c.authContext(ctx)).QuoteRequest(*req).Execute()
	if err != nil {
		return nil, sdkError("failed to get quote", httpResp, err)
	}
	defer httpResp.Body.Close()
	if resp == nil {
		return nil, fmt.Errorf("%w: empty quote response", ErrMalformedResponse)
	}

	q := resp.GetQuote()
	return &OneClickQuote{
		AmountOut:          q.GetAmountOut(),
		MinAmountOut:       q.GetMinAmountOut(),
		AmountOutFormatted: q.GetAmountOutFormatted(),
		DepositAddress:     q.GetDepositAddress(),
		DepositMemo:        q.GetDepositMemo(),
		TimeEstimate:       float64(q.GetTimeEstimate()),
	}, nil
}

// sdkError turns an SDK failure into an HTTPError when the API answered, keeping its message.
func sdkError(op string, httpResp *http.Response, err error) error {
	if httpResp == nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 200 && httpResp.StatusCode <= 299 {
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}

	body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
	message := string(body)
	var errorResp struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errorResp) == nil && errorResp.Message != "" {
		message = errorResp.Message
	}
	return fmt.Errorf("%s: %w", op, &HTTPError{StatusCode: httpResp.StatusCode, Body: message})
}
