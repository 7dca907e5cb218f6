package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"route-aggregator/internal/utils"
)

// DeFiLlama chain slugs per canonical chain key.
var llamaChains = map[string]string{
	"1":      "ethereum",
	"56":     "bsc",
	"137":    "polygon",
	"42161":  "arbitrum",
	"10":     "optimism",
	"8453":   "base",
	"43114":  "avax",
	"324":    "era",
	"solana": "solana",
}

// CoinGecko ids of native gas tokens, keyed by chain.
var llamaNativeCoins = map[string]string{
	"1":      "coingecko:ethereum",
	"56":     "coingecko:binancecoin",
	"137":    "coingecko:matic-network",
	"42161":  "coingecko:ethereum",
	"10":     "coingecko:ethereum",
	"8453":   "coingecko:ethereum",
	"43114":  "coingecko:avalanche-2",
	"324":    "coingecko:ethereum",
	"solana": "coingecko:solana",
	"near":   "coingecko:near",
}

// llamaPrice is one entry of the coins API response.
type llamaPrice struct {
	Decimals   *int32          `json:"decimals"`
	Price      decimal.Decimal `json:"price"`
	Symbol     string          `json:"symbol"`
	Timestamp  int64           `json:"timestamp"`
	Confidence float64         `json:"confidence"`
}

type llamaPricesResponse struct {
	Coins map[string]llamaPrice `json:"coins"`
}

// PriceOracleClient looks up USD prices on the DeFiLlama coins API.
type PriceOracleClient struct {
	baseURL string
	http    *JSONClient
	cache   *expirable.LRU[string, decimal.Decimal]
}

// NewPriceOracleClient creates a new price oracle client
func NewPriceOracleClient(baseURL string, timeout, cacheTTL time.Duration) *PriceOracleClient {
	if baseURL == "" {
		baseURL = "https://coins.llama.fi"
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &PriceOracleClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    NewJSONClient(timeout),
		cache:   expirable.NewLRU[string, decimal.Decimal](1024, nil, cacheTTL),
	}
}

// CoinID returns the DeFiLlama coin identifier of a token.
func CoinID(token, chain string) (string, error) {
	key := utils.NormalizeChain(chain)
	if utils.IsNativeToken(token) {
		if id, ok := llamaNativeCoins[key]; ok {
			return id, nil
		}
		return "", fmt.Errorf("no price feed for native token on chain %s", chain)
	}
	slug, ok := llamaChains[key]
	if !ok {
		return "", fmt.Errorf("no price feed for chain %s", chain)
	}
	return slug + ":" + utils.NormalizeToken(token), nil
}

// PriceUSD returns the USD price of one whole token and its decimals.
func (c *PriceOracleClient) PriceUSD(ctx context.Context, token, chain string) (decimal.Decimal, int32, error) {
	coin, err := CoinID(token, chain)
	if err != nil {
		return decimal.Zero, 0, err
	}

	resp, err := RequestJSON[llamaPricesResponse](ctx, c.http, http.MethodGet, fmt.Sprintf("%s/prices/current/%s", c.baseURL, coin), nil, nil)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("price oracle: %w", err)
	}
	price, ok := resp.Coins[coin]
	if !ok || !price.Price.IsPositive() {
		return decimal.Zero, 0, fmt.Errorf("price not found for %s", coin)
	}

	if price.Decimals != nil {
		return price.Price, *price.Decimals, nil
	}
	decimals, ok := utils.GlobalChainRegistry.DecimalsOf(chain, token)
	if !ok {
		return decimal.Zero, 0, fmt.Errorf("decimals unknown for %s", coin)
	}
	return price.Price, decimals, nil
}

// PriceUSDPerSmallestUnit returns the USD value of one base unit of the token.
func (c *PriceOracleClient) PriceUSDPerSmallestUnit(ctx context.Context, token, chain string) (decimal.Decimal, error) {
	key := utils.NormalizeChain(chain) + ":" + utils.NormalizeToken(token)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	price, decimals, err := c.PriceUSD(ctx, token, chain)
	if err != nil {
		return decimal.Zero, err
	}
	perUnit := price.Shift(-decimals)
	c.cache.Add(key, perUnit)
	return perUnit, nil
}
