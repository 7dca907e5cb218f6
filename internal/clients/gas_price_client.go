package clients

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"route-aggregator/internal/utils"
)

// GasPrice is a node's current fee suggestion, in wei.
type GasPrice struct {
	GasPrice *big.Int
	TipCap   *big.Int // nil when the chain has no EIP-1559 tip
}

// gasRPC is the part of an Ethereum JSON-RPC client the gas oracle needs.
type gasRPC interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// GasPriceClient reads gas prices from per-chain JSON-RPC endpoints.
type GasPriceClient struct {
	rpcURLs map[string]string
	dial    func(ctx context.Context, url string) (gasRPC, error)
	cache   *expirable.LRU[string, GasPrice]

	mu      sync.Mutex
	clients map[string]gasRPC
}

// NewGasPriceClient creates a new Gas price client. rpcURLs is keyed by chain key or alias.
func NewGasPriceClient(rpcURLs map[string]string, cacheTTL time.Duration) *GasPriceClient {
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Second
	}
	urls := make(map[string]string, len(rpcURLs))
	for chain, url := range rpcURLs {
		urls[utils.NormalizeChain(chain)] = url
	}
	return &GasPriceClient{
		rpcURLs: urls,
		dial: func(ctx context.Context, url string) (gasRPC, error) {
			return ethclient.DialContext(ctx, url)
		},
		cache:   expirable.NewLRU[string, GasPrice](64, nil, cacheTTL),
		clients: make(map[string]gasRPC),
	}
}

// Supports reports whether an RPC endpoint is configured for the chain.
func (c *GasPriceClient) Supports(chain string) bool {
	_, ok := c.rpcURLs[utils.NormalizeChain(chain)]
	return ok
}

func (c *GasPriceClient) client(ctx context.Context, chain string) (gasRPC, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[chain]; ok {
		return cl, nil
	}
	url, ok := c.rpcURLs[chain]
	if !ok {
		return nil, fmt.Errorf("no RPC endpoint configured for chain %s", chain)
	}
	cl, err := c.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC for chain %s: %w", chain, err)
	}
	c.clients[chain] = cl
	return cl, nil
}

// GetGasPrice gets current gas price for a chain
func (c *GasPriceClient) GetGasPrice(ctx context.Context, chain string) (*GasPrice, error) {
	key := utils.NormalizeChain(chain)
	if v, ok := c.cache.Get(key); ok {
		return &v, nil
	}

	cl, err := c.client(ctx, key)
	if err != nil {
		return nil, err
	}
	price, err := cl.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price for chain %s: %w", chain, err)
	}
	gp := GasPrice{GasPrice: price}
	// legacy chains reject eth_maxPriorityFeePerGas
	if tip, err := cl.SuggestGasTipCap(ctx); err == nil {
		gp.TipCap = tip
	}

	c.cache.Add(key, gp)
	return &gp, nil
}
