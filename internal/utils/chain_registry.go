package utils

import (
	"sort"
	"strings"
	"sync"
)

// ChainInfo describes a chain the aggregator can quote on.
// Key is the canonical chain key: the decimal chain id for EVM chains, a lowercase name otherwise.
type ChainInfo struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    int32    `json:"decimals"`
	IsEVM       bool     `json:"is_evm"`
	Aliases     []string `json:"aliases,omitempty"`
	ExplorerURL string   `json:"explorer_url,omitempty"`
}

// TokenInfo is a known token on one chain.
type TokenInfo struct {
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// ChainRegistry resolves chain aliases and token decimals.
type ChainRegistry struct {
	mu      sync.RWMutex
	byKey   map[string]*ChainInfo
	aliases map[string]string
	tokens  map[string]*TokenInfo
}

// GlobalChainRegistry is the default registry populated with the supported chains and tokens.
var GlobalChainRegistry = NewChainRegistry()

// NewChainRegistry builds a registry with the built-in chains and tokens.
func NewChainRegistry() *ChainRegistry {
	r := &ChainRegistry{
		byKey:   make(map[string]*ChainInfo),
		aliases: make(map[string]string),
		tokens:  make(map[string]*TokenInfo),
	}
	for _, chain := range builtinChains {
		r.RegisterChain(chain)
	}
	for _, token := range builtinTokens {
		r.RegisterToken(token)
	}
	return r
}

var builtinChains = []ChainInfo{
	{Key: "1", Name: "Ethereum", Symbol: "ETH", Decimals: 18, IsEVM: true, Aliases: []string{"ethereum", "eth", "mainnet"}, ExplorerURL: "https://etherscan.io"},
	{Key: "56", Name: "BSC", Symbol: "BNB", Decimals: 18, IsEVM: true, Aliases: []string{"bsc", "bnb"}, ExplorerURL: "https://bscscan.com"},
	{Key: "137", Name: "Polygon", Symbol: "POL", Decimals: 18, IsEVM: true, Aliases: []string{"polygon", "matic", "pol"}, ExplorerURL: "https://polygonscan.com"},
	{Key: "42161", Name: "Arbitrum", Symbol: "ETH", Decimals: 18, IsEVM: true, Aliases: []string{"arbitrum", "arb"}, ExplorerURL: "https://arbiscan.io"},
	{Key: "10", Name: "Optimism", Symbol: "ETH", Decimals: 18, IsEVM: true, Aliases: []string{"optimism", "op"}, ExplorerURL: "https://optimistic.etherscan.io"},
	{Key: "8453", Name: "Base", Symbol: "ETH", Decimals: 18, IsEVM: true, Aliases: []string{"base"}, ExplorerURL: "https://basescan.org"},
	{Key: "43114", Name: "Avalanche", Symbol: "AVAX", Decimals: 18, IsEVM: true, Aliases: []string{"avalanche", "avax"}, ExplorerURL: "https://snowtrace.io"},
	{Key: "324", Name: "zkSync Era", Symbol: "ETH", Decimals: 18, IsEVM: true, Aliases: []string{"zksync"}, ExplorerURL: "https://explorer.zksync.io"},
	{Key: "solana", Name: "Solana", Symbol: "SOL", Decimals: 9, Aliases: []string{"sol"}, ExplorerURL: "https://solscan.io"},
	{Key: "near", Name: "NEAR", Symbol: "NEAR", Decimals: 24, ExplorerURL: "https://nearblocks.io"},
	{Key: "osmosis-1", Name: "Osmosis", Symbol: "OSMO", Decimals: 6, Aliases: []string{"osmosis"}, ExplorerURL: "https://www.mintscan.io/osmosis"},
	{Key: "cosmoshub-4", Name: "Cosmos Hub", Symbol: "ATOM", Decimals: 6, Aliases: []string{"cosmoshub", "cosmos"}, ExplorerURL: "https://www.mintscan.io/cosmos"},
}

var builtinTokens = []TokenInfo{
	{Chain: "1", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Decimals: 6},
	{Chain: "1", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Symbol: "USDT", Decimals: 6},
	{Chain: "1", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Symbol: "WETH", Decimals: 18},
	{Chain: "1", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Symbol: "DAI", Decimals: 18},
	{Chain: "1", Address: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Symbol: "WBTC", Decimals: 8},
	{Chain: "56", Address: "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", Symbol: "USDC", Decimals: 18},
	{Chain: "56", Address: "0x55d398326f99059ff775485246999027b3197955", Symbol: "USDT", Decimals: 18},
	{Chain: "137", Address: "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359", Symbol: "USDC", Decimals: 6},
	{Chain: "137", Address: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", Symbol: "USDT", Decimals: 6},
	{Chain: "42161", Address: "0xaf88d065e77c8cc2239327c5edb3a432268e5831", Symbol: "USDC", Decimals: 6},
	{Chain: "42161", Address: "0x82af49447d8a07e3bd95bd0d56f35241523fbab1", Symbol: "WETH", Decimals: 18},
	{Chain: "10", Address: "0x0b2c639c533813f4aa9d7837caf62653d097ff85", Symbol: "USDC", Decimals: 6},
	{Chain: "8453", Address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Symbol: "USDC", Decimals: 6},
	{Chain: "43114", Address: "0xb97ef9ef8734c71904d8002f8b6bc66dd9c48a6e", Symbol: "USDC", Decimals: 6},
	{Chain: "solana", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Decimals: 6},
	{Chain: "osmosis-1", Address: "uosmo", Symbol: "OSMO", Decimals: 6},
	{Chain: "cosmoshub-4", Address: "uatom", Symbol: "ATOM", Decimals: 6},
}

// RegisterChain adds or replaces a chain and its aliases.
func (r *ChainRegistry) RegisterChain(info ChainInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(info.Key))
	info.Key = key
	r.byKey[key] = &info
	r.aliases[key] = key
	r.aliases[strings.ToLower(info.Name)] = key
	for _, alias := range info.Aliases {
		r.aliases[strings.ToLower(alias)] = key
	}
}

// RegisterToken adds or replaces a token entry.
func (r *ChainRegistry) RegisterToken(info TokenInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info.Chain = r.canonicalLocked(info.Chain)
	r.tokens[tokenKey(info.Chain, info.Address)] = &info
}

// Canonical resolves a chain key or alias to the canonical key.
// Unknown chains come back trimmed and lower-cased.
func (r *ChainRegistry) Canonical(chain string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalLocked(chain)
}

func (r *ChainRegistry) canonicalLocked(chain string) string {
	key := strings.ToLower(strings.TrimSpace(chain))
	if canonical, ok := r.aliases[key]; ok {
		return canonical
	}
	return key
}

// Chain looks up a chain by key or alias.
func (r *ChainRegistry) Chain(chain string) (*ChainInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byKey[r.canonicalLocked(chain)]
	return info, ok
}

// IsEVMCompatible reports whether the chain is a known EVM chain.
func (r *ChainRegistry) IsEVMCompatible(chain string) bool {
	info, ok := r.Chain(chain)
	return ok && info.IsEVM
}

// Token looks up a token on a chain. Native token placeholders resolve to the chain's gas token.
func (r *ChainRegistry) Token(chain, address string) (*TokenInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := r.canonicalLocked(chain)
	if IsNativeToken(address) {
		info, ok := r.byKey[key]
		if !ok {
			return nil, false
		}
		return &TokenInfo{Chain: key, Address: NormalizeToken(address), Symbol: info.Symbol, Decimals: info.Decimals}, true
	}
	token, ok := r.tokens[tokenKey(key, address)]
	return token, ok
}

// DecimalsOf returns the token's decimals when known.
func (r *ChainRegistry) DecimalsOf(chain, address string) (int32, bool) {
	token, ok := r.Token(chain, address)
	if !ok {
		return 0, false
	}
	return token.Decimals, true
}

// GetAllChains returns every registered chain ordered by key.
func (r *ChainRegistry) GetAllChains() []*ChainInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chains := make([]*ChainInfo, 0, len(r.byKey))
	for _, chain := range r.byKey {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].Key < chains[j].Key })
	return chains
}

func tokenKey(chain, address string) string {
	return chain + "|" + NormalizeToken(address)
}

// NormalizeChain resolves a chain key through the global registry.
func NormalizeChain(chain string) string {
	return GlobalChainRegistry.Canonical(chain)
}
