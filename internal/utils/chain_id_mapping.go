package utils

import (
	"fmt"
	"strings"
)

// ChainIDMapping translates canonical chain keys into the identifiers each source expects.
type ChainIDMapping struct {
	overrides map[string]map[string]string
	// sources that address EVM chains by their decimal chain id
	numericEVM map[string]bool
}

// NewChainIDMapping creates the mapping with the known per-source overrides.
func NewChainIDMapping() *ChainIDMapping {
	return &ChainIDMapping{
		numericEVM: map[string]bool{"lifi": true, "debridge": true, "zerox": true, "oneinch": true, "skip": true},
		overrides: map[string]map[string]string{
			"lifi": {
				"solana": "1151111081099710",
			},
			"debridge": {
				"solana": "7565164",
			},
			"skip": {
				"osmosis-1":   "osmosis-1",
				"cosmoshub-4": "cosmoshub-4",
			},
			"oneclick": {
				"1":      "eth",
				"56":     "bsc",
				"137":    "pol",
				"42161":  "arb",
				"10":     "op",
				"8453":   "base",
				"43114":  "avax",
				"solana": "sol",
				"near":   "near",
			},
		},
	}
}

// GlobalChainIDMapping is the default mapping.
var GlobalChainIDMapping = NewChainIDMapping()

// ForSource returns the source-specific identifier of a chain.
// EVM chains fall back to their decimal chain id for sources that use one.
func (c *ChainIDMapping) ForSource(source, chain string) (string, error) {
	key := NormalizeChain(chain)
	source = strings.ToLower(source)
	if id, ok := c.overrides[source][key]; ok {
		return id, nil
	}
	if c.numericEVM[source] && GlobalChainRegistry.IsEVMCompatible(key) {
		return key, nil
	}
	return "", fmt.Errorf("chain %s is not supported by %s", chain, source)
}

// FromSource maps a source-specific identifier back to the canonical chain key.
func (c *ChainIDMapping) FromSource(source, id string) string {
	if ids, ok := c.overrides[strings.ToLower(source)]; ok {
		for key, v := range ids {
			if strings.EqualFold(v, id) {
				return key
			}
		}
	}
	return NormalizeChain(id)
}

// SupportedBy lists the canonical keys a source can address.
func (c *ChainIDMapping) SupportedBy(source string) []string {
	var keys []string
	for _, chain := range GlobalChainRegistry.GetAllChains() {
		if _, err := c.ForSource(source, chain.Key); err == nil {
			keys = append(keys, chain.Key)
		}
	}
	return keys
}
