package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"route-aggregator/internal/utils"
)

// Risk levels the oracle reports for addresses that must not be routed through.
var blockedRiskLevels = map[string]bool{
	"high":   true,
	"severe": true,
}

// KYTOracleClient screens addresses against the KYT oracle.
type KYTOracleClient struct {
	baseURL string
	http    *JSONClient
	cache   *expirable.LRU[string, bool]
	// scores at or above this are treated as sanctioned regardless of level
	blockScore int
}

// NewKYTOracleClient creates a new KYT Oracle client
func NewKYTOracleClient(baseURL string, timeout, cacheTTL time.Duration) *KYTOracleClient {
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &KYTOracleClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       NewJSONClient(timeout),
		cache:      expirable.NewLRU[string, bool](4096, nil, cacheTTL),
		blockScore: 90,
	}
}

// RiskInfo is the risk part of the oracle's address report.
type RiskInfo struct {
	Success bool `json:"success"`
	Data    struct {
		Chain            string `json:"chain"`
		Address          string `json:"address"`
		RiskLevel        string `json:"riskLevel"`
		RiskScore        int    `json:"riskScore"`
		MistTrackDetails *struct {
			Score     int      `json:"score"`
			RiskLevel string   `json:"risk_level,omitempty"`
			Labels    []string `json:"labels,omitempty"`
		} `json:"mistTrackDetails,omitempty"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// GetRiskInfo queries the oracle's cached risk report for an address.
func (c *KYTOracleClient) GetRiskInfo(ctx context.Context, chain, address string) (*RiskInfo, error) {
	params := url.Values{}
	params.Set("chain", oracleChain(chain))
	params.Set("address", address)

	info, err := RequestJSON[RiskInfo](ctx, c.http, http.MethodGet, fmt.Sprintf("%s/api/v1/fees?%s", c.baseURL, params.Encode()), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("kyt oracle: %w", err)
	}
	if !info.Success {
		return nil, fmt.Errorf("kyt oracle returned error: %s", info.Error)
	}
	return &info, nil
}

// IsSanctioned reports whether an address is blocked. Results are cached per chain and address.
func (c *KYTOracleClient) IsSanctioned(ctx context.Context, address, chain string) (bool, error) {
	if utils.IsNativeToken(address) {
		return false, nil
	}
	address = utils.NormalizeAddressForChain(address, chain)
	key := utils.NormalizeChain(chain) + ":" + address
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	info, err := c.GetRiskInfo(ctx, chain, address)
	if err != nil {
		return false, err
	}

	level := strings.ToLower(info.Data.RiskLevel)
	score := info.Data.RiskScore
	if d := info.Data.MistTrackDetails; d != nil {
		if d.Score > score {
			score = d.Score
		}
		if level == "" {
			level = strings.ToLower(d.RiskLevel)
		}
	}
	sanctioned := blockedRiskLevels[level] || score >= c.blockScore

	c.cache.Add(key, sanctioned)
	return sanctioned, nil
}

// TestConnection tests the connection to KYT Oracle service
func (c *KYTOracleClient) TestConnection(ctx context.Context) error {
	if _, err := c.http.Do(ctx, http.MethodGet, c.baseURL+"/health", nil, nil); err != nil {
		return fmt.Errorf("failed to connect to KYT Oracle: %w", err)
	}
	return nil
}

// oracleChain converts a chain key into the lower-case chain name the oracle expects.
func oracleChain(chain string) string {
	if info, ok := utils.GlobalChainRegistry.Chain(chain); ok {
		return strings.ToLower(info.Name)
	}
	return utils.NormalizeChain(chain)
}
