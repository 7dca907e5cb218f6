package sources

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/blake2b"

	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

// RouteID derives the stable identifier of a route from its economic terms.
func RouteID(r types.Route) string {
	parts := []string{
		r.Provider,
		string(r.Kind),
		utils.NormalizeChain(r.FromChain),
		utils.NormalizeChain(r.ToChain),
		utils.NormalizeToken(r.FromToken),
		utils.NormalizeToken(r.ToToken),
		r.AmountIn,
		r.EffectiveAmountOut(),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return hexutil.Encode(sum[:16])
}

// finalize normalizes a route built by an adapter and assigns its id.
func finalize(r types.Route) types.Route {
	r.FromChain = utils.NormalizeChain(r.FromChain)
	r.ToChain = utils.NormalizeChain(r.ToChain)
	r.FromToken = utils.NormalizeToken(r.FromToken)
	r.ToToken = utils.NormalizeToken(r.ToToken)
	if r.Kind == "" {
		r.Kind = types.KindFor(r.FromChain, r.ToChain)
	}
	if r.Steps == nil {
		r.Steps = []types.RouteStep{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	r.ToolsUsed = dedupe(r.ToolsUsed)
	r.RouteID = RouteID(r)
	return r
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}

// quantity renders a hex or decimal numeric string as decimal. Other input is returned as is.
func quantity(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		if v == "0x" || v == "0X" {
			return "0"
		}
		if n, ok := new(big.Int).SetString(v[2:], 16); ok {
			return n.String()
		}
	}
	return v
}

// quoteMemo remembers the routes an adapter produced so GetTx can check the re-quote against them.
type quoteMemo struct {
	routes *expirable.LRU[string, types.Route]
}

func newQuoteMemo(ttl time.Duration) *quoteMemo {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &quoteMemo{routes: expirable.NewLRU[string, types.Route](10000, nil, ttl)}
}

func (m *quoteMemo) remember(routes []types.Route) {
	for _, r := range routes {
		m.routes.Add(r.RouteID, r)
	}
}

// checkDrift fails when a fresh quote pays out less than the quoted route minus the slippage tolerance.
// Routes this process did not quote are not checked.
func (m *quoteMemo) checkDrift(routeID, freshAmountOut string, slippageBps int) error {
	quoted, ok := m.routes.Get(routeID)
	if !ok {
		return nil
	}
	want, ok := utils.ParseBaseUnits(quoted.EffectiveAmountOut())
	if !ok {
		return nil
	}
	got, ok := utils.ParseBaseUnits(freshAmountOut)
	if !ok {
		return ErrQuoteDrift
	}
	if slippageBps < 0 {
		slippageBps = 0
	}
	floor := new(big.Int).Mul(want, big.NewInt(int64(10000-min(slippageBps, 10000))))
	floor.Quo(floor, big.NewInt(10000))
	if got.Cmp(floor) < 0 {
		return ErrQuoteDrift
	}
	return nil
}
