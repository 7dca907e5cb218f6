package services

import (
	"math/big"
	"sort"

	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

type rankedRoute struct {
	route  types.Route
	out    *big.Int
	net    float64
	hasNet bool
}

// RankRoutes orders routes best first without modifying the input.
//
// Order: larger base-unit output (exact integer compare); when either output is missing or
// they tie, larger amountOut minus fees; then routeId ascending; then provider ascending.
func RankRoutes(routes []types.Route) []types.Route {
	ranked := make([]rankedRoute, len(routes))
	for i, r := range routes {
		rr := rankedRoute{route: r}
		amountOut := r.EffectiveAmountOut()
		if v, ok := utils.ParseBaseUnits(amountOut); ok {
			rr.out = v
		}
		if out, ok := utils.AmountFloat(amountOut); ok {
			fees, _ := utils.AmountFloat(r.Fees)
			rr.net = out - fees
			rr.hasNet = true
		}
		ranked[i] = rr
	}

	// canonical order first; arrival order must not affect the result
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i].route, ranked[j].route
		if a.RouteID != b.RouteID {
			return a.RouteID < b.RouteID
		}
		return a.Provider < b.Provider
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.out != nil && b.out != nil {
			if c := a.out.Cmp(b.out); c != 0 {
				return c > 0
			}
		}
		if a.hasNet != b.hasNet {
			return a.hasNet
		}
		if a.net != b.net {
			return a.net > b.net
		}
		if a.route.RouteID != b.route.RouteID {
			return a.route.RouteID < b.route.RouteID
		}
		return a.route.Provider < b.route.Provider
	})

	out := make([]types.Route, len(ranked))
	for i, rr := range ranked {
		out[i] = rr.route
	}
	return out
}
