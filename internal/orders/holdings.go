package orders

import (
	"context"
	"strings"

	"github.com/bolsa-labs/bolsa-api/internal/broker"
	"github.com/bolsa-labs/bolsa-api/internal/types"
)

// verifyHoldings confirms a sell does not exceed the aggregate held
// quantity of the symbol, summed case-insensitively across every
// sub-portfolio. Selling exactly the held amount is allowed. Only the
// sell path calls this; buys never trigger a holdings read.
func verifyHoldings(ctx context.Context, session broker.Session, symbol string, quantity int64) error {
	portfolios, err := session.Portfolios(ctx)
	if err != nil {
		return &types.DispatchError{Err: err}
	}

	var held int64
	for _, venue := range [][]broker.Holding{portfolios.Domestic, portfolios.Foreign} {
		for _, holding := range venue {
			if strings.EqualFold(holding.Symbol, symbol) {
				held += holding.Quantity
			}
		}
	}

	if quantity > held {
		return &types.InsufficientHoldingsError{Symbol: symbol, Held: held}
	}
	return nil
}
