package broker

import (
	"context"
	"time"

	"github.com/bolsa-labs/bolsa-api/internal/types"
)

// DispatchResult is the discriminated outcome of a single gateway
// operation. OK=false carries the broker's own rejection message; a
// transport failure is returned as an error instead, never as a result.
type DispatchResult struct {
	OK              bool
	OperationNumber int64
	Code            string
	Message         string
}

// Holding is one instrument line inside a sub-portfolio.
type Holding struct {
	Symbol    string
	Quantity  int64
	LastPrice float64
}

// Portfolios groups the subject's holdings by venue. Both lists
// contribute to the aggregate held quantity of a symbol.
type Portfolios struct {
	Domestic []Holding
	Foreign  []Holding
}

// Operation is one row of the broker's order-status listing.
type Operation struct {
	Number      int64
	Symbol      string
	Side        string
	Quantity    int64
	Status      string
	SubmittedAt time.Time
}

// Quote is a last-trade price snapshot for an instrument.
type Quote struct {
	Market    string
	Symbol    string
	LastPrice float64
	AsOf      time.Time
}

// Session is an authenticated conversation with the broker on behalf of
// one subject. Implementations may refresh the session token behind the
// scenes; CurrentCredential exposes whatever the session ended up with
// so the caller can persist a rotation.
type Session interface {
	PlaceBuyOrder(ctx context.Context, spec types.OrderRequest) (*DispatchResult, error)
	PlaceSellOrder(ctx context.Context, spec types.OrderRequest) (*DispatchResult, error)
	CancelOrder(ctx context.Context, operationNumber int64) (*DispatchResult, error)
	Portfolios(ctx context.Context) (*Portfolios, error)
	Operations(ctx context.Context, since time.Time) ([]Operation, error)
	Quote(ctx context.Context, market, symbol string) (*Quote, error)
	CurrentCredential() types.BrokerCredential
}

// Gateway opens broker sessions from stored credentials.
type Gateway interface {
	NewSession(cred types.BrokerCredential) Session
}
