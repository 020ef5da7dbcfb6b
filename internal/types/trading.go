package types

import "time"

// Order actions accepted on the trade endpoint.
const (
	ActionBuy    = "buy"
	ActionSell   = "sell"
	ActionCancel = "cancel"
)

// Settlement terms accepted by the market (same-day, T+1, T+2).
const (
	TermImmediate = "t0"
	TermT1        = "t1"
	TermT2        = "t2"
)

// Order types accepted by the market.
const (
	OrderTypeLimit  = "precioLimite"
	OrderTypeMarket = "precioMercado"
)

// MaxOrderQuantity is the largest quantity a single order may carry.
const MaxOrderQuantity = 1_000_000

// OrderInput is the raw trade request body, exactly as received on the
// wire. Nothing here is trusted until it has passed through ParseOrder.
type OrderInput struct {
	Action    string  `json:"action"`
	Market    string  `json:"mercado"`
	Symbol    string  `json:"simbolo"`
	Quantity  int64   `json:"cantidad"`
	Price     float64 `json:"precio"`
	Term      string  `json:"plazo"`
	ValidDate string  `json:"validez"`
	OrderType string  `json:"tipoOrden"`
}

// OrderRequest is a validated, normalized order. It is built only by the
// validator and is never persisted as-is; the audit trail captures its
// fields instead.
type OrderRequest struct {
	Action    string  `json:"action"`
	Market    string  `json:"mercado"`
	Symbol    string  `json:"simbolo"`
	Quantity  int64   `json:"cantidad"`
	Price     float64 `json:"precio"`
	Term      string  `json:"plazo"`
	ValidDate string  `json:"validez"`
	OrderType string  `json:"tipoOrden"`
}

// BrokerCredential is the decrypted session token pair for a broker
// provider. The encrypted form lives in the credentials package.
type BrokerCredential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Equal reports whether both tokens match. Comparing the pair, not just
// the access token, so a refresh-token rotation is never missed.
func (c BrokerCredential) Equal(other BrokerCredential) bool {
	return c.AccessToken == other.AccessToken && c.RefreshToken == other.RefreshToken
}
