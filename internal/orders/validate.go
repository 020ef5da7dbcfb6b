package orders

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bolsa-labs/bolsa-api/internal/types"
)

var validDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var validTerms = map[string]bool{
	types.TermImmediate: true,
	types.TermT1:        true,
	types.TermT2:        true,
}

var validOrderTypes = map[string]bool{
	types.OrderTypeLimit:  true,
	types.OrderTypeMarket: true,
}

// ParseOrder validates and normalizes a raw trade request. Fields are
// checked in wire order and the first offending field wins; nothing is
// normalized unless the whole request is valid.
func ParseOrder(input types.OrderInput) (*types.OrderRequest, *types.FieldError) {
	if input.Action != types.ActionBuy && input.Action != types.ActionSell {
		return nil, &types.FieldError{Field: "action", Message: "must be either buy or sell"}
	}

	symbol := strings.TrimSpace(input.Symbol)
	if symbol == "" {
		return nil, &types.FieldError{Field: "simbolo", Message: "is required"}
	}
	if utf8.RuneCountInString(symbol) > 20 {
		return nil, &types.FieldError{Field: "simbolo", Message: "must be at most 20 characters"}
	}

	if input.Quantity <= 0 {
		return nil, &types.FieldError{Field: "cantidad", Message: "must be a positive integer"}
	}
	if input.Quantity > types.MaxOrderQuantity {
		return nil, &types.FieldError{
			Field:   "cantidad",
			Message: fmt.Sprintf("must not exceed %d", types.MaxOrderQuantity),
		}
	}

	if math.IsNaN(input.Price) || math.IsInf(input.Price, 0) || input.Price <= 0 {
		return nil, &types.FieldError{Field: "precio", Message: "must be a positive number"}
	}

	if !validTerms[input.Term] {
		return nil, &types.FieldError{Field: "plazo", Message: "must be one of t0, t1, t2"}
	}

	if !validDatePattern.MatchString(input.ValidDate) {
		return nil, &types.FieldError{Field: "validez", Message: "must be a date in YYYY-MM-DD format"}
	}
	if _, err := time.Parse("2006-01-02", input.ValidDate); err != nil {
		return nil, &types.FieldError{Field: "validez", Message: "must be a valid calendar date"}
	}

	if !validOrderTypes[input.OrderType] {
		return nil, &types.FieldError{
			Field:   "tipoOrden",
			Message: fmt.Sprintf("must be either %s or %s", types.OrderTypeLimit, types.OrderTypeMarket),
		}
	}

	market := strings.TrimSpace(input.Market)
	if market == "" {
		market = "bCBA"
	}

	return &types.OrderRequest{
		Action:    input.Action,
		Market:    market,
		Symbol:    strings.ToUpper(symbol),
		Quantity:  input.Quantity,
		Price:     input.Price,
		Term:      input.Term,
		ValidDate: input.ValidDate,
		OrderType: input.OrderType,
	}, nil
}
