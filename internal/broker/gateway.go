package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/bolsa-labs/bolsa-api/internal/types"
)

// HTTPGateway talks to the broker's REST API. All sessions opened from
// one gateway share the HTTP client and the outbound throttle, so a
// burst of concurrent requests cannot trip the broker's own limits.
type HTTPGateway struct {
	baseURL  string
	client   *http.Client
	throttle *rate.Limiter
}

// NewHTTPGateway creates a gateway for the given API base URL.
// requestsPerSecond bounds outbound calls across all sessions.
func NewHTTPGateway(baseURL string, requestsPerSecond float64) *HTTPGateway {
	return &HTTPGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
		throttle: rate.NewLimiter(rate.Limit(requestsPerSecond), 5),
	}
}

// NewSession opens a session bound to the given credential.
func (g *HTTPGateway) NewSession(cred types.BrokerCredential) Session {
	return &httpSession{gateway: g, cred: cred}
}

type httpSession struct {
	gateway *HTTPGateway

	mu   sync.Mutex
	cred types.BrokerCredential
}

// tokenResponse is the broker's token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// orderResponse is the broker's reply to an order or cancel submission.
type orderResponse struct {
	OperationNumber int64  `json:"numeroOperacion"`
	Message         string `json:"mensaje"`
}

// apiError is the broker's error payload on non-2xx responses.
type apiError struct {
	Code    string `json:"codigo"`
	Message string `json:"message"`
}

type wireHolding struct {
	Symbol    string  `json:"simbolo"`
	Quantity  int64   `json:"cantidad"`
	LastPrice float64 `json:"ultimoPrecio"`
}

type wirePortfolio struct {
	Assets []wireHolding `json:"activos"`
}

type wireOperation struct {
	Number      int64     `json:"numero"`
	Symbol      string    `json:"simbolo"`
	Side        string    `json:"tipo"`
	Quantity    int64     `json:"cantidad"`
	Status      string    `json:"estadoActual"`
	SubmittedAt time.Time `json:"fechaOrden"`
}

type wireQuote struct {
	LastPrice float64   `json:"ultimoPrecio"`
	AsOf      time.Time `json:"fechaHora"`
}

func (s *httpSession) CurrentCredential() types.BrokerCredential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}

// accessToken returns a token valid for at least another minute,
// refreshing the pair through the token endpoint when needed.
func (s *httpSession) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Until(s.cred.ExpiresAt) > time.Minute {
		return s.cred.AccessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", s.cred.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.gateway.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := s.gateway.throttle.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := s.gateway.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh: status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}

	s.cred = types.BrokerCredential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}

	log.Debug().Str("component", "broker_gateway").Msg("session token refreshed")
	return s.cred.AccessToken, nil
}

// do performs an authenticated request and decodes a 2xx body into out.
// A 4xx broker reply comes back as (*DispatchResult){OK:false}; anything
// else is a transport error for the caller to wrap.
func (s *httpSession) do(ctx context.Context, method, path string, body, out interface{}) (*DispatchResult, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.gateway.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := s.gateway.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := s.gateway.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
		}
		return &DispatchResult{OK: true}, nil
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("broker rejected request (status %d)", resp.StatusCode)
		}
		return &DispatchResult{OK: false, Code: apiErr.Code, Message: apiErr.Message}, nil
	}

	return nil, fmt.Errorf("broker returned status %d", resp.StatusCode)
}

func (s *httpSession) submitOrder(ctx context.Context, path string, spec types.OrderRequest) (*DispatchResult, error) {
	var reply orderResponse
	result, err := s.do(ctx, http.MethodPost, path, spec, &reply)
	if err != nil || !result.OK {
		return result, err
	}
	result.OperationNumber = reply.OperationNumber
	result.Message = reply.Message
	return result, nil
}

func (s *httpSession) PlaceBuyOrder(ctx context.Context, spec types.OrderRequest) (*DispatchResult, error) {
	return s.submitOrder(ctx, "/api/v2/operar/Comprar", spec)
}

func (s *httpSession) PlaceSellOrder(ctx context.Context, spec types.OrderRequest) (*DispatchResult, error) {
	return s.submitOrder(ctx, "/api/v2/operar/Vender", spec)
}

func (s *httpSession) CancelOrder(ctx context.Context, operationNumber int64) (*DispatchResult, error) {
	var reply orderResponse
	path := fmt.Sprintf("/api/v2/operaciones/%d", operationNumber)
	result, err := s.do(ctx, http.MethodDelete, path, nil, &reply)
	if err != nil || !result.OK {
		return result, err
	}
	result.OperationNumber = operationNumber
	result.Message = reply.Message
	return result, nil
}

// get performs an authenticated read. Unlike order submissions, a
// broker rejection on a read is an error for the caller: the decoded
// value would otherwise be an empty zero struct posing as real data.
func (s *httpSession) get(ctx context.Context, path string, out interface{}) error {
	result, err := s.do(ctx, http.MethodGet, path, nil, out)
	if err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("broker rejected read %s: %s", path, result.Message)
	}
	return nil
}

func (s *httpSession) Portfolios(ctx context.Context) (*Portfolios, error) {
	var domestic, foreign wirePortfolio

	if err := s.get(ctx, "/api/v2/portafolio/argentina", &domestic); err != nil {
		return nil, err
	}
	if err := s.get(ctx, "/api/v2/portafolio/estados_Unidos", &foreign); err != nil {
		return nil, err
	}

	return &Portfolios{
		Domestic: toHoldings(domestic.Assets),
		Foreign:  toHoldings(foreign.Assets),
	}, nil
}

func (s *httpSession) Operations(ctx context.Context, since time.Time) ([]Operation, error) {
	path := "/api/v2/operaciones?filtro.fechaDesde=" + url.QueryEscape(since.Format("2006-01-02"))

	var rows []wireOperation
	if err := s.get(ctx, path, &rows); err != nil {
		return nil, err
	}

	ops := make([]Operation, len(rows))
	for i, row := range rows {
		ops[i] = Operation{
			Number:      row.Number,
			Symbol:      row.Symbol,
			Side:        row.Side,
			Quantity:    row.Quantity,
			Status:      row.Status,
			SubmittedAt: row.SubmittedAt,
		}
	}
	return ops, nil
}

func (s *httpSession) Quote(ctx context.Context, market, symbol string) (*Quote, error) {
	path := fmt.Sprintf("/api/v2/%s/Titulos/%s/Cotizacion",
		url.PathEscape(market), url.PathEscape(symbol))

	var q wireQuote
	if err := s.get(ctx, path, &q); err != nil {
		return nil, err
	}

	return &Quote{Market: market, Symbol: symbol, LastPrice: q.LastPrice, AsOf: q.AsOf}, nil
}

func toHoldings(assets []wireHolding) []Holding {
	holdings := make([]Holding, len(assets))
	for i, a := range assets {
		holdings[i] = Holding{Symbol: a.Symbol, Quantity: a.Quantity, LastPrice: a.LastPrice}
	}
	return holdings
}
