package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bolsa-labs/bolsa-api/internal/types"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var (
	symbols = []string{"GGAL", "YPFD", "PAMP", "AAPL", "KO"}
	actions = []string{types.ActionBuy, types.ActionSell}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for the trade endpoint
type routeStats struct {
	mu        sync.Mutex
	durations []time.Duration
	failures  int
	rejected  int
}

func (rs *routeStats) record(d time.Duration, status int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	switch {
	case status == http.StatusTooManyRequests:
		rs.rejected++
	case status >= 400:
		rs.failures++
	}
}

// calculate computes min, max, mean, median, p95 and p99 durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// mintToken signs a local JWT the way the auth provider would. The
// secret must match the server's JWT_SECRET.
func mintToken(secret, clientID string) (string, error) {
	claims := jwt.MapClaims{
		"client_id": clientID,
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func randomOrder() types.OrderInput {
	return types.OrderInput{
		Action:    actions[rand.Intn(len(actions))],
		Market:    "bCBA",
		Symbol:    symbols[rand.Intn(len(symbols))],
		Quantity:  int64(rand.Intn(100) + 1),
		Price:     float64(rand.Intn(10000))/100 + 1,
		Term:      types.TermT2,
		ValidDate: time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
		OrderType: types.OrderTypeLimit,
	}
}

func submitOrder(client *http.Client, token string, stats *routeStats) {
	payload, err := json.Marshal(randomOrder())
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal order")
		return
	}

	req, err := http.NewRequest(http.MethodPost, serverAddress+"/api/v1/trade", bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("failed to build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("trade request failed")
		return
	}
	defer resp.Body.Close()

	stats.record(time.Since(start), resp.StatusCode)
}

func main() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	token, err := mintToken(secret, "simulation-client")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to mint token")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	stats := &routeStats{}

	totalOrders := rand.Intn(maxOrders-minOrders+1) + minOrders
	log.Info().Int("orders", totalOrders).Int("workers", numWorkers).Msg("starting trade simulation")

	jobs := make(chan struct{}, totalOrders)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				submitOrder(client, token, stats)
			}
		}()
	}
	for i := 0; i < totalOrders; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	min, max, mean, median, p95, p99 := stats.calculate()
	fmt.Printf("\nTrade endpoint (%d calls, %d failures, %d rate limited)\n",
		len(stats.durations), stats.failures, stats.rejected)
	fmt.Printf("  min=%v max=%v mean=%v median=%v p95=%v p99=%v\n",
		min, max, mean, median, p95, p99)
}
