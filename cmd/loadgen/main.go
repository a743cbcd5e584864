// Load generator for exercising Kestrel with synthetic transaction traffic.
//
// Usage:
//   go run cmd/loadgen/main.go -url http://localhost:8080 -users 50 -duration 60s
//
// This tool:
//   1. Simulates a population of users with normal spending habits
//   2. Injects fraud scenarios (card-testing bursts, impossible travel, large amounts)
//   3. Sends each transaction to Kestrel's ingestion endpoint
//   4. Polls the fraud-alerts endpoint and reports detection counts
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// city is a location template for synthetic transactions.
type city struct {
	Country string
	Name    string
	Lat     float64
	Lon     float64
}

var cities = []city{
	{"US", "New York", 40.7128, -74.0060},
	{"US", "San Francisco", 37.7749, -122.4194},
	{"GB", "London", 51.5074, -0.1278},
	{"DE", "Berlin", 52.5200, 13.4050},
	{"JP", "Tokyo", 35.6762, 139.6503},
}

// fraudDestinations are far enough from every city above that a
// back-to-back pair always exceeds plausible travel speed.
var fraudDestinations = []city{
	{"AU", "Sydney", -33.8688, 151.2093},
	{"BR", "Sao Paulo", -23.5505, -46.6333},
	{"NG", "Lagos", 6.5244, 3.3792},
}

var merchants = []string{
	"grocery_store_12", "gas_station_7", "restaurant_ocean",
	"retail_mall_3", "online_shop_88", "coffee_corner",
}

// submitRequest mirrors the ingestion API payload.
type submitRequest struct {
	UserID          string   `json:"userId"`
	Amount          string   `json:"amount"`
	Currency        string   `json:"currency"`
	MerchantID      string   `json:"merchantId"`
	Country         string   `json:"country"`
	City            string   `json:"city"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	CardNumber      string   `json:"cardNumber"`
	TransactionType string   `json:"transactionType"`
	DeviceID        string   `json:"deviceId,omitempty"`
	DeviceType      string   `json:"deviceType,omitempty"`
}

type metrics struct {
	Sent        int64
	Accepted    int64
	Rejected    int64
	Errors      int64
	FraudInject int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	users := flag.Int("users", 50, "Number of simulated users")
	workers := flag.Int("workers", 10, "Number of concurrent senders")
	duration := flag.Duration("duration", 60*time.Second, "How long to generate traffic")
	fraudRate := flag.Float64("fraud-rate", 0.05, "Fraction of sessions that inject a fraud scenario")
	rps := flag.Int("rps", 50, "Target transactions per second")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            KESTREL LOADGEN - Synthetic Fraud Traffic          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL:  %s\n", *baseURL)
	fmt.Printf("Users:        %d\n", *users)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Duration:     %v\n", *duration)
	fmt.Printf("Fraud Rate:   %.2f\n", *fraudRate)
	fmt.Printf("Target RPS:   %d\n", *rps)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	m := &metrics{}
	work := make(chan submitRequest, 200)
	var wg sync.WaitGroup

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			for req := range work {
				send(client, *baseURL, req, m)
			}
		}()
	}

	fmt.Printf("\nGenerating traffic for %v...\n", *duration)
	start := time.Now()
	generate(work, *users, *fraudRate, *rps, *duration, m)
	close(work)
	wg.Wait()
	elapsed := time.Since(start)

	// Give the async pipeline a moment to drain before reading alerts.
	time.Sleep(2 * time.Second)
	alertCount := fetchAlertCount(*baseURL)

	printResults(m, alertCount, elapsed)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generate produces user sessions until the deadline. Most sessions are
// a handful of ordinary purchases from the user's home city; a fraction
// inject one of the fraud scenarios instead.
func generate(work chan<- submitRequest, users int, fraudRate float64, rps int, duration time.Duration, m *metrics) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	deadline := time.Now().Add(duration)
	interval := time.Second / time.Duration(rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C

		userIdx := rng.Intn(users)
		userID := fmt.Sprintf("user-%04d", userIdx)
		home := cities[userIdx%len(cities)]
		card := fmt.Sprintf("4111%012d", userIdx)
		device := fmt.Sprintf("device-%04d", userIdx)

		if rng.Float64() < fraudRate {
			atomic.AddInt64(&m.FraudInject, 1)
			switch rng.Intn(3) {
			case 0:
				// Card testing: a burst of tiny amounts across merchants.
				for i := 0; i < 8; i++ {
					work <- normalTx(userID, home, card, device, fmt.Sprintf("0.%02d", rng.Intn(99)+1), merchants[i%len(merchants)])
				}
			case 1:
				// Impossible travel: home purchase then a distant one.
				work <- normalTx(userID, home, card, device, amount(rng, 20, 80), merchants[rng.Intn(len(merchants))])
				far := fraudDestinations[rng.Intn(len(fraudDestinations))]
				work <- normalTx(userID, far, card, device, amount(rng, 100, 500), merchants[rng.Intn(len(merchants))])
			default:
				// Large amount from a fresh device.
				tx := normalTx(userID, home, card, "device-new-"+fmt.Sprint(rng.Intn(10000)), amount(rng, 5000, 20000), merchants[rng.Intn(len(merchants))])
				work <- tx
			}
			continue
		}

		work <- normalTx(userID, home, card, device, amount(rng, 5, 150), merchants[rng.Intn(len(merchants))])
	}
}

func normalTx(userID string, loc city, card, device, amt, merchant string) submitRequest {
	lat, lon := loc.Lat, loc.Lon
	return submitRequest{
		UserID:          userID,
		Amount:          amt,
		Currency:        "USD",
		MerchantID:      merchant,
		Country:         loc.Country,
		City:            loc.Name,
		Latitude:        &lat,
		Longitude:       &lon,
		CardNumber:      card,
		TransactionType: "PURCHASE",
		DeviceID:        device,
		DeviceType:      "MOBILE",
	}
}

func amount(rng *rand.Rand, min, max int) string {
	return fmt.Sprintf("%d.%02d", min+rng.Intn(max-min), rng.Intn(100))
}

func send(client *http.Client, baseURL string, req submitRequest, m *metrics) {
	atomic.AddInt64(&m.Sent, 1)

	body, err := json.Marshal(req)
	if err != nil {
		atomic.AddInt64(&m.Errors, 1)
		return
	}

	resp, err := client.Post(baseURL+"/api/transactions", "application/json", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&m.Errors, 1)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		atomic.AddInt64(&m.Accepted, 1)
	case http.StatusBadRequest:
		atomic.AddInt64(&m.Rejected, 1)
	default:
		atomic.AddInt64(&m.Errors, 1)
	}
}

func fetchAlertCount(baseURL string) int {
	resp, err := http.Get(baseURL + "/api/fraud-alerts")
	if err != nil {
		return -1
	}
	defer resp.Body.Close()

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return -1
	}
	return out.Count
}

func printResults(m *metrics, alertCount int, elapsed time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       LOADGEN RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 TRAFFIC\n")
	fmt.Printf("   Sent:            %d\n", m.Sent)
	fmt.Printf("   Accepted:        %d\n", m.Accepted)
	fmt.Printf("   Rejected (400):  %d\n", m.Rejected)
	fmt.Printf("   Errors:          %d\n", m.Errors)
	fmt.Printf("   Fraud Injected:  %d scenarios\n", m.FraudInject)

	fmt.Printf("\n🔍 DETECTION\n")
	if alertCount >= 0 {
		fmt.Printf("   Recent Alerts:   %d (GET /api/fraud-alerts)\n", alertCount)
	} else {
		fmt.Println("   Recent Alerts:   unavailable")
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Duration:        %v\n", elapsed.Round(time.Millisecond))
	if elapsed.Seconds() > 0 {
		fmt.Printf("   Throughput:      %.2f tx/sec\n", float64(m.Sent)/elapsed.Seconds())
	}
	fmt.Println()
}
