// Command benchmark fires concurrent claim traffic at a running API server
// and reports latency and outcome statistics. It mints one bearer token per
// simulated user through the admin surface, optionally restocks the target
// pack first, then has every user claim once.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultUsers   = 100
)

type Config struct {
	BaseURL     string
	AdminSecret string
	PackID      string
	Users       int           // Number of simulated users, one claim each
	Concurrency int           // Number of concurrent workers
	Restock     int           // Stock to add before the run (0 = skip)
	Timeout     time.Duration // Per-request timeout
	OutputFile  string        // Output markdown file path (optional)
	Debug       bool
}

// ClaimResult is one user's claim outcome
type ClaimResult struct {
	UserID   string
	Status   int
	Code     string
	Duration time.Duration
	Err      error
}

// RunStats aggregates a whole run
type RunStats struct {
	Total     int
	Succeeded int
	SoldOut   int
	Limited   int
	Failed    int
	Durations []time.Duration
	WallTime  time.Duration
}

func main() {
	cfg := parseFlags()

	if cfg.PackID == "" {
		fmt.Println("Error: pack-id is required")
		flag.Usage()
		os.Exit(1)
	}
	if cfg.AdminSecret == "" {
		fmt.Println("Error: admin-secret is required (tokens are minted through /admin/create-token)")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	client := &http.Client{Timeout: cfg.Timeout}
	bench := &benchmark{cfg: cfg, client: client}

	fmt.Printf("Target: %s, pack %s, %d users, concurrency %d\n",
		cfg.BaseURL, cfg.PackID, cfg.Users, cfg.Concurrency)

	if cfg.Restock > 0 {
		fmt.Printf("Restocking %d units...\n", cfg.Restock)
		if err := bench.restock(ctx); err != nil {
			fmt.Printf("Error restocking pack: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Minting %d tokens...\n", cfg.Users)
	tokens, err := bench.mintTokens(ctx)
	if err != nil {
		fmt.Printf("Error minting tokens: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Running claims...")
	stats := bench.run(ctx, tokens)

	report := renderReport(cfg, stats)
	fmt.Println(report)

	if cfg.OutputFile != "" {
		if err := os.WriteFile(cfg.OutputFile, []byte(report), 0644); err != nil {
			fmt.Printf("Error writing report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Report written to %s\n", cfg.OutputFile)
	}
}

func parseFlags() Config {
	var cfg Config
	var timeoutSec int

	flag.StringVar(&cfg.BaseURL, "base-url", defaultBaseURL, "API server base URL")
	flag.StringVar(&cfg.AdminSecret, "admin-secret", os.Getenv("PACKDROP_AUTH_ADMIN_SECRET"), "Admin secret for token minting")
	flag.StringVar(&cfg.PackID, "pack-id", "", "Pack to claim from")
	flag.IntVar(&cfg.Users, "users", defaultUsers, "Number of simulated users")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "Number of concurrent workers")
	flag.IntVar(&cfg.Restock, "restock", 0, "Stock to add to the pack before the run (0 = skip)")
	flag.IntVar(&timeoutSec, "timeout", 10, "Per-request timeout in seconds")
	flag.StringVar(&cfg.OutputFile, "output", "", "Write the report to a markdown file")
	flag.BoolVar(&cfg.Debug, "debug", false, "Log each claim outcome")
	flag.Parse()

	cfg.Timeout = time.Duration(timeoutSec) * time.Second
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg
}

type benchmark struct {
	cfg    Config
	client *http.Client
}

func (b *benchmark) restock(ctx context.Context) error {
	// Restock requires a bearer token; mint a throwaway operator identity
	token, err := b.mintToken(ctx, "benchmark-operator")
	if err != nil {
		return err
	}

	body := map[string]interface{}{"packId": b.cfg.PackID, "stock": b.cfg.Restock}
	status, raw, err := b.post(ctx, "/pack/restock", token, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("restock returned %d: %s", status, raw)
	}
	return nil
}

func (b *benchmark) mintTokens(ctx context.Context) (map[string]string, error) {
	// Users are scoped to this run: a user who claimed in an earlier run
	// would be rejected by the per-shard claim record.
	runID := uuid.NewString()[:8]

	tokens := make(map[string]string, b.cfg.Users)
	for i := 0; i < b.cfg.Users; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		userID := fmt.Sprintf("bench-%s-%d", runID, i)
		token, err := b.mintToken(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("mint token for %s: %w", userID, err)
		}
		tokens[userID] = token
	}
	return tokens, nil
}

func (b *benchmark) mintToken(ctx context.Context, userID string) (string, error) {
	raw, err := json.Marshal(map[string]interface{}{"userId": userID, "expiresInDays": 1})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/admin/create-token", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", b.cfg.AdminSecret)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create-token returned %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	return parsed.Token, nil
}

func (b *benchmark) post(ctx context.Context, path, token string, body interface{}) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func (b *benchmark) claim(ctx context.Context, userID, token string) ClaimResult {
	start := time.Now()
	status, raw, err := b.post(ctx, "/pack/claim", token, map[string]string{"packId": b.cfg.PackID})
	result := ClaimResult{
		UserID:   userID,
		Status:   status,
		Duration: time.Since(start),
		Err:      err,
	}

	if err == nil && status != http.StatusOK {
		var parsed struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(raw, &parsed) == nil {
			result.Code = parsed.Code
		}
	}
	return result
}

// run drives all claims through a bounded worker set and aggregates the
// outcomes
func (b *benchmark) run(ctx context.Context, tokens map[string]string) RunStats {
	jobs := make(chan string)
	results := make(chan ClaimResult)

	var wg sync.WaitGroup
	for w := 0; w < b.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range jobs {
				if ctx.Err() != nil {
					return
				}
				results <- b.claim(ctx, userID, tokens[userID])
			}
		}()
	}

	go func() {
		defer close(jobs)
		for userID := range tokens {
			select {
			case jobs <- userID:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	start := time.Now()
	stats := RunStats{}
	for result := range results {
		stats.Total++
		stats.Durations = append(stats.Durations, result.Duration)

		switch {
		case result.Err != nil:
			stats.Failed++
		case result.Status == http.StatusOK:
			stats.Succeeded++
		case result.Code == "sold_out":
			stats.SoldOut++
		case result.Status == http.StatusTooManyRequests:
			stats.Limited++
		default:
			stats.Failed++
		}

		if b.cfg.Debug {
			fmt.Printf("  %s: status=%d code=%s in %s err=%v\n",
				result.UserID, result.Status, result.Code, formatDuration(result.Duration), result.Err)
		}
	}
	stats.WallTime = time.Since(start)
	return stats
}

// percentile returns the p-th percentile of sorted durations
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func renderReport(cfg Config, stats RunStats) string {
	sorted := make([]time.Duration, len(stats.Durations))
	copy(sorted, stats.Durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sb strings.Builder
	sb.WriteString("\n# Claim Benchmark\n\n")
	sb.WriteString(fmt.Sprintf("- Target: %s\n", cfg.BaseURL))
	sb.WriteString(fmt.Sprintf("- Pack: %s\n", cfg.PackID))
	sb.WriteString(fmt.Sprintf("- Users: %d, concurrency: %d\n", cfg.Users, cfg.Concurrency))
	sb.WriteString(fmt.Sprintf("- Wall time: %s (%s)\n\n", formatDuration(stats.WallTime), formatRate(stats.Total, stats.WallTime)))

	sb.WriteString("| Outcome | Count | Share |\n")
	sb.WriteString("|---------|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Claimed | %d | %s |\n", stats.Succeeded, percentageString(stats.Succeeded, stats.Total)))
	sb.WriteString(fmt.Sprintf("| Sold out | %d | %s |\n", stats.SoldOut, percentageString(stats.SoldOut, stats.Total)))
	sb.WriteString(fmt.Sprintf("| Rate limited | %d | %s |\n", stats.Limited, percentageString(stats.Limited, stats.Total)))
	sb.WriteString(fmt.Sprintf("| Failed | %d | %s |\n\n", stats.Failed, percentageString(stats.Failed, stats.Total)))

	if len(sorted) > 0 {
		sb.WriteString("| Latency | Value |\n")
		sb.WriteString("|---------|-------|\n")
		sb.WriteString(fmt.Sprintf("| p50 | %s |\n", formatDuration(percentile(sorted, 0.50))))
		sb.WriteString(fmt.Sprintf("| p90 | %s |\n", formatDuration(percentile(sorted, 0.90))))
		sb.WriteString(fmt.Sprintf("| p99 | %s |\n", formatDuration(percentile(sorted, 0.99))))
		sb.WriteString(fmt.Sprintf("| max | %s |\n", formatDuration(sorted[len(sorted)-1])))
	}

	return sb.String()
}
