// Backtest tool for checking fuzzyprice estimates against known plot sales.
//
// Usage:
//   go run cmd/backtest/main.go -csv /path/to/sales.csv -url http://localhost:8080
//
// This tool:
//   1. Reads plot sales (area, dist_ave, dist_bch, price)
//   2. Sends each plot to fuzzyprice for estimation, with the sale price as reference
//   3. Compares the estimate with the sale price
//   4. Reports absolute and percentage errors and their distribution
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Sale is one row of the sales dataset.
type Sale struct {
	Line    int
	Area    float64
	DistAve float64
	DistBch float64
	Price   float64
}

// EstimateRequest is the fuzzyprice API request format
type EstimateRequest struct {
	Inputs         map[string]float64 `json:"inputs"`
	ReferencePrice float64            `json:"referencePrice,omitempty"`
}

// EstimateResponse is the subset of the fuzzyprice estimate the backtest reads
type EstimateResponse struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
	Error    string  `json:"error"`
}

type result struct {
	sale     Sale
	estimate *EstimateResponse
}

// tally accumulates outcomes across workers.
type tally struct {
	processed   atomic.Int64
	failed      atomic.Int64
	noInference atomic.Int64
	rejected    atomic.Int64

	mu        sync.Mutex
	estimated []result
	latencyMs []float64
}

func (t *tally) record(r result, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latencyMs = append(t.latencyMs, float64(latency.Microseconds())/1000)
	if r.estimate != nil && r.estimate.Status == "ESTIMATED" {
		t.estimated = append(t.estimated, r)
	}
}

func main() {
	csvPath := flag.String("csv", "", "Path to sales CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "fuzzyprice base URL")
	tenantID := flag.String("tenant", "backtest", "Tenant ID for requests")
	limit := flag.Int("limit", 0, "Maximum rows to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each estimate")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: backtest -csv /path/to/sales.csv [-url http://localhost:8080]")
		fmt.Println("\nThe CSV needs a header with columns area, dist_ave, dist_bch and price.")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|            FUZZYPRICE BACKTEST - Plot Sale Prices             |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nCSV File:        %s\n", *csvPath)
	fmt.Printf("fuzzyprice URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:       %s\n", *tenantID)
	fmt.Printf("Workers:         %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: fuzzyprice not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure fuzzyprice is running:")
		fmt.Println("  go run ./cmd/fuzzyprice")
		os.Exit(1)
	}
	fmt.Println("OK fuzzyprice is healthy")

	fmt.Printf("\nReading sales from %s...\n", *csvPath)
	sales, err := readSalesCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK loaded %d sales\n", len(sales))
	if len(sales) == 0 {
		os.Exit(0)
	}

	fmt.Printf("\nRunning backtest with %d workers...\n", *workers)
	began := time.Now()
	t := runBacktest(sales, *baseURL, *tenantID, *workers, *verbose)
	printResults(t, time.Since(began))
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

func readSalesCSV(path string, limit int) ([]Sale, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"area", "dist_ave", "dist_bch", "price"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var sales []Sale
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		var values [4]float64
		ok := true
		for i, col := range []string{"area", "dist_ave", "dist_bch", "price"} {
			v, err := strconv.ParseFloat(record[colIndex[col]], 64)
			if err != nil {
				ok = false
				break
			}
			values[i] = v
		}
		if !ok || values[3] <= 0 {
			continue
		}

		sales = append(sales, Sale{Line: line, Area: values[0], DistAve: values[1], DistBch: values[2], Price: values[3]})

		if limit > 0 && len(sales) >= limit {
			break
		}
	}

	return sales, nil
}

func runBacktest(sales []Sale, baseURL, tenantID string, numWorkers int, verbose bool) *tally {
	t := &tally{}
	work := make(chan Sale)

	var wg sync.WaitGroup
	for range max(numWorkers, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			for sale := range work {
				t.observe(client, baseURL, tenantID, sale, verbose)
			}
		}()
	}

	for _, sale := range sales {
		work <- sale
	}
	close(work)
	wg.Wait()
	return t
}

func (t *tally) observe(client *http.Client, baseURL, tenantID string, sale Sale, verbose bool) {
	began := time.Now()
	est, err := estimate(client, baseURL, tenantID, sale)
	t.processed.Add(1)
	t.record(result{sale: sale, estimate: est}, time.Since(began))

	if err != nil {
		t.failed.Add(1)
		if verbose {
			fmt.Printf("line %-5d | error %v\n", sale.Line, err)
		}
		return
	}
	switch est.Status {
	case "ESTIMATED":
	case "NO_INFERENCE":
		t.noInference.Add(1)
	default:
		t.rejected.Add(1)
	}
	if verbose {
		fmt.Printf("line %-5d | area %6.0f | ave %5.2f | bch %5.2f | sale %12.2f | %-12s %12.2f %s\n",
			sale.Line, sale.Area, sale.DistAve, sale.DistBch, sale.Price,
			est.Status, est.Price, est.Category)
	}
}

func estimate(client *http.Client, baseURL, tenantID string, sale Sale) (*EstimateResponse, error) {
	req := EstimateRequest{
		Inputs: map[string]float64{
			"area":     sale.Area,
			"dist_ave": sale.DistAve,
			"dist_bch": sale.DistBch,
		},
		ReferencePrice: sale.Price,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/estimate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 422 carries a well-formed estimate with a failure status.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EstimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Summary holds the error statistics of the estimated rows.
type Summary struct {
	Count     int
	MAE       float64 // mean absolute error
	MAPE      float64 // mean absolute percentage error
	MedianAPE float64
	P90APE    float64
	Bias      float64 // mean of (estimate - sale) / sale, in percent
	Within10  int
	Within25  int
}

func summarize(results []result) Summary {
	s := Summary{Count: len(results)}
	if len(results) == 0 {
		return s
	}

	abs := make([]float64, len(results))
	ape := make([]float64, len(results))
	signed := make([]float64, len(results))
	for i, r := range results {
		diff := r.estimate.Price - r.sale.Price
		abs[i] = math.Abs(diff)
		signed[i] = diff / r.sale.Price * 100
		ape[i] = math.Abs(signed[i])
		if ape[i] <= 10 {
			s.Within10++
		}
		if ape[i] <= 25 {
			s.Within25++
		}
	}

	s.MAE = stat.Mean(abs, nil)
	s.MAPE = stat.Mean(ape, nil)
	s.Bias = stat.Mean(signed, nil)

	sort.Float64s(ape)
	s.MedianAPE = stat.Quantile(0.5, stat.Empirical, ape, nil)
	s.P90APE = stat.Quantile(0.9, stat.Empirical, ape, nil)
	return s
}

func printResults(t *tally, elapsed time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      BACKTEST RESULTS                         |")
	fmt.Println("+---------------------------------------------------------------+")

	s := summarize(t.estimated)
	processed := t.processed.Load()

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Plots sent:       %d\n", processed)
	fmt.Printf("   Estimated:        %d\n", s.Count)
	fmt.Printf("   No inference:     %d\n", t.noInference.Load())
	fmt.Printf("   Rejected:         %d\n", t.rejected.Load())
	fmt.Printf("   Request errors:   %d\n", t.failed.Load())

	if s.Count > 0 {
		pct := func(n int) float64 { return 100 * float64(n) / float64(s.Count) }
		fmt.Printf("\nACCURACY\n")
		fmt.Printf("   MAE:              R$ %.2f\n", s.MAE)
		fmt.Printf("   MAPE:             %.2f%%\n", s.MAPE)
		fmt.Printf("   Median APE:       %.2f%%\n", s.MedianAPE)
		fmt.Printf("   P90 APE:          %.2f%%\n", s.P90APE)
		fmt.Printf("   Bias:             %+.2f%%  (positive = overestimates)\n", s.Bias)
		fmt.Printf("   Within 10%%:       %d / %d (%.2f%%)\n", s.Within10, s.Count, pct(s.Within10))
		fmt.Printf("   Within 25%%:       %d / %d (%.2f%%)\n", s.Within25, s.Count, pct(s.Within25))
	}

	fmt.Printf("\nLATENCY\n")
	fmt.Printf("   Wall clock:       %v\n", elapsed.Round(time.Millisecond))
	if lat := latencySummary(t.latencyMs); processed > 0 {
		fmt.Printf("   Mean:             %.2f ms\n", lat.mean)
		fmt.Printf("   p50 / p95:        %.2f / %.2f ms\n", lat.p50, lat.p95)
		fmt.Printf("   Throughput:       %.2f plots/sec\n", float64(processed)/elapsed.Seconds())
	}
	fmt.Println()
}

type latency struct{ mean, p50, p95 float64 }

func latencySummary(ms []float64) latency {
	if len(ms) == 0 {
		return latency{}
	}
	sorted := append([]float64(nil), ms...)
	sort.Float64s(sorted)
	return latency{
		mean: stat.Mean(sorted, nil),
		p50:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		p95:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
}
