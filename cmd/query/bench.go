package query

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/ibgw/cmd/util"
	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/client"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd fires concurrent historical requests over one connection
	BenchCmd = &cobra.Command{
		Use:   "bench [symbol]",
		Short: "Measure request latency against a gateway",
		Long: `Fire concurrent historical requests over a single connection and report the
latency distribution. Run it against the fake-gateway command to measure the client itself.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runBench,
	}
)

// percentiles reported by the bench command
var benchPercentiles = []float64{0.5, 0.95, 0.99}

func init() {
	key := "requests"
	BenchCmd.Flags().Int(key, 1000, util.WrapString("How many requests to send in total"))
	key = "threads"
	BenchCmd.Flags().Int(key, 10, util.WrapString("How many requests are in flight at the same time"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save the benchmark result as CSV"))
}

// benchResult is the outcome of one bench run
type benchResult struct {
	timer   metrics.Timer
	errors  metrics.Counter
	elapsed time.Duration
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := util.Connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer util.PrintMetrics()
	defer c.Close()

	symbol := "AMZN"
	if len(args) == 1 {
		symbol = args[0]
	}
	requests := max(viper.GetInt("requests"), 1)
	threads := max(viper.GetInt("threads"), 1)

	fmt.Println("Latency benchmark for gateway clients")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Requests: %d\n", requests)
	fmt.Printf("Threads: %d\n", threads)
	fmt.Println()

	fmt.Println("starting benchmark...")
	result := bench(ctx, c, symbol, requests, threads)
	printBenchResult(result)

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting result to CSV: %s\n", csvPath)
		if err := writeResultToCSV(csvPath, result, requests, threads); err != nil {
			return err
		}
	}
	return nil
}

// bench sends requests historical requests with at most threads in flight
func bench(ctx context.Context, c client.IGatewayClient, symbol string, requests, threads int) benchResult {
	result := benchResult{
		timer:  metrics.NewTimer(),
		errors: metrics.NewCounter(),
	}
	req := common.NewHistoricalDataRequest(market.Stock(symbol, "SMART", "USD"))

	jobs := make(chan struct{})
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				begin := time.Now()
				if _, err := c.HistoricalData(ctx, req); err != nil {
					result.errors.Inc(1)
					log.Printf("(bench) - request failed: %v\n", err)
					continue
				}
				result.timer.UpdateSince(begin)
			}
		}()
	}

loop:
	for i := 0; i < requests; i++ {
		select {
		case jobs <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
	}
	close(jobs)
	wg.Wait()

	result.elapsed = time.Since(start)
	return result
}

func printBenchResult(result benchResult) {
	snapshot := result.timer.Snapshot()
	ps := snapshot.Percentiles(benchPercentiles)

	fmt.Println()
	fmt.Printf("%-12s%d ok, %d failed in %s\n", "requests", snapshot.Count(), result.errors.Count(), result.elapsed.Round(time.Millisecond))
	if snapshot.Count() == 0 {
		return
	}
	fmt.Printf("%-12s%s\n", "mean", time.Duration(snapshot.Mean()))
	fmt.Printf("%-12s%s\n", "min", time.Duration(snapshot.Min()))
	fmt.Printf("%-12s%s\n", "max", time.Duration(snapshot.Max()))
	for i, p := range benchPercentiles {
		fmt.Printf("%-12s%s\n", fmt.Sprintf("p%.0f", p*100), time.Duration(ps[i]))
	}
	fmt.Printf("%-12s%.0f req/sec\n", "throughput", float64(snapshot.Count())/result.elapsed.Seconds())
}

// writeResultToCSV writes the bench result to a CSV file
func writeResultToCSV(csvPath string, result benchResult, requests, threads int) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Requests", "Threads", "Ok", "Failed", "ElapsedNs",
		"MeanNs", "MinNs", "MaxNs", "P50Ns", "P95Ns", "P99Ns",
		"Endpoint", "Transport", "TimeoutSec",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	snapshot := result.timer.Snapshot()
	ps := snapshot.Percentiles(benchPercentiles)
	config := util.GetClientConfig()
	row := []string{
		strconv.Itoa(requests),
		strconv.Itoa(threads),
		strconv.FormatInt(snapshot.Count(), 10),
		strconv.FormatInt(result.errors.Count(), 10),
		strconv.FormatInt(result.elapsed.Nanoseconds(), 10),
		strconv.FormatFloat(snapshot.Mean(), 'f', 0, 64),
		strconv.FormatInt(snapshot.Min(), 10),
		strconv.FormatInt(snapshot.Max(), 10),
		strconv.FormatFloat(ps[0], 'f', 0, 64),
		strconv.FormatFloat(ps[1], 'f', 0, 64),
		strconv.FormatFloat(ps[2], 'f', 0, 64),
		config.Endpoint,
		viper.GetString("transport"),
		strconv.Itoa(config.TimeoutSecond),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write CSV row: %v", err)
	}
	return nil
}
