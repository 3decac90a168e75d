package query

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ValentinKolb/ibgw/cmd/util"
	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// HistCmd requests historical bars, by default the daily bars of the past week
	HistCmd = &cobra.Command{
		Use:   "hist [symbol]",
		Short: "Request historical bars for a symbol",
		Long: `Request historical bars for a symbol. Without further flags the daily trade bars
of the past week are requested inside regular trading hours.`,
		Args: cobra.ExactArgs(1),
		RunE: runHist,
	}

	// AccountCmd downloads the values of an account
	AccountCmd = &cobra.Command{
		Use:   "account [account]",
		Short: "Download the values of an account",
		Long:  `Download the values of an account. Without an argument the default account of the session is used.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAccount,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	for _, cmd := range []*cobra.Command{HistCmd, AccountCmd, BenchCmd} {
		util.SetupClientFlags(cmd)
	}

	key := "exchange"
	HistCmd.Flags().String(key, "SMART", util.WrapString("The exchange of the contract"))
	key = "currency"
	HistCmd.Flags().String(key, "USD", util.WrapString("The currency of the contract"))
	key = "forex"
	HistCmd.Flags().Bool(key, false, util.WrapString("Treat the symbol as a currency pair routed to IDEALPRO (e.g. EUR.USD)"))
	key = "duration"
	HistCmd.Flags().String(key, market.Weeks(1).String(), util.WrapString("How far back to request (e.g. '1 W', '5 D', '3600 S')"))
	key = "bar-size"
	HistCmd.Flags().String(key, string(market.BarSize1Day), util.WrapString("The bar size (e.g. '1 day', '1 hour', '5 mins')"))
	key = "what"
	HistCmd.Flags().String(key, string(market.ShowTrades), util.WrapString("The price series (TRADES, MIDPOINT, BID, ASK, ...)"))
	key = "end"
	HistCmd.Flags().String(key, "", util.WrapString("End of the requested range ('yyyymmdd HH:mm:ss'), empty for now"))
	key = "rth"
	HistCmd.Flags().Bool(key, true, util.WrapString("Only return bars inside regular trading hours"))
	key = "follow"
	HistCmd.Flags().Duration(key, 0, util.WrapString("Keep the request up to date and print bar updates for this long (e.g. 30s), 0 disables updates"))
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// historicalRequest builds the historical request from the flags
func historicalRequest(symbol string) (common.HistoricalDataRequest, error) {
	contract := market.Stock(symbol, viper.GetString("exchange"), viper.GetString("currency"))
	if viper.GetBool("forex") {
		contract = market.Forex(symbol)
	}

	duration, err := market.ParseDuration(viper.GetString("duration"))
	if err != nil {
		return common.HistoricalDataRequest{}, err
	}

	req := common.NewHistoricalDataRequest(contract)
	req.Duration = duration
	req.BarSize = market.BarSize(viper.GetString("bar-size"))
	req.WhatToShow = market.WhatToShow(strings.ToUpper(viper.GetString("what")))
	req.EndDateTime = viper.GetString("end")
	req.UseRTH = viper.GetBool("rth")
	req.KeepUpToDate = viper.GetDuration("follow") > 0
	return req, nil
}

func runHist(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := util.Connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer util.PrintMetrics()
	defer c.Close()

	req, err := historicalRequest(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Connected to gateway v%d\n", c.ServerVersion())
	fmt.Printf("\nRequesting %s %s bars for the past %s...\n", req.Contract.Symbol, req.BarSize, req.Duration)

	resp, err := c.HistoricalDataResponse(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Received %d bars:\n", len(resp.Bars))
	for _, bar := range resp.Bars {
		printBar(bar)
	}

	if !req.KeepUpToDate {
		return nil
	}

	fmt.Printf("\nFollowing updates of request %d for %s...\n", resp.RequestID, viper.GetDuration("follow"))
	followCtx, cancel := context.WithTimeout(ctx, viper.GetDuration("follow"))
	defer cancel()
	followErr := follow(followCtx, c.Events(), c.Done(), resp.RequestID)

	if err := c.CancelHistoricalData(resp.RequestID); err != nil && followErr == nil {
		followErr = err
	}
	return followErr
}

// follow prints the bar updates of one request until ctx ends or the connection closes
func follow(ctx context.Context, events <-chan common.Inbound, done <-chan struct{}, requestID int32) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return common.ErrDisconnected
		case msg, ok := <-events:
			if !ok {
				return common.ErrDisconnected
			}
			if msg.Err != nil {
				fmt.Fprintf(os.Stderr, "  gateway: %v\n", msg.Err)
				continue
			}
			update, isUpdate := msg.Payload.(*common.HistoricalBarUpdate)
			if !isUpdate || update.RequestID != requestID {
				continue
			}
			printBar(update.Bar)
		}
	}
}

func printBar(bar market.Bar) {
	fmt.Printf("  %s O:%.2f H:%.2f L:%.2f C:%.2f V:%.0f\n",
		bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
}

func runAccount(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := util.Connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer util.PrintMetrics()
	defer c.Close()

	account := ""
	if len(args) == 1 {
		account = args[0]
	}

	start := time.Now()
	values, err := c.AccountValues(ctx, account)
	if err != nil {
		var remote *common.RemoteError
		if errors.As(err, &remote) {
			return fmt.Errorf("gateway rejected the account download: %w", err)
		}
		return err
	}

	fmt.Printf("Managed accounts: %s\n", strings.Join(c.ManagedAccounts(), ", "))
	fmt.Printf("Received %d values in %s:\n", len(values), time.Since(start).Round(time.Millisecond))
	for _, v := range values {
		fmt.Printf("  %-12s %-32s %-20s %s\n", v.Account, v.Key, v.Value, v.Currency)
	}
	return nil
}
