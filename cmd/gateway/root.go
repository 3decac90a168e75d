package gateway

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/ibgw/cmd/util"
	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	// FakeGatewayCmd serves the gateway side of the protocol with canned data
	FakeGatewayCmd = &cobra.Command{
		Use:   "fake-gateway",
		Short: "Start a local fake gateway",
		Long: `Start a local fake gateway that negotiates the protocol and answers historical and
account requests with synthetic data. The configuration can be set via command line flags or
environment variables. The format of the environment variables is IBGW_<flag> (e.g. IBGW_SERVER_VERSION=176)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	defaults := common.DefaultServerConfig()

	key := "endpoint"
	FakeGatewayCmd.PersistentFlags().String(key, defaults.Endpoint, cmdUtil.WrapString("The address on which the gateway will listen (host:port for tcp, socket path for unix)"))

	key = "server-version"
	FakeGatewayCmd.PersistentFlags().Int(key, defaults.ServerVersion, cmdUtil.WrapString("The highest protocol version the gateway speaks"))

	key = "next-valid-id"
	FakeGatewayCmd.PersistentFlags().Int32(key, defaults.NextValidID, cmdUtil.WrapString("The next valid order id announced after the handshake"))

	key = "accounts"
	FakeGatewayCmd.PersistentFlags().String(key, strings.Join(defaults.Accounts, ","), cmdUtil.WrapString("Comma-separated list of managed accounts"))

	key = "bars"
	FakeGatewayCmd.PersistentFlags().Int(key, defaults.DefaultBars, cmdUtil.WrapString("How many synthetic bars are returned for symbols without canned data"))

	key = "max-frame"
	FakeGatewayCmd.PersistentFlags().Int(key, common.DefaultMaxFrameBytes, cmdUtil.WrapString("The largest accepted frame in bytes"))

	key = "account-values"
	FakeGatewayCmd.PersistentFlags().String(key, "NetLiquidation=100000:USD,BuyingPower=400000:USD", cmdUtil.WrapString("Comma-separated list of account values in the format KEY=VALUE[:CURRENCY]"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.ServerVersion = viper.GetInt("server-version")
	serveCmdConfig.NextValidID = viper.GetInt32("next-valid-id")
	serveCmdConfig.DefaultBars = viper.GetInt("bars")
	serveCmdConfig.MaxFrameBytes = viper.GetInt("max-frame")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	serveCmdConfig.Accounts = nil
	for _, account := range strings.Split(viper.GetString("accounts"), ",") {
		if account = strings.TrimSpace(account); account != "" {
			serveCmdConfig.Accounts = append(serveCmdConfig.Accounts, account)
		}
	}
	if len(serveCmdConfig.Accounts) == 0 {
		return fmt.Errorf("at least one managed account is required")
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// parseAccountValues parses KEY=VALUE[:CURRENCY] pairs for the given account
func parseAccountValues(spec, account string) ([]market.AccountValue, error) {
	var values []market.AccountValue
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid account value format: %s (expected KEY=VALUE[:CURRENCY])", entry)
		}
		value, currency, _ := strings.Cut(value, ":")
		values = append(values, market.AccountValue{
			Key:      key,
			Value:    value,
			Currency: currency,
			Account:  account,
		})
	}
	return values, nil
}

// run starts the fake gateway and blocks until it is interrupted
func run(_ *cobra.Command, _ []string) error {
	t, err := cmdUtil.GetServerTransport(serveCmdConfig.Transport)
	if err != nil {
		return err
	}

	values, err := parseAccountValues(viper.GetString("account-values"), serveCmdConfig.Accounts[0])
	if err != nil {
		return err
	}

	g := server.NewFakeGateway(*serveCmdConfig, t)
	g.SetAccountValues(values)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		_ = g.Close()
	}()

	return g.Serve()
}
