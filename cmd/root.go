package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/ibgw/cmd/gateway"
	"github.com/ValentinKolb/ibgw/cmd/query"
	"github.com/ValentinKolb/ibgw/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ibgw",
		Short: "client for the TWS / IB gateway socket protocol",
		Long: fmt.Sprintf(`ibgw (v%s)

A client engine for the TWS / IB gateway socket protocol written in Go.
It negotiates the protocol version, multiplexes concurrent requests over a
single connection and correlates the responses by request id.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ibgw",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ibgw v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(query.HistCmd)
	RootCmd.AddCommand(query.AccountCmd)
	RootCmd.AddCommand(query.BenchCmd)
	RootCmd.AddCommand(gateway.FakeGatewayCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	key = "metrics"
	RootCmd.PersistentFlags().Bool(key, false, util.WrapString("Print the transport metrics in Prometheus format to stderr when the command ends"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
