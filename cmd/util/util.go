package util

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/ibgw/rpc/client"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/transport"
	"github.com/ValentinKolb/ibgw/rpc/transport/base"
	"github.com/ValentinKolb/ibgw/rpc/transport/tcp"
	"github.com/ValentinKolb/ibgw/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by the cli
	EnvPrefix = "ibgw"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the gateway connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()

	key := "endpoint"
	cmd.PersistentFlags().String(key, defaults.Endpoint, WrapString("The address of the gateway (host:port for tcp, socket path for unix)"))

	key = "client-id"
	cmd.PersistentFlags().Int32(key, defaults.ClientID, WrapString("The client id of this connection, must be unique per gateway"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, defaults.TimeoutSecond, WrapString("The timeout in seconds of a single request"))

	key = "handshake-timeout"
	cmd.PersistentFlags().Int(key, defaults.HandshakeTimeoutSecond, WrapString("The timeout in seconds of the version negotiation"))

	key = "version-range"
	cmd.PersistentFlags().String(key, defaults.VersionRange, WrapString("The protocol versions offered to the gateway (format vMIN..MAX)"))

	key = "max-frame"
	cmd.PersistentFlags().Int(key, defaults.MaxFrameBytes, WrapString("The largest accepted frame in bytes"))

	key = "event-buffer"
	cmd.PersistentFlags().Int(key, defaults.EventBuffer, WrapString("How many unsolicited messages are buffered before new ones are dropped"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 64, WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 64, WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, only for tcp)"))
}

// InitConfig loads the env files and makes viper read IBGW_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := &common.ClientConfig{
		Endpoint:               viper.GetString("endpoint"),
		ClientID:               viper.GetInt32("client-id"),
		TimeoutSecond:          viper.GetInt("timeout"),
		HandshakeTimeoutSecond: viper.GetInt("handshake-timeout"),
		VersionRange:           viper.GetString("version-range"),
		MaxFrameBytes:          viper.GetInt("max-frame"),
		EventBuffer:            viper.GetInt("event-buffer"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
		LogLevel: viper.GetString("log-level"),
	}

	return conf
}

// GetTransport creates the client transport selected by the transport flag
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport selected by name
func GetServerTransport(name string) (transport.IRPCServerTransport, error) {
	switch name {
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}

// Connect binds the flags of cmd, initializes the loggers and connects a gateway client
func Connect(ctx context.Context, cmd *cobra.Command) (client.IGatewayClient, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	config := GetClientConfig()
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return nil, err
	}

	t, err := GetTransport()
	if err != nil {
		return nil, err
	}
	return client.NewGatewayClient(ctx, *config, t)
}

// PrintMetrics writes the transport metrics to stderr if the metrics flag is set
func PrintMetrics() {
	if !viper.GetBool("metrics") {
		return
	}
	fmt.Fprintln(os.Stderr)
	base.WriteMetrics(os.Stderr)
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Flags())
}
