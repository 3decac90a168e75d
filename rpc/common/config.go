package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	// DefaultVersionRange is the capability range announced in the greeting
	DefaultVersionRange = "v100..176"
	// DefaultMaxFrameBytes bounds the payload of a single frame (the gateway's own maximum)
	DefaultMaxFrameBytes = 0xFFFFFF
	// DefaultTimeoutSecond is the default per-request timeout
	DefaultTimeoutSecond = 30
	// DefaultHandshakeTimeoutSecond bounds the version negotiation
	DefaultHandshakeTimeoutSecond = 10
	// DefaultEventBuffer is the capacity of the unsolicited message channel
	DefaultEventBuffer = 256
)

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// SocketConf contains socket buffer settings (0 keeps the OS default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf contains TCP specific settings
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ClientConfig holds all parameters of one gateway connection
type ClientConfig struct {
	// Endpoint of the gateway (host:port for tcp, socket path for unix)
	Endpoint string
	// ClientID identifies this connection at the gateway, must be unique per gateway
	ClientID int32

	// Timeouts
	TimeoutSecond          int
	HandshakeTimeoutSecond int

	// Protocol settings
	VersionRange  string
	MaxFrameBytes int
	EventBuffer   int

	// Socket settings
	SocketConf SocketConf
	TCPConf    TCPConf

	// Logging configuration
	LogLevel string
}

// DefaultClientConfig returns a config for a local gateway
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint:               "127.0.0.1:4002",
		ClientID:               1,
		TimeoutSecond:          DefaultTimeoutSecond,
		HandshakeTimeoutSecond: DefaultHandshakeTimeoutSecond,
		VersionRange:           DefaultVersionRange,
		MaxFrameBytes:          DefaultMaxFrameBytes,
		EventBuffer:            DefaultEventBuffer,
		TCPConf:                TCPConf{TCPNoDelay: true},
		LogLevel:               "info",
	}
}

// WithDefaults returns a copy where unset fields carry their default values
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.TimeoutSecond <= 0 {
		c.TimeoutSecond = DefaultTimeoutSecond
	}
	if c.HandshakeTimeoutSecond <= 0 {
		c.HandshakeTimeoutSecond = DefaultHandshakeTimeoutSecond
	}
	if c.VersionRange == "" {
		c.VersionRange = DefaultVersionRange
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// Timeout returns the default per-request timeout
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// HandshakeTimeout returns the timeout of the version negotiation
func (c *ClientConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Client ID", strconv.Itoa(int(c.ClientID)))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Handshake Timeout", fmt.Sprintf("%d sec", c.HandshakeTimeoutSecond))

	// Protocol
	addSection("Protocol")
	addField("Version Range", c.VersionRange)
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameBytes))
	addField("Event Buffer", strconv.Itoa(c.EventBuffer))

	// Socket
	addSection("Socket")
	addField("TCP No Delay", strconv.FormatBool(c.TCPConf.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPConf.TCPKeepAliveSec))
	addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPConf.TCPLingerSec))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.SocketConf.ReadBufferSize))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.SocketConf.WriteBufferSize))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Fake gateway configuration struct
// --------------------------------------------------------------------------

const (
	// DefaultServerVersion is the version the fake gateway negotiates
	DefaultServerVersion = 176
	// DefaultServerBars is the number of synthetic bars per historical request
	DefaultServerBars = 5
)

// ServerConfig holds the parameters of the fake gateway
type ServerConfig struct {
	// Endpoint to listen on (host:port for tcp, socket path for unix)
	Endpoint string
	// Transport is the listener type, "tcp" or "unix"
	Transport string

	// Session announced to every client
	ServerVersion int
	NextValidID   int32
	Accounts      []string

	// DefaultBars is the number of synthetic bars for symbols without canned data
	DefaultBars   int
	MaxFrameBytes int

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns the config of a local fake gateway
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Endpoint:      "127.0.0.1:4002",
		Transport:     "tcp",
		ServerVersion: DefaultServerVersion,
		NextValidID:   1,
		Accounts:      []string{"DU123456"},
		DefaultBars:   DefaultServerBars,
		MaxFrameBytes: DefaultMaxFrameBytes,
		LogLevel:      "info",
	}
}

// WithDefaults returns a copy where unset fields carry their default values
func (c ServerConfig) WithDefaults() ServerConfig {
	if c.Transport == "" {
		c.Transport = "tcp"
	}
	if c.ServerVersion <= 0 {
		c.ServerVersion = DefaultServerVersion
	}
	if c.DefaultBars < 0 {
		c.DefaultBars = 0
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// String returns a formatted string representation of the fake gateway configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Fake Gateway Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Transport", c.Transport)
	addField("Server Version", strconv.Itoa(c.ServerVersion))
	addField("Next Valid ID", strconv.Itoa(int(c.NextValidID)))
	addField("Accounts", strings.Join(c.Accounts, ","))
	addField("Default Bars", strconv.Itoa(c.DefaultBars))
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameBytes))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
