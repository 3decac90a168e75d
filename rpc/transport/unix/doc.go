// Package unix implements the gateway client transport over Unix domain sockets,
// for gateways reached through a local socket proxy and for the fake gateway in tests.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting framing, request correlation and error handling from the base package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners and accepts connections
package unix
