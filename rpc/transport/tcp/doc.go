// Package tcp implements the TCP socket transport of the gateway client. It provides
// concrete implementations of the base package's connector interfaces.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector, applies
//     TCPConf (no delay, keep-alive, linger) and SocketConf (buffer sizes)
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector, used by
//     the fake gateway
package tcp
