// Package rpc provides the client engine for the TWS / IB gateway socket
// protocol. It negotiates the protocol version, writes length prefixed frames
// of NUL terminated fields and correlates the asynchronous responses with the
// requests that caused them.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the system, including the
//     message kinds, request and response types, errors, configuration and logging.
//
//   - transport: Network communication abstractions with pluggable connectors
//     (TCP, Unix sockets). The base transport holds the handshake, the
//     serialized writer, the correlator and the incoming pump.
//
//   - serializer: The field codec and the payload codec mapping requests to
//     fields and fields to typed messages.
//
//   - client: The typed gateway client (historical data, account values).
//
//   - server: A fake gateway speaking the server side of the protocol, used by
//     tests and the fake-gateway command.
package rpc
