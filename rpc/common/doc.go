// Package common provides the data structures and utilities shared by the gateway
// client packages. It defines the message-kind tables of the protocol, the typed
// requests and responses exchanged with the payload codec, the error taxonomy and
// the client configuration.
//
// Key Components:
//
//   - OutgoingKind / IncomingKind: the two disjoint message-kind namespaces
//     (client-to-gateway and gateway-to-client). Field 0 of every frame is one of them.
//
//   - Request: typed requests (HistoricalDataRequest, AccountDataRequest, ...).
//     Requests whose terminating message does not echo the request id implement
//     ScopedRequest and are correlated by kind.
//
//   - Inbound / Envelope: a decoded gateway message, and the single completion
//     value handed to a waiting caller.
//
//   - Errors: TransportError, ProtocolError and RemoteError, plus the sentinels
//     ErrTimeout and ErrDisconnected. All work with errors.Is and errors.As.
//
//   - ClientConfig: connection parameters, timeouts and protocol limits.
//
//   - Logger: custom formatting for the dragonboat logger interface used across
//     the module.
package common
