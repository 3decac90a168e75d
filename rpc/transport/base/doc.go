// Package base implements the gateway client transport independent of the network
// medium (TCP, Unix sockets, in-memory pipes). It is extended with protocol-specific
// connectors by the tcp and unix packages.
//
// The package focuses on:
//   - Length prefixed framing with reassembly of partial reads
//   - Version negotiation before any request is sent
//   - Multiplexing many concurrent requests over one connection
//   - Routing every answer back to exactly one waiting caller
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Allocates request ids, registers the waiting caller, writes the
//     request and waits for the completion, a timeout or the end of the connection.
//
//   - correlator: Concurrency-safe registry of pending requests. For every id exactly
//     one of resolve, cancel and drain takes effect.
//
//   - pump: The only reader of a connection. It decodes frames in arrival order and
//     routes them by message kind. Messages nobody waits for go to the events channel.
//
//   - serverTransport: Accept loop that hands each connection to a handler, used by
//     the fake gateway.
//
// Frame Format:
//
//	+----------------+-----------------------------+
//	| length (4, BE) | payload (fields, NUL ended) |
//	+----------------+-----------------------------+
//
// The first bytes a client sends are "API\0" followed by a framed version range.
//
// Thread Safety:
//
//	All public methods are thread-safe. Writes are serialized by a mutex, the pump is
//	the only reader, and pending requests are tracked in a lock-free map.
package base
