// Package transport defines the client transport abstraction of the gateway client.
// A transport owns one long-lived duplex connection on which many logical requests are
// multiplexed.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles the handshake, request correlation and the unsolicited message stream.
//
// The base package implements the protocol independent of the network medium, the tcp
// and unix packages provide the dialers.
package transport
