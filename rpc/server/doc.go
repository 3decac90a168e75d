// Package server implements a fake gateway that speaks the server side of the gateway
// protocol. It is used by the integration tests and by the fake-gateway command to run
// clients without a real gateway.
//
// The package focuses on:
//   - The server half of the version handshake and the session announcements
//     (next valid id, managed accounts) a real gateway sends after it
//   - Answering historical data and account requests with canned or synthetic data
//   - Hooks to delay, drop or fail requests per symbol, so answers can arrive out of
//     order or never
//
// Usage Example:
//
//	g := server.NewFakeGateway(common.DefaultServerConfig(), tcp.NewTCPServerTransport())
//	g.SetDelay("MSFT", 100*time.Millisecond)
//	g.FailSymbol("XXXX", server.CodeNoSecurityDef, "No security definition has been found")
//
//	if err := g.Serve(); err != nil {
//	  log.Fatalf("Fake gateway error: %v", err)
//	}
//
// Thread Safety:
//
//	Every connection is served by its own goroutine, delayed answers run in their own
//	goroutines and share a per-connection write lock. Hooks may be changed while
//	clients are connected.
package server
