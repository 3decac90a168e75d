// Package client implements the typed gateway client on top of a client transport.
// It turns the generic request/response exchange of the transport into methods with
// domain types.
//
// The package focuses on:
//   - Typed access to historical data and account values
//   - Checking that every response has the type the request expects
//   - Cleaning up gateway subscriptions the caller no longer needs
//
// Key Components:
//
//   - IGatewayClient: Interface of the typed client
//
//   - NewGatewayClient: Factory function that connects the transport and returns
//     the client
//
// Usage Example:
//
//	config := common.DefaultClientConfig()
//	config.Endpoint = "127.0.0.1:4002"
//	config.ClientID = 7
//
//	c, err := client.NewGatewayClient(ctx, config, tcp.NewTCPClientTransport())
//	if err != nil {
//	  log.Fatalf("Failed to connect: %v", err)
//	}
//	defer c.Close()
//
//	req := common.NewHistoricalDataRequest(market.Stock("AAPL", "SMART", "USD"))
//	req.Duration = market.Weeks(1)
//	req.BarSize = market.BarSize1Day
//	bars, err := c.HistoricalData(ctx, req)
//
// Errors:
//
//	Remote errors are returned as *common.RemoteError, timeouts wrap common.ErrTimeout
//	and a lost connection wraps common.ErrDisconnected.
package client
