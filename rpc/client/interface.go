package client

import (
	"context"

	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
)

// IGatewayClient is the typed client of one gateway session
type IGatewayClient interface {
	// HistoricalData requests historical bars for a contract
	HistoricalData(ctx context.Context, req common.HistoricalDataRequest) ([]market.Bar, error)
	// HistoricalDataResponse is like HistoricalData but returns the request id and the
	// covered range as well, e.g. to cancel a keep-up-to-date request later
	HistoricalDataResponse(ctx context.Context, req common.HistoricalDataRequest) (*common.HistoricalDataResponse, error)
	// CancelHistoricalData stops the updates of a keep-up-to-date request
	CancelHistoricalData(requestID int32) error
	// AccountValues downloads the values of an account (empty for the default account)
	AccountValues(ctx context.Context, account string) ([]market.AccountValue, error)

	// ServerVersion returns the negotiated server version
	ServerVersion() int
	// NextValidID returns the next valid order id announced by the gateway
	NextValidID() int32
	// ManagedAccounts returns the accounts of the session
	ManagedAccounts() []string
	// Events returns unsolicited messages, bar updates and connection scoped errors
	Events() <-chan common.Inbound
	// Done is closed when the connection ended
	Done() <-chan struct{}

	// Close closes the connection
	Close() error
}
