package common

import (
	"fmt"

	"github.com/ValentinKolb/ibgw/lib/market"
)

// --------------------------------------------------------------------------
// Message Kind Definitions
// --------------------------------------------------------------------------

// OutgoingKind is the message-kind tag (field 0) of a client-to-gateway message.
// The outgoing and incoming namespaces are disjoint: the same number means
// different things depending on the direction.
type OutgoingKind int

const (
	OutReqAccountData       OutgoingKind = 6  // subscribe/unsubscribe account updates
	OutReqHistoricalData    OutgoingKind = 20 // request historical bars
	OutCancelHistoricalData OutgoingKind = 25 // cancel a keep-up-to-date historical request
	OutStartAPI             OutgoingKind = 71 // start the session after the version handshake
)

// String returns the string representation of an OutgoingKind.
func (k OutgoingKind) String() string {
	switch k {
	case OutReqAccountData:
		return "reqAccountData"
	case OutReqHistoricalData:
		return "reqHistoricalData"
	case OutCancelHistoricalData:
		return "cancelHistoricalData"
	case OutStartAPI:
		return "startApi"
	default:
		return fmt.Sprintf("outgoing(%d)", int(k))
	}
}

// IncomingKind is the message-kind tag (field 0) of a gateway-to-client message.
type IncomingKind int

const (
	InUnknown              IncomingKind = 0
	InError                IncomingKind = 4   // error report, request scoped (id > 0) or connection scoped
	InAccountValue         IncomingKind = 6   // one account key/value
	InPortfolioValue       IncomingKind = 7   // portfolio position update
	InAccountDownloadEnd   IncomingKind = 8   // end of an account download, carries the account code only
	InNextValidID          IncomingKind = 9   // next valid order id
	InManagedAccounts      IncomingKind = 15  // comma separated list of managed accounts
	InHistoricalData       IncomingKind = 17  // historical bars for a request id
	InHistoricalDataUpdate IncomingKind = 90  // keep-up-to-date bar for a request id
	InHistoricalDataEnd    IncomingKind = 108 // end marker of a historical request
)

// String returns the string representation of an IncomingKind.
func (k IncomingKind) String() string {
	switch k {
	case InError:
		return "error"
	case InAccountValue:
		return "accountValue"
	case InPortfolioValue:
		return "portfolioValue"
	case InAccountDownloadEnd:
		return "accountDownloadEnd"
	case InNextValidID:
		return "nextValidId"
	case InManagedAccounts:
		return "managedAccounts"
	case InHistoricalData:
		return "historicalData"
	case InHistoricalDataUpdate:
		return "historicalDataUpdate"
	case InHistoricalDataEnd:
		return "historicalDataEnd"
	default:
		return fmt.Sprintf("incoming(%d)", int(k))
	}
}

// Known reports whether the kind is part of the supported message table
func (k IncomingKind) Known() bool {
	switch k {
	case InError, InAccountValue, InPortfolioValue, InAccountDownloadEnd, InNextValidID,
		InManagedAccounts, InHistoricalData, InHistoricalDataUpdate, InHistoricalDataEnd:
		return true
	default:
		return false
	}
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Request is a typed client request. The payload codec turns it into fields.
type Request interface {
	// Kind returns the outgoing message kind of the request
	Kind() OutgoingKind
	// ExpectedKind returns the incoming kind that completes the request
	ExpectedKind() IncomingKind
}

// ScopedRequest is implemented by requests whose completing message does not echo
// the request id. Only one scoped request per ExpectedKind can be outstanding on a
// connection, so the terminator is matched by kind instead of by id.
type ScopedRequest interface {
	Request
	Scoped() bool
}

// CancellableRequest is implemented by requests that keep a subscription open at the
// gateway. When the caller stops waiting (timeout or context), the dispatcher sends
// the returned cancel request for the id it allocated.
type CancellableRequest interface {
	Request
	CancelRequest(id int32) (Request, bool)
}

// HistoricalDataRequest requests historical bars for a contract
type HistoricalDataRequest struct {
	Contract     market.Contract
	EndDateTime  string // "yyyymmdd HH:mm:ss [tz]", empty for now
	Duration     market.Duration
	BarSize      market.BarSize
	WhatToShow   market.WhatToShow
	UseRTH       bool
	FormatDate   market.DateFormat
	KeepUpToDate bool
}

// NewHistoricalDataRequest creates a request for one day of hourly trade bars inside
// regular trading hours
func NewHistoricalDataRequest(contract market.Contract) HistoricalDataRequest {
	return HistoricalDataRequest{
		Contract:   contract,
		Duration:   market.Days(1),
		BarSize:    market.BarSize1Hour,
		WhatToShow: market.ShowTrades,
		UseRTH:     true,
		FormatDate: market.DateFormatString,
	}
}

func (r HistoricalDataRequest) Kind() OutgoingKind         { return OutReqHistoricalData }
func (r HistoricalDataRequest) ExpectedKind() IncomingKind { return InHistoricalData }

// CancelRequest returns the cancel message of a keep-up-to-date request
func (r HistoricalDataRequest) CancelRequest(id int32) (Request, bool) {
	if !r.KeepUpToDate {
		return nil, false
	}
	return CancelHistoricalDataRequest{TargetID: id}, true
}

// CancelHistoricalDataRequest cancels the historical request with TargetID.
// It is fire-and-forget, the gateway does not answer it.
type CancelHistoricalDataRequest struct {
	TargetID int32
}

func (r CancelHistoricalDataRequest) Kind() OutgoingKind         { return OutCancelHistoricalData }
func (r CancelHistoricalDataRequest) ExpectedKind() IncomingKind { return InUnknown }

// AccountDataRequest subscribes (or unsubscribes) account updates. The gateway
// streams AccountValue messages and terminates the initial download with an
// AccountDownloadEnd that carries the account code but not the request id.
type AccountDataRequest struct {
	Subscribe bool
	Account   string // empty for the default account
}

func (r AccountDataRequest) Kind() OutgoingKind         { return OutReqAccountData }
func (r AccountDataRequest) ExpectedKind() IncomingKind { return InAccountDownloadEnd }
func (r AccountDataRequest) Scoped() bool               { return true }

// --------------------------------------------------------------------------
// Responses
// --------------------------------------------------------------------------

// HistoricalDataResponse holds the bars returned for one historical request
type HistoricalDataResponse struct {
	RequestID int32
	Start     string
	End       string
	Bars      []market.Bar
}

// HistoricalDataEnd marks the end of a historical request
type HistoricalDataEnd struct {
	RequestID int32
	Start     string
	End       string
}

// HistoricalBarUpdate is a keep-up-to-date bar
type HistoricalBarUpdate struct {
	RequestID int32
	Bar       market.Bar
}

// AccountValuesResponse is the result of an account download
type AccountValuesResponse struct {
	Account string
	Values  []market.AccountValue
}

// AccountDownloadEnd marks the end of an account download
type AccountDownloadEnd struct {
	Account string
}

// NextValidID carries the next valid order id announced by the gateway
type NextValidID struct {
	OrderID int32
}

// ManagedAccounts lists the accounts the session can access
type ManagedAccounts struct {
	Accounts []string
}

// RawMessage is a message that is known but has no typed decoding
type RawMessage struct {
	Fields []string
}

// --------------------------------------------------------------------------
// Decoded messages and completion envelopes
// --------------------------------------------------------------------------

// Inbound is one decoded gateway message as handed from the payload codec to the
// pump. RequestID is 0 for kinds that carry no correlation id.
type Inbound struct {
	Kind      IncomingKind
	RequestID int32
	Payload   any
	Err       *RemoteError
}

// Envelope is delivered exactly once to a waiting caller. Exactly one of Response
// and Err is set. Err is a *RemoteError or a connection level error.
type Envelope struct {
	Response any
	Err      error
}
