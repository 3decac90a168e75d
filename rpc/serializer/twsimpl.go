package serializer

import (
	"fmt"
	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"strings"
)

// Message versions written into requests (the gateway still expects them for these kinds)
const (
	accountDataVersion      = 2
	cancelHistoricalVersion = 1
)

// barFieldCount is the number of fields of one bar inside a historical data message
const barFieldCount = 8

// NewTWSCodec creates the payload codec for the text field protocol.
// Requests are encoded for server versions >= 124 (trading class, keepUpToDate).
func NewTWSCodec() IPayloadCodec {
	return &twsCodecImpl{}
}

// twsCodecImpl implements IPayloadCodec for the NUL delimited text protocol
type twsCodecImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IPayloadCodec)
// --------------------------------------------------------------------------

func (t twsCodecImpl) Encode(id int32, req common.Request) ([]byte, error) {
	w := NewFieldWriter()

	switch r := req.(type) {
	case common.HistoricalDataRequest:
		w.AddInt(int64(common.OutReqHistoricalData))
		w.AddInt(int64(id))
		EncodeContract(w, r.Contract)
		w.AddBool(r.Contract.IncludeExpired)
		w.AddString(r.EndDateTime)
		w.AddString(string(r.BarSize))
		w.AddString(r.Duration.String())
		w.AddBool(r.UseRTH)
		w.AddString(string(r.WhatToShow))
		w.AddInt(int64(r.FormatDate))
		w.AddBool(r.KeepUpToDate)
		w.AddEmpty() // chart options
	case common.AccountDataRequest:
		w.AddInt(int64(common.OutReqAccountData))
		w.AddInt(accountDataVersion)
		w.AddBool(r.Subscribe)
		w.AddString(r.Account)
	case common.CancelHistoricalDataRequest:
		w.AddInt(int64(common.OutCancelHistoricalData))
		w.AddInt(cancelHistoricalVersion)
		w.AddInt(int64(r.TargetID))
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrUnsupportedKind, req)
	}

	payload, err := w.Payload()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", req.Kind(), err)
	}
	return payload, nil
}

func (t twsCodecImpl) Decode(kind common.IncomingKind, c *FieldCursor) (common.Inbound, error) {
	msg := common.Inbound{Kind: kind}

	switch kind {
	case common.InError:
		c.Skip(1) // version
		remote := &common.RemoteError{
			RequestID: c.NextInt32(),
			Code:      c.NextInt32(),
			Message:   c.NextString(),
		}
		msg.RequestID = remote.RequestID
		msg.Err = remote

	case common.InHistoricalData:
		resp := &common.HistoricalDataResponse{
			RequestID: c.NextInt32(),
			Start:     c.NextString(),
			End:       c.NextString(),
		}
		count := int(c.NextInt32())
		resp.Bars = make([]market.Bar, 0, max(0, min(count, c.Len()/barFieldCount)))
		for i := 0; i < count && c.Len() >= barFieldCount; i++ {
			resp.Bars = append(resp.Bars, DecodeBar(c))
		}
		msg.RequestID = resp.RequestID
		msg.Payload = resp

	case common.InHistoricalDataEnd:
		end := &common.HistoricalDataEnd{
			RequestID: c.NextInt32(),
			Start:     c.NextString(),
			End:       c.NextString(),
		}
		msg.RequestID = end.RequestID
		msg.Payload = end

	case common.InHistoricalDataUpdate:
		update := &common.HistoricalBarUpdate{RequestID: c.NextInt32()}
		barCount := c.NextInt32()
		update.Bar = market.Bar{
			Date:     c.NextString(),
			Open:     c.NextFloat(),
			Close:    c.NextFloat(),
			High:     c.NextFloat(),
			Low:      c.NextFloat(),
			WAP:      c.NextFloat(),
			Volume:   c.NextFloat(),
			BarCount: barCount,
		}
		msg.RequestID = update.RequestID
		msg.Payload = update

	case common.InAccountValue:
		c.Skip(1) // version
		msg.Payload = &market.AccountValue{
			Key:      c.NextString(),
			Value:    c.NextString(),
			Currency: c.NextString(),
			Account:  c.NextString(),
		}

	case common.InAccountDownloadEnd:
		c.Skip(1) // version
		msg.Payload = &common.AccountDownloadEnd{Account: c.NextString()}

	case common.InNextValidID:
		c.Skip(1) // version
		msg.Payload = &common.NextValidID{OrderID: c.NextInt32()}

	case common.InManagedAccounts:
		c.Skip(1) // version
		accounts := make([]string, 0)
		for _, a := range strings.Split(c.NextString(), ",") {
			if a = strings.TrimSpace(a); a != "" {
				accounts = append(accounts, a)
			}
		}
		msg.Payload = &common.ManagedAccounts{Accounts: accounts}

	case common.InPortfolioValue:
		msg.Payload = &common.RawMessage{Fields: append([]string(nil), c.Remaining()...)}

	default:
		return msg, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	return msg, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// EncodeContract appends the standard contract fields used by most requests.
// A zero strike is sent as the empty sentinel, not as "0".
func EncodeContract(w *FieldWriter, c market.Contract) {
	w.AddInt(int64(c.ConID))
	w.AddString(c.Symbol)
	w.AddString(string(c.SecType))
	w.AddString(c.LastTradeDate)
	w.AddOptionalFloat(c.Strike)
	w.AddString(string(c.Right))
	w.AddString(c.Multiplier)
	w.AddString(c.Exchange)
	w.AddString(c.PrimaryExchange)
	w.AddString(c.Currency)
	w.AddString(c.LocalSymbol)
	w.AddString(c.TradingClass)
}

// DecodeContract reads the fields written by EncodeContract
func DecodeContract(c *FieldCursor) market.Contract {
	return market.Contract{
		ConID:           c.NextInt32(),
		Symbol:          c.NextString(),
		SecType:         market.SecurityType(c.NextString()),
		LastTradeDate:   c.NextString(),
		Strike:          c.NextFloat(),
		Right:           market.OptionRight(c.NextString()),
		Multiplier:      c.NextString(),
		Exchange:        c.NextString(),
		PrimaryExchange: c.NextString(),
		Currency:        c.NextString(),
		LocalSymbol:     c.NextString(),
		TradingClass:    c.NextString(),
	}
}

// EncodeBar appends the fields of one bar in historical data order
func EncodeBar(w *FieldWriter, b market.Bar) {
	w.AddString(b.Date)
	w.AddFloat(b.Open)
	w.AddFloat(b.High)
	w.AddFloat(b.Low)
	w.AddFloat(b.Close)
	w.AddFloat(b.Volume)
	w.AddFloat(b.WAP)
	w.AddInt(int64(b.BarCount))
}

// DecodeBar reads one bar in historical data order
func DecodeBar(c *FieldCursor) market.Bar {
	return market.Bar{
		Date:     c.NextString(),
		Open:     c.NextFloat(),
		High:     c.NextFloat(),
		Low:      c.NextFloat(),
		Close:    c.NextFloat(),
		Volume:   c.NextFloat(),
		WAP:      c.NextFloat(),
		BarCount: c.NextInt32(),
	}
}
