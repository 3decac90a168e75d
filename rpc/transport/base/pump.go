package base

import (
	"errors"
	"fmt"
	"io"

	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/serializer"
)

// readChunkSize is the size of a single read from the connection
const readChunkSize = 8 * 1024

// pump is the only reader of the connection. It reassembles frames, decodes them in
// arrival order and routes each message. When the connection ends every pending
// request is completed with common.ErrDisconnected.
func (t *clientTransport) pump() {
	cause := t.readLoop()
	t.terminate(cause)
}

// readLoop returns the error that ended the connection
func (t *clientTransport) readLoop() error {
	chunk := make([]byte, readChunkSize)
	var acc []byte

	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			acc = append(acc, chunk[:n]...)

			pending := acc
			for {
				frame, rest, ok, ferr := TryExtractFrame(pending, t.config.MaxFrameBytes)
				if ferr != nil {
					return &common.ProtocolError{Reason: "cannot resynchronise stream", Err: ferr}
				}
				if !ok {
					break
				}
				t.handleFrame(frame)
				pending = rest
			}
			// keep the incomplete tail at the start of the buffer
			acc = append(acc[:0], pending...)
		}

		if err != nil {
			if t.closing.Load() {
				return common.ErrDisconnected
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: gateway closed the connection", common.ErrDisconnected)
			}
			return &common.TransportError{Op: "read", Err: err}
		}
	}
}

// handleFrame decodes one frame and routes it. Malformed frames are skipped.
func (t *clientTransport) handleFrame(frame []byte) {
	framesReceivedTotal.Inc()
	frameSize.Update(float64(len(frame)))

	cursor, err := serializer.NewFieldCursor(frame)
	if err != nil {
		framesIgnoredTotal.Inc()
		Logger.Warningf("Dropping malformed frame of %d bytes: %v", len(frame), err)
		return
	}

	kind := common.IncomingKind(cursor.NextInt())
	if !kind.Known() {
		framesIgnoredTotal.Inc()
		Logger.Debugf("Ignoring message of unknown kind %d", int(kind))
		return
	}
	handle, ok := t.routes[kind]
	if !ok {
		framesIgnoredTotal.Inc()
		Logger.Warningf("No route for %s message", kind)
		return
	}

	msg, err := t.codec.Decode(kind, cursor)
	if err != nil {
		framesIgnoredTotal.Inc()
		Logger.Warningf("Dropping %s message: %v", kind, err)
		return
	}
	handle(msg)
}

// terminate closes the connection and fails everything still waiting on it
func (t *clientTransport) terminate(cause error) {
	t.conn.Close()
	disconnectsTotal.Inc()

	if t.closing.Load() {
		Logger.Infof("Connection to %s closed", t.config.Endpoint)
	} else {
		Logger.Errorf("Connection to %s terminated: %v", t.config.Endpoint, cause)
	}

	drainErr := cause
	if !errors.Is(cause, common.ErrDisconnected) {
		drainErr = fmt.Errorf("%w: %w", common.ErrDisconnected, cause)
	}
	t.setErr(drainErr)

	n := t.correlator.drainWith(func(int32) error { return drainErr })
	if n > 0 {
		drainedRequestsTotal.Add(n)
		Logger.Warningf("Failed %d pending requests on %s", n, t.config.Endpoint)
	}

	unregisterConnectionMetrics(t.metricsKey)
	close(t.events)
	close(t.done)
}

// --------------------------------------------------------------------------
// Routing
// --------------------------------------------------------------------------

// newRoutes returns the dispatch table of the pump
func (t *clientTransport) newRoutes() map[common.IncomingKind]route {
	return map[common.IncomingKind]route{
		common.InError:                t.onError,
		common.InHistoricalData:       t.resolveOrPublish,
		common.InHistoricalDataEnd:    t.resolveIfPending,
		common.InHistoricalDataUpdate: t.publish,
		common.InAccountValue:         t.onAccountValue,
		common.InAccountDownloadEnd:   t.onAccountDownloadEnd,
		common.InNextValidID:          t.onNextValidID,
		common.InManagedAccounts:      t.onManagedAccounts,
		common.InPortfolioValue:       t.publish,
	}
}

// onError completes the failing request, connection scoped errors and errors for
// ids nobody waits for are published
func (t *clientTransport) onError(msg common.Inbound) {
	remote := msg.Err
	if remote == nil {
		return
	}
	if !remote.IsConnectionScoped() && t.correlator.resolve(remote.RequestID, common.Envelope{Err: remote}) {
		return
	}

	// 2100-2199 are farm status notices
	if remote.Code >= 2100 && remote.Code < 2200 {
		Logger.Infof("Gateway notice %d: %s", remote.Code, remote.Message)
	} else {
		Logger.Warningf("Gateway error %d for id %d: %s", remote.Code, remote.RequestID, remote.Message)
	}
	t.publish(msg)
}

// resolveOrPublish completes the request waiting for this kind, anything else is an event
func (t *clientTransport) resolveOrPublish(msg common.Inbound) {
	if e, ok := t.correlator.lookup(msg.RequestID); ok && e.kind == msg.Kind {
		if t.correlator.resolve(msg.RequestID, common.Envelope{Response: msg.Payload}) {
			return
		}
	}
	t.publish(msg)
}

// resolveIfPending completes a request that waits for this kind, otherwise the message
// is dropped (end markers after the data was delivered)
func (t *clientTransport) resolveIfPending(msg common.Inbound) {
	if e, ok := t.correlator.lookup(msg.RequestID); ok && e.kind == msg.Kind {
		t.correlator.resolve(msg.RequestID, common.Envelope{Response: msg.Payload})
		return
	}
	Logger.Debugf("No request waits for %s of id %d", msg.Kind, msg.RequestID)
}

func (t *clientTransport) onAccountValue(msg common.Inbound) {
	if value, ok := msg.Payload.(*market.AccountValue); ok {
		if t.correlator.appendScoped(common.InAccountDownloadEnd, *value) {
			return
		}
	}
	t.publish(msg)
}

func (t *clientTransport) onAccountDownloadEnd(msg common.Inbound) {
	end, _ := msg.Payload.(*common.AccountDownloadEnd)
	resolved := t.correlator.resolveScoped(common.InAccountDownloadEnd, func(e *pendingEntry) common.Envelope {
		resp := &common.AccountValuesResponse{Values: e.values}
		if end != nil {
			resp.Account = end.Account
		}
		return common.Envelope{Response: resp}
	})
	if !resolved {
		t.publish(msg)
	}
}

func (t *clientTransport) onNextValidID(msg common.Inbound) {
	if next, ok := msg.Payload.(*common.NextValidID); ok {
		t.nextValidID.Store(next.OrderID)
	}
	t.publish(msg)
}

func (t *clientTransport) onManagedAccounts(msg common.Inbound) {
	if managed, ok := msg.Payload.(*common.ManagedAccounts); ok {
		accounts := append([]string(nil), managed.Accounts...)
		t.accounts.Store(&accounts)
	}
	t.publish(msg)
}

// publish hands a message to the events channel without blocking the pump
func (t *clientTransport) publish(msg common.Inbound) {
	select {
	case t.events <- msg:
	default:
		eventsDroppedTotal.Inc()
		Logger.Warningf("Event buffer full, dropping %s message", msg.Kind)
	}
}
