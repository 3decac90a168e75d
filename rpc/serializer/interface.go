package serializer

import (
	"errors"
	"github.com/ValentinKolb/ibgw/rpc/common"
)

// ErrUnsupportedKind is returned by a codec for a message kind it cannot handle
var ErrUnsupportedKind = errors.New("unsupported message kind")

// IPayloadCodec is the interface for all payload codecs. It converts typed
// requests into frame payloads and frame fields back into typed messages.
type IPayloadCodec interface {
	// Encode serializes a request into a payload (including the message-kind tag).
	// id is the correlation id allocated for the request; kinds that do not carry
	// an id on the wire ignore it.
	Encode(id int32, req common.Request) ([]byte, error)
	// Decode decodes one message. The cursor is positioned right after the
	// message-kind tag. The returned Inbound carries the request id for kinds that
	// have one and Err for error reports.
	Decode(kind common.IncomingKind, c *FieldCursor) (common.Inbound, error)
}
