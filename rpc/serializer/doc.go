// Package serializer implements the field layer of the gateway protocol and the
// payload codec that sits on top of it.
//
// Every frame payload is a sequence of UTF-8 tokens, each terminated by a single
// NUL byte. Field 0 is the numeric message-kind tag, all following fields are
// positional and interpreted per message kind. Numbers are decimal text, booleans
// are "0"/"1", and an absent value (e.g. an unset strike price) is the empty token.
//
// Key Components:
//
//   - FieldWriter: builds a payload from typed values. Errors (NUL bytes or invalid
//     UTF-8 inside a value) are sticky and reported once by Payload.
//
//   - FieldCursor: sequential typed access to the fields of one message. Numeric
//     reads default to zero on malformed or missing values, so a single bad field
//     never fails the whole message. Remaining and Peek expose unconsumed trailing
//     fields for forward compatibility.
//
//   - IPayloadCodec: the pluggable request/response codec used by the transport.
//     NewTWSCodec returns the implementation for historical data, account data and
//     the session-level messages (errors, next valid id, managed accounts).
//
// Thread Safety:
//
//	The codec is stateless and safe for concurrent use. FieldWriter and FieldCursor
//	are not; each message gets its own.
package serializer
