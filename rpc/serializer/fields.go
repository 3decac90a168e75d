package serializer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// fieldSep terminates every field of a payload
const fieldSep byte = 0

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// FieldWriter builds a payload of NUL terminated fields. The first error (a value
// that contains a NUL byte or is not valid UTF-8) is sticky and reported by Payload.
type FieldWriter struct {
	buf bytes.Buffer
	err error
}

// NewFieldWriter creates an empty FieldWriter
func NewFieldWriter() *FieldWriter {
	return &FieldWriter{}
}

// AddString appends a string field as-is
func (w *FieldWriter) AddString(s string) {
	if w.err != nil {
		return
	}
	if strings.IndexByte(s, fieldSep) >= 0 {
		w.err = fmt.Errorf("field %q contains a NUL byte", s)
		return
	}
	if !utf8.ValidString(s) {
		w.err = fmt.Errorf("field %q is not valid UTF-8", s)
		return
	}
	w.buf.WriteString(s)
	w.buf.WriteByte(fieldSep)
}

// AddEmpty appends the empty "absent value" sentinel
func (w *FieldWriter) AddEmpty() {
	w.AddString("")
}

// AddInt appends an integer as decimal digits
func (w *FieldWriter) AddInt(v int64) {
	w.AddString(strconv.FormatInt(v, 10))
}

// AddBool appends a boolean as "1" or "0"
func (w *FieldWriter) AddBool(v bool) {
	if v {
		w.AddString("1")
	} else {
		w.AddString("0")
	}
}

// AddFloat appends a float in its shortest exact decimal form
func (w *FieldWriter) AddFloat(v float64) {
	w.AddString(strconv.FormatFloat(v, 'f', -1, 64))
}

// AddOptionalFloat appends the float, or the empty sentinel when it is zero
// (e.g. an unset strike price)
func (w *FieldWriter) AddOptionalFloat(v float64) {
	if v == 0 {
		w.AddEmpty()
		return
	}
	w.AddFloat(v)
}

// AddOptionalInt appends the integer, or the empty sentinel when it is zero
func (w *FieldWriter) AddOptionalInt(v int64) {
	if v == 0 {
		w.AddEmpty()
		return
	}
	w.AddInt(v)
}

// Add appends any supported scalar: string, bool, all integer kinds, float32/64 and
// fmt.Stringer
func (w *FieldWriter) Add(v interface{}) {
	switch x := v.(type) {
	case string:
		w.AddString(x)
	case bool:
		w.AddBool(x)
	case int:
		w.AddInt(int64(x))
	case int32:
		w.AddInt(int64(x))
	case int64:
		w.AddInt(x)
	case uint32:
		w.AddInt(int64(x))
	case uint64:
		w.AddString(strconv.FormatUint(x, 10))
	case float32:
		w.AddString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case float64:
		w.AddFloat(x)
	case fmt.Stringer:
		w.AddString(x.String())
	default:
		if w.err == nil {
			w.err = fmt.Errorf("unsupported field type %T", v)
		}
	}
}

// Payload returns the encoded fields or the first error
func (w *FieldWriter) Payload() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

// EncodeFields encodes the values in order, see FieldWriter.Add
func EncodeFields(values ...interface{}) ([]byte, error) {
	w := NewFieldWriter()
	for _, v := range values {
		w.Add(v)
	}
	return w.Payload()
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// SplitFields splits a payload on NUL. Only the trailing empty token (produced by
// the final terminator) is dropped; interior empty tokens are absent-value sentinels.
func SplitFields(payload []byte) ([]string, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("payload is not valid UTF-8")
	}
	if len(payload) == 0 {
		return []string{}, nil
	}
	fields := strings.Split(string(payload), string(fieldSep))
	if fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields, nil
}

// FieldCursor provides sequential typed access to the fields of one message.
// Numeric accessors never fail: malformed or missing values read as zero so that
// protocol skew degrades instead of aborting the message.
type FieldCursor struct {
	fields []string
	pos    int
}

// NewFieldCursor splits the payload and returns a cursor on its first field
func NewFieldCursor(payload []byte) (*FieldCursor, error) {
	fields, err := SplitFields(payload)
	if err != nil {
		return nil, err
	}
	return &FieldCursor{fields: fields}, nil
}

// NewFieldCursorFromFields returns a cursor over already split fields
func NewFieldCursorFromFields(fields []string) *FieldCursor {
	return &FieldCursor{fields: fields}
}

// NextStringOk returns the next field and whether one was available
func (c *FieldCursor) NextStringOk() (string, bool) {
	if c.pos >= len(c.fields) {
		return "", false
	}
	f := c.fields[c.pos]
	c.pos++
	return f, true
}

// NextString returns the next field, "" when exhausted
func (c *FieldCursor) NextString() string {
	s, _ := c.NextStringOk()
	return s
}

// NextInt returns the next field as int64, 0 when empty, malformed or exhausted
func (c *FieldCursor) NextInt() int64 {
	v, err := strconv.ParseInt(c.NextString(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// NextInt32 returns the next field as int32, 0 when empty, malformed, out of range or exhausted
func (c *FieldCursor) NextInt32() int32 {
	v, err := strconv.ParseInt(c.NextString(), 10, 32)
	if err != nil {
		return 0
	}
	return int32(v)
}

// NextFloat returns the next field as float64, 0.0 when empty, malformed or exhausted
func (c *FieldCursor) NextFloat() float64 {
	v, err := strconv.ParseFloat(c.NextString(), 64)
	if err != nil {
		return 0
	}
	return v
}

// NextBool returns true for any non-zero integer field (or "true")
func (c *FieldCursor) NextBool() bool {
	s := c.NextString()
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v != 0
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// Skip advances the cursor by n fields, stopping at the end
func (c *FieldCursor) Skip(n int) {
	c.pos = min(c.pos+n, len(c.fields))
}

// Remaining returns the unconsumed fields without consuming them
func (c *FieldCursor) Remaining() []string {
	return c.fields[c.pos:]
}

// Peek returns the i-th unconsumed field without consuming it
func (c *FieldCursor) Peek(i int) (string, bool) {
	if i < 0 || c.pos+i >= len(c.fields) {
		return "", false
	}
	return c.fields[c.pos+i], true
}

// Len returns the number of unconsumed fields
func (c *FieldCursor) Len() int {
	return len(c.fields) - c.pos
}

// Exhausted reports whether all fields were consumed
func (c *FieldCursor) Exhausted() bool {
	return c.pos >= len(c.fields)
}

// Position returns the index of the next field
func (c *FieldCursor) Position() int {
	return c.pos
}
