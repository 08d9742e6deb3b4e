package resp

import (
	"bytes"
	"errors"
	"io"
	"net"
)

// initialBufferCap is the starting capacity of a connection's receive
// buffer; it grows from here as needed.
const initialBufferCap = 512

// Buffer is the per-connection read-buffer state machine described by the
// codec: it holds some suffix of bytes received from the peer that has not
// yet been consumed by a successful parse, and yields decoded values as
// enough bytes accumulate to form complete frames.
//
// It is not safe for concurrent use; each connection owns exactly one.
type Buffer struct {
	buf bytes.Buffer
}

// NewBuffer returns an empty Buffer pre-sized to the codec's minimum
// capacity.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.buf.Grow(initialBufferCap)
	return b
}

// Feed appends newly-arrived bytes and decodes every complete frame they
// make available, in order. Any undecoded suffix is retained for the next
// Feed call. A fatal protocol error aborts and is returned alongside
// whatever values had already been decoded from this call.
func (b *Buffer) Feed(chunk []byte) ([]Value, error) {
	b.buf.Write(chunk)
	var values []Value
	for {
		data := b.buf.Bytes()
		tok, n, err := Tokenize(data)
		if errors.Is(err, ErrIncomplete) {
			return values, nil
		}
		if err != nil {
			return values, err
		}
		v := Materialize(data, tok)
		b.buf.Next(n)
		values = append(values, v)
	}
}

// ReadAndParse reads one chunk from r into the buffer, then attempts to
// decode a single frame. If the read returns zero bytes, it returns ok=false
// with the read error, or io.EOF when there is none, whatever is already
// buffered. It returns ok=false with a nil error when more data is needed
// (the caller should read again).
func (b *Buffer) ReadAndParse(r net.Conn) (v Value, ok bool, err error) {
	chunk := make([]byte, initialBufferCap)
	n, rerr := r.Read(chunk)
	if n == 0 {
		if rerr != nil {
			return Value{}, false, rerr
		}
		return Value{}, false, io.EOF
	}
	b.buf.Write(chunk[:n])

	data := b.buf.Bytes()
	tok, consumed, terr := Tokenize(data)
	if errors.Is(terr, ErrIncomplete) {
		return Value{}, false, nil
	}
	if terr != nil {
		return Value{}, false, terr
	}
	v = Materialize(data, tok)
	b.buf.Next(consumed)
	return v, true, nil
}

// Write serializes v and writes it to w in one call.
func Write(w io.Writer, v Value) error {
	_, err := w.Write(Encode(v))
	return err
}

// WriteRaw writes p to w without any RESP framing.
func WriteRaw(w io.Writer, p []byte) error {
	_, err := w.Write(p)
	return err
}

// ReadRDBFile consumes the post-PSYNC raw RDB payload framing:
// "$<n>\r\n" immediately followed by exactly n bytes, with no trailing
// CRLF. It reads from r as needed until n bytes of payload are available.
func (b *Buffer) ReadRDBFile(r net.Conn) ([]byte, error) {
	chunk := make([]byte, initialBufferCap)
	for {
		data := b.buf.Bytes()
		if len(data) > 0 {
			if data[0] != '$' {
				return nil, protocolError("expected '$' RDB length prefix")
			}
			wstart, wend, next, found, err := nextWord(data, 1)
			if err != nil {
				return nil, protocolError("malformed RDB length header")
			}
			if found {
				n, ok := parseSignedLength(data[wstart:wend])
				if !ok || n < 0 {
					return nil, protocolError("invalid RDB payload length")
				}
				need := next + int(n)
				for len(data) < need {
					rn, rerr := r.Read(chunk)
					if rn == 0 {
						if rerr != nil {
							return nil, rerr
						}
						return nil, io.EOF
					}
					b.buf.Write(chunk[:rn])
					data = b.buf.Bytes()
				}
				payload := append([]byte(nil), data[next:need]...)
				b.buf.Next(need)
				return payload, nil
			}
		}
		rn, rerr := r.Read(chunk)
		if rn == 0 {
			if rerr != nil {
				return nil, rerr
			}
			return nil, io.EOF
		}
		b.buf.Write(chunk[:rn])
	}
}
