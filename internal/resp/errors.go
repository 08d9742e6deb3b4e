package resp

import "errors"

// ErrIncomplete is returned by Tokenize when the buffer does not yet hold a
// complete frame. Callers should read more bytes and retry; no bytes have
// been consumed.
var ErrIncomplete = errors.New("resp: incomplete frame")

// ErrProtocol wraps a fatal parse error: a malformed frame that can never
// become valid by reading more bytes. The connection must be closed.
type ErrProtocol struct {
	Msg string
}

func (e *ErrProtocol) Error() string {
	return "resp: protocol error: " + e.Msg
}

func protocolError(msg string) error {
	return &ErrProtocol{Msg: msg}
}
