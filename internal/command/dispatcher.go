// Package command implements request-shape validation and routing: every
// incoming Value is checked to be an Array of BulkString elements, then
// dispatched by uppercased command name to a handler that executes against
// the shared keyspace, config, and server context.
package command

import (
	"strings"

	"github.com/finchkv/finch/internal/config"
	"github.com/finchkv/finch/internal/keyspace"
	"github.com/finchkv/finch/internal/resp"
	"github.com/finchkv/finch/internal/server"
)

// Deps bundles everything a handler may need, shared by reference across
// every connection.
type Deps struct {
	Keyspace *keyspace.Keyspace
	Config   *config.Config
	Server   *server.Context

	// RDBPayload is the raw bytes served after the FULLRESYNC preamble on
	// PSYNC. It is the loaded snapshot file's raw bytes when one exists,
	// or a canonical empty-database RDB image otherwise (persistence
	// writes are out of scope — this repository never produces its own
	// snapshot bytes, only ever reads or re-serves them).
	RDBPayload []byte
}

// Result is a handler's outcome.
//
// In the common case, Value holds a reply to be RESP-serialized and
// written back to the client. When Raw is non-nil, it holds bytes to write
// to the socket exactly as-is, bypassing serialization entirely — Value is
// then ignored. PSYNC is the only handler that uses Raw: the FULLRESYNC
// preamble is already wire-framed ("+FULLRESYNC ...\r\n"), and handing an
// already-framed simple string back through the serializer would wrap it a
// second time.
//
// NoReply suppresses any bytes at all, even Value's zero-value encoding.
// It is set alongside Close for handlers whose fatal condition closes the
// connection without writing anything back, mirroring a task that dies
// before it can reply rather than one that replies and then hangs up.
type Result struct {
	Value   Value
	Raw     []byte
	Close   bool
	NoReply bool
}

// Bytes renders the result to wire bytes: nothing if NoReply is set,
// otherwise Raw verbatim if set, otherwise Value RESP-serialized.
func (r Result) Bytes() []byte {
	if r.NoReply {
		return nil
	}
	if r.Raw != nil {
		return r.Raw
	}
	return resp.Encode(r.Value)
}

// Value is a local alias so this package's exported surface reads in its
// own vocabulary while staying identical to resp.Value.
type Value = resp.Value

// ErrNotRequestShaped is returned by Dispatch when the incoming Value is
// not an Array of BulkString elements, per the wire contract: any other
// shape is a fatal framing error on this connection.
type ErrNotRequestShaped struct{}

func (ErrNotRequestShaped) Error() string {
	return "command: request is not an array of bulk strings"
}

// Dispatch validates the request shape and routes to the matching handler.
// A shape violation returns ErrNotRequestShaped; the caller must close the
// connection without writing a reply.
func Dispatch(deps *Deps, req Value) (Result, error) {
	args, err := requestArgs(req)
	if err != nil {
		return Result{}, err
	}
	if len(args) == 0 {
		return Result{}, ErrNotRequestShaped{}
	}

	name := strings.ToUpper(string(args[0].Bytes))
	handler, ok := handlers[name]
	if !ok {
		return Result{Value: resp.SimpleError("Invalid command: '" + string(args[0].Bytes) + "'")}, nil
	}
	return handler(deps, args[1:])
}

func requestArgs(req Value) ([]Value, error) {
	if req.Kind != resp.KindArray {
		return nil, ErrNotRequestShaped{}
	}
	for _, el := range req.Array {
		if el.Kind != resp.KindBulkString {
			return nil, ErrNotRequestShaped{}
		}
	}
	return req.Array, nil
}

type handlerFunc func(deps *Deps, args []Value) (Result, error)

var handlers map[string]handlerFunc

func init() {
	handlers = map[string]handlerFunc{
		"PING":     handlePing,
		"ECHO":     handleEcho,
		"SET":      handleSet,
		"GET":      handleGet,
		"KEYS":     handleKeys,
		"CONFIG":   handleConfig,
		"INFO":     handleInfo,
		"REPLCONF": handleReplConf,
		"PSYNC":    handlePsync,
	}
}
