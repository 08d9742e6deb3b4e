// Package repl implements the replica-side replication handshake: a short,
// synchronous RESP exchange run once against a configured master before the
// transport engine starts accepting its own clients.
package repl

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/finchkv/finch/internal/resp"
)

// ErrUnexpectedReply is returned when the master's reply to a handshake step
// does not match what the protocol requires.
var ErrUnexpectedReply = errors.New("repl: unexpected reply from master")

// Result holds what the handshake produced: the initial RDB snapshot bytes
// served by the master after FULLRESYNC.
type Result struct {
	RDBPayload []byte
}

// dialTimeout bounds the handshake's blocking connect; the exchange itself
// has no per-step timeout beyond the underlying TCP connection.
const dialTimeout = 5 * time.Second

// Handshake dials masterAddr ("<host>:<port>") and runs the fixed
// PING -> REPLCONF listening-port -> REPLCONF capa psync2 -> PSYNC sequence,
// returning the RDB payload the master serves after FULLRESYNC. Any
// deviation from the expected sequence is returned as an error and is fatal
// to start-up; the caller is expected to abort the process rather than
// retry.
func Handshake(masterAddr string, ownPort uint16) (Result, error) {
	conn, err := net.DialTimeout("tcp", masterAddr, dialTimeout)
	if err != nil {
		return Result{}, fmt.Errorf("repl: dial master %s: %w", masterAddr, err)
	}
	defer conn.Close()

	buf := resp.NewBuffer()

	if err := step(conn, buf, ping(), isSimpleString("PONG")); err != nil {
		return Result{}, fmt.Errorf("repl: ping: %w", err)
	}
	if err := step(conn, buf, replconfListeningPort(ownPort), isSimpleString("OK")); err != nil {
		return Result{}, fmt.Errorf("repl: replconf listening-port: %w", err)
	}
	if err := step(conn, buf, replconfCapaPsync2(), isSimpleString("OK")); err != nil {
		return Result{}, fmt.Errorf("repl: replconf capa psync2: %w", err)
	}
	// The FULLRESYNC preamble is read as one opaque RESP frame and
	// discarded; only its presence is required, not its contents.
	if err := resp.Write(conn, psync()); err != nil {
		return Result{}, fmt.Errorf("repl: send psync: %w", err)
	}
	if _, ok, err := buf.ReadAndParse(conn); err != nil || !ok {
		return Result{}, fmt.Errorf("repl: read fullresync preamble: %w", err)
	}

	payload, err := buf.ReadRDBFile(conn)
	if err != nil {
		return Result{}, fmt.Errorf("repl: read rdb payload: %w", err)
	}
	return Result{RDBPayload: payload}, nil
}

func step(conn net.Conn, buf *resp.Buffer, req resp.Value, accept func(resp.Value) bool) error {
	if err := resp.Write(conn, req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	v, ok, err := buf.ReadAndParse(conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !ok {
		return ErrUnexpectedReply
	}
	if !accept(v) {
		return fmt.Errorf("%w: got %+v", ErrUnexpectedReply, v)
	}
	return nil
}

func isSimpleString(want string) func(resp.Value) bool {
	return func(v resp.Value) bool {
		return v.Kind == resp.KindSimpleString && string(v.Bytes) == want
	}
}

func ping() resp.Value {
	return resp.Array(resp.BulkStringFromString("PING"))
}

func replconfListeningPort(port uint16) resp.Value {
	return resp.Array(
		resp.BulkStringFromString("REPLCONF"),
		resp.BulkStringFromString("listening-port"),
		resp.BulkStringFromString(strconv.Itoa(int(port))),
	)
}

func replconfCapaPsync2() resp.Value {
	return resp.Array(
		resp.BulkStringFromString("REPLCONF"),
		resp.BulkStringFromString("capa"),
		resp.BulkStringFromString("psync2"),
	)
}

func psync() resp.Value {
	return resp.Array(
		resp.BulkStringFromString("PSYNC"),
		resp.BulkStringFromString("?"),
		resp.BulkStringFromString("-1"),
	)
}

// ParseReplicaOf splits a "--replicaof" value of the form "<host> <port>"
// into a dialable "host:port" address.
func ParseReplicaOf(s string) (addr string, err error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", fmt.Errorf("repl: malformed replicaof %q: want \"<host> <port>\"", s)
	}
	if _, err := strconv.ParseUint(fields[1], 10, 16); err != nil {
		return "", fmt.Errorf("repl: malformed replicaof port %q: %w", fields[1], err)
	}
	return net.JoinHostPort(fields[0], fields[1]), nil
}
