package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/finchkv/finch/internal/resp"
)

func handlePing(_ *Deps, args []Value) (Result, error) {
	if len(args) > 0 {
		return Result{Value: resp.BulkString(args[0].Bytes)}, nil
	}
	return Result{Value: resp.SimpleString("PONG")}, nil
}

func handleEcho(_ *Deps, args []Value) (Result, error) {
	if len(args) != 1 {
		return Result{Value: wrongArgs("echo")}, nil
	}
	return Result{Value: resp.BulkString(args[0].Bytes)}, nil
}

func handleSet(deps *Deps, args []Value) (Result, error) {
	if len(args) < 2 {
		return Result{Value: wrongArgs("set")}, nil
	}
	key, value := args[0].Bytes, args[1].Bytes

	var ttl time.Duration
	hasTTL := false
	if len(args) > 2 {
		option := strings.ToUpper(string(args[2].Bytes))
		if option != "PX" {
			// An unrecognized third argument is fatal to this connection,
			// matching the observed source's behavior of killing the
			// connection's task outright rather than replying in-band.
			return Result{Close: true, NoReply: true}, nil
		}
		if len(args) != 4 {
			return Result{Value: wrongArgs("set")}, nil
		}
		ms, err := strconv.ParseInt(string(args[3].Bytes), 10, 64)
		if err != nil || ms < 0 {
			return Result{Value: resp.SimpleError("ERR value is not an integer or out of range")}, nil
		}
		ttl = time.Duration(ms) * time.Millisecond
		hasTTL = true
	}

	deps.Keyspace.Set(key, value, ttl, hasTTL)
	return Result{Value: resp.SimpleString("OK")}, nil
}

func handleGet(deps *Deps, args []Value) (Result, error) {
	if len(args) != 1 {
		return Result{Value: wrongArgs("get")}, nil
	}
	value, ok := deps.Keyspace.Get(args[0].Bytes)
	if !ok {
		return Result{Value: resp.NullBulkString()}, nil
	}
	return Result{Value: resp.BulkString(value)}, nil
}

func handleKeys(deps *Deps, args []Value) (Result, error) {
	if len(args) != 1 {
		return Result{Value: wrongArgs("keys")}, nil
	}
	// The pattern argument is accepted but never matched against; KEYS
	// always returns every live key.
	live := deps.Keyspace.Keys()
	items := make([]Value, len(live))
	for i, k := range live {
		items[i] = resp.BulkString(k)
	}
	return Result{Value: resp.Array(items...)}, nil
}

var recognizedConfigKeys = map[string]func(*Deps) string{
	"dir":        func(d *Deps) string { return d.Config.Snapshot.Dir },
	"dbfilename": func(d *Deps) string { return d.Config.Snapshot.DBFilename },
}

func handleConfig(deps *Deps, args []Value) (Result, error) {
	if len(args) < 1 {
		return Result{Value: wrongArgs("config")}, nil
	}
	sub := strings.ToUpper(string(args[0].Bytes))
	if sub != "GET" {
		return Result{Value: resp.SimpleError("ERR unknown CONFIG subcommand '" + string(args[0].Bytes) + "'")}, nil
	}
	if deps.Config.Snapshot == nil {
		return Result{Value: resp.SimpleError("ERR no configuration loaded")}, nil
	}

	var items []Value
	for _, keyArg := range args[1:] {
		key := strings.ToLower(string(keyArg.Bytes))
		getValue, ok := recognizedConfigKeys[key]
		if !ok {
			continue
		}
		items = append(items, resp.BulkStringFromString(key), resp.BulkStringFromString(getValue(deps)))
	}
	return Result{Value: resp.Array(items...)}, nil
}

func handleInfo(deps *Deps, _ []Value) (Result, error) {
	var b strings.Builder
	if deps.Server.IsMaster() {
		b.WriteString("role:master\r\n")
		b.WriteString("master_replid:" + deps.Server.ReplID + "\r\n")
		b.WriteString("master_repl_offset:" + strconv.FormatInt(deps.Server.Offset, 10) + "\r\n")
	} else {
		b.WriteString("role:slave\r\n")
		b.WriteString("master_replid:" + deps.Server.ReplID + "\r\n")
		b.WriteString("master_repl_offset:" + strconv.FormatInt(deps.Server.MasterReplOffset, 10) + "\r\n")
		b.WriteString("slave_repl_offset:" + strconv.FormatInt(deps.Server.SlaveReplOffset, 10) + "\r\n")
		b.WriteString("master_replid2:" + deps.Server.BackupReplID + "\r\n")
		secondOffset := int64(-1)
		if deps.Server.HasBackupOffset {
			secondOffset = deps.Server.BackupOffset
		}
		b.WriteString("second_repl_offset:" + strconv.FormatInt(secondOffset, 10) + "\r\n")
	}
	return Result{Value: resp.BulkStringFromString(b.String())}, nil
}

func handleReplConf(_ *Deps, _ []Value) (Result, error) {
	return Result{Value: resp.SimpleString("OK")}, nil
}

func handlePsync(deps *Deps, _ []Value) (Result, error) {
	out := resp.RawFullResync(deps.Server.ReplID, deps.Server.Offset)
	out = append(out, resp.RawBulkHeader(len(deps.RDBPayload))...)
	out = append(out, deps.RDBPayload...)
	return Result{Raw: out}, nil
}

func wrongArgs(cmd string) Value {
	return resp.SimpleError("ERR wrong number of arguments for '" + cmd + "' command")
}
