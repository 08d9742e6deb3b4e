// Command finch runs a minimal, Redis-compatible RESP server: it answers
// PING/ECHO/SET/GET/KEYS/CONFIG GET/INFO over TCP, optionally bootstraps its
// keyspace from an RDB snapshot, and optionally replicates from a master via
// the PSYNC full-resync handshake before it starts serving its own clients.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/finchkv/finch/internal/command"
	"github.com/finchkv/finch/internal/config"
	"github.com/finchkv/finch/internal/keyspace"
	"github.com/finchkv/finch/internal/logging"
	"github.com/finchkv/finch/internal/rdb"
	"github.com/finchkv/finch/internal/repl"
	"github.com/finchkv/finch/internal/server"
	"github.com/finchkv/finch/internal/transport"
)

// emptyRDB is the canonical empty-database RDB image served after
// FULLRESYNC when no snapshot was loaded: a header, a database-size marker
// with both sizes zero, and the end-of-file marker.
var emptyRDB = []byte{
	'R', 'E', 'D', 'I', 'S', '0', '0', '1', '1',
	0xFB, 0x00, 0x00,
	0xFF,
}

func main() {
	var (
		dir        string
		dbFilename string
		port       uint
		replicaOf  string
		logLevel   string
		logFile    string
		multicore  bool
		maxConns   int
	)
	flag.StringVar(&dir, "dir", "", "directory containing the RDB snapshot file")
	flag.StringVar(&dbFilename, "dbfilename", "", "RDB snapshot file name")
	flag.UintVar(&port, "port", 6379, "TCP port to listen on")
	flag.StringVar(&replicaOf, "replicaof", "", "replicate from \"<host> <port>\"")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flag.StringVar(&logFile, "log-file", "", "optional size-rotated log file path")
	flag.BoolVar(&multicore, "multicore", true, "enable multiple transport event loops")
	flag.IntVar(&maxConns, "max-connections", 0, "max simultaneous connections, 0 = unlimited")
	flag.Parse()

	cfg := &config.Config{
		Port:      uint16(port),
		ReplicaOf: replicaOf,
		Multicore: multicore,
		MaxConns:  maxConns,
		LogLevel:  logLevel,
		LogFile:   logFile,
	}
	if dir != "" && dbFilename != "" {
		cfg.Snapshot = &config.Snapshot{Dir: dir, DBFilename: dbFilename}
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "finch: build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("finch: fatal", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ks, rdbPayload := bootstrapKeyspace(cfg, log)

	var srvCtx *server.Context
	if cfg.ReplicaOf != "" {
		ctx, payload, err := bootstrapReplica(cfg, log)
		if err != nil {
			return fmt.Errorf("replica bootstrap: %w", err)
		}
		srvCtx = ctx
		rdbPayload = payload
	} else {
		ctx, err := server.NewMaster()
		if err != nil {
			return fmt.Errorf("master identity: %w", err)
		}
		srvCtx = ctx
		log.Info("booted as master", zap.String("replid", ctx.ReplID))
	}

	deps := &command.Deps{
		Keyspace:   ks,
		Config:     cfg,
		Server:     srvCtx,
		RDBPayload: rdbPayload,
	}

	transportServer := transport.New(deps, log, transport.Options{
		Multicore:      cfg.Multicore,
		MaxConnections: cfg.MaxConns,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	log.Info("listening", zap.String("addr", addr))
	return transport.ListenAndServe(addr, transportServer)
}

// bootstrapKeyspace loads the RDB snapshot named by cfg, if configured. Any
// failure to open or fully parse the file starts the server with empty
// stores rather than aborting, per the snapshot-error policy.
func bootstrapKeyspace(cfg *config.Config, log *zap.Logger) (*keyspace.Keyspace, []byte) {
	if cfg.Snapshot == nil {
		return keyspace.New(), emptyRDB
	}

	path := cfg.Snapshot.Path()
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("snapshot file unreadable, starting with empty stores", zap.String("path", path), zap.Error(err))
		return keyspace.New(), emptyRDB
	}

	snap, err := rdb.Decode(raw)
	if err != nil {
		log.Warn("snapshot did not parse to completion, starting with empty stores", zap.String("path", path), zap.Error(err))
		return keyspace.New(), emptyRDB
	}

	log.Info("snapshot loaded", zap.String("path", path), zap.Int("keys", len(snap.Main)))
	return keyspace.NewFromSnapshot(snap.Main, snap.Expiry), raw
}

// bootstrapReplica runs the replication handshake against cfg.ReplicaOf and
// builds the replica's server identity. Any failure here is fatal to
// start-up, per the handshake error policy.
func bootstrapReplica(cfg *config.Config, log *zap.Logger) (*server.Context, []byte, error) {
	masterAddr, err := repl.ParseReplicaOf(cfg.ReplicaOf)
	if err != nil {
		return nil, nil, err
	}

	log.Info("starting replica handshake", zap.String("master", masterAddr))
	result, err := repl.Handshake(masterAddr, cfg.Port)
	if err != nil {
		return nil, nil, err
	}

	ctx, err := server.NewReplica()
	if err != nil {
		return nil, nil, err
	}
	log.Info("replica handshake complete", zap.Int("rdb_bytes", len(result.RDBPayload)))
	return ctx, result.RDBPayload, nil
}
