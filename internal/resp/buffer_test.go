package resp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferFeedSingleFrame(t *testing.T) {
	b := NewBuffer()
	values, err := b.Feed([]byte("+PONG\r\n"))
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.True(t, SimpleString("PONG").Equal(values[0]))
}

func TestBufferFeedSplitAcrossCalls(t *testing.T) {
	b := NewBuffer()
	values, err := b.Feed([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfo"))
	require.NoError(t, err)
	assert.Empty(t, values)

	values, err = b.Feed([]byte("o\r\n"))
	require.NoError(t, err)
	require.Len(t, values, 1)
	want := Array(BulkStringFromString("GET"), BulkStringFromString("foo"))
	assert.True(t, want.Equal(values[0]))
}

func TestBufferFeedPipelinedCommands(t *testing.T) {
	b := NewBuffer()
	wire := append(Encode(SimpleString("PONG")), Encode(SimpleString("OK"))...)
	values, err := b.Feed(wire)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.True(t, SimpleString("PONG").Equal(values[0]))
	assert.True(t, SimpleString("OK").Equal(values[1]))
}

func TestBufferFeedRetainsSuffixOnProtocolError(t *testing.T) {
	b := NewBuffer()
	values, err := b.Feed([]byte("+OK\r\n@bad"))
	require.Len(t, values, 1)
	assert.True(t, SimpleString("OK").Equal(values[0]))
	var perr *ErrProtocol
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "@bad", b.buf.String())
}

func TestReadAndParseOverLoopback(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.SetWriteDeadline(time.Now().Add(time.Second))
		client.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	}()

	b := NewBuffer()
	v, ok, err := b.ReadAndParse(server)
	require.NoError(t, err)
	require.True(t, ok)
	want := Array(BulkStringFromString("PING"))
	assert.True(t, want.Equal(v))
}

func TestReadRDBFile(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("REDIS0011some-bytes-no-crlf-after")
	go func() {
		client.SetWriteDeadline(time.Now().Add(time.Second))
		client.Write(RawBulkHeader(len(payload)))
		client.Write(payload)
	}()

	b := NewBuffer()
	got, err := b.ReadRDBFile(server)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
