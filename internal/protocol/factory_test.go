package protocol

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dp800ctl/internal/model"
)

func TestCreateProtocol(t *testing.T) {
	logger := zap.NewNop()

	p, err := CreateProtocol(Endpoint{Type: model.ConnectionTypeTCP, Host: "10.0.0.1", Port: 5555, Timeout: time.Second}, logger)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionTypeTCP, p.GetProtocolType())
	assert.Equal(t, "10.0.0.1:5555", p.Address())

	p, err = CreateProtocol(Endpoint{Type: model.ConnectionTypeSerial, Device: "/dev/ttyUSB0", BaudRate: 9600, Timeout: time.Second}, logger)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionTypeSerial, p.GetProtocolType())
	assert.False(t, p.IsOpen())
}

func TestCreateProtocol_Invalid(t *testing.T) {
	tests := []Endpoint{
		{Type: model.ConnectionTypeTCP, Port: 5555},
		{Type: model.ConnectionTypeTCP, Host: "h", Port: 0},
		{Type: model.ConnectionTypeSerial, BaudRate: 9600},
		{Type: model.ConnectionTypeSerial, Device: "/dev/ttyS0", BaudRate: 1234},
		{Type: "USB"},
	}
	for _, ep := range tests {
		_, err := CreateProtocol(ep, zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, model.KindConfiguration, model.KindOf(err))
	}
}

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestTCPConnection_WriteRead(t *testing.T) {
	ln, port := listen(t)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("echo:" + line))
	}()

	tc := NewTCPConnection(&TCPConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second, ReadTimeout: time.Second}, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, tc.Open(ctx))
	defer tc.Close()

	require.NoError(t, tc.Write(ctx, []byte("*IDN?\n")))
	var data []byte
	for !strings.HasSuffix(string(data), "\n") {
		chunk, err := tc.Read(ctx, 64)
		require.NoError(t, err)
		data = append(data, chunk...)
	}
	assert.Equal(t, "echo:*IDN?\n", string(data))

	stats := tc.Stats()
	assert.EqualValues(t, 6, stats.BytesWritten)
	assert.True(t, stats.IsConnected)

	// server closed its side
	_, err := tc.Read(ctx, 64)
	assert.True(t, errors.Is(err, io.EOF))

	require.NoError(t, tc.Close())
	require.NoError(t, tc.Close())
	assert.False(t, tc.IsOpen())
}

func TestTCPConnection_ReadTimeout(t *testing.T) {
	ln, port := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			time.Sleep(time.Second)
			conn.Close()
		}
	}()

	tc := NewTCPConnection(&TCPConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second, ReadTimeout: 50 * time.Millisecond}, zap.NewNop())
	require.NoError(t, tc.Open(context.Background()))
	defer tc.Close()

	_, err := tc.Read(context.Background(), 16)
	require.Error(t, err)
	assert.Equal(t, model.KindConnection, model.KindOf(err))
	assert.ErrorIs(t, err, model.ErrTimeout)
}

func TestTCPConnection_ContextCancel(t *testing.T) {
	ln, port := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			time.Sleep(time.Second)
			conn.Close()
		}
	}()

	tc := NewTCPConnection(&TCPConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second, ReadTimeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, tc.Open(context.Background()))
	defer tc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tc.Read(ctx, 16)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, model.KindConnection, model.KindOf(err))
}

func TestTCPConnection_RefusedIsConnectionError(t *testing.T) {
	ln, port := listen(t)
	ln.Close()

	tc := NewTCPConnection(&TCPConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second}, zap.NewNop())
	err := tc.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.KindConnection, model.KindOf(err))
	assert.Contains(t, err.Error(), "127.0.0.1:"+strconv.Itoa(port))
}

func TestTCPConnection_NotOpen(t *testing.T) {
	tc := NewTCPConnection(&TCPConfig{Host: "127.0.0.1", Port: 1}, zap.NewNop())
	assert.ErrorIs(t, tc.Write(context.Background(), []byte("x")), model.ErrNotConnected)
	_, err := tc.Read(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrNotConnected)
}
