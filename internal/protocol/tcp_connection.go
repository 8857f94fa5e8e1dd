// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"dp800ctl/internal/model"
)

// TCPConnection implements DeviceProtocol for raw SCPI sockets (port 5555 on DP800)
type TCPConnection struct {
	config *TCPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
	stats  ProtocolStats
}

// NewTCPConnection creates a new TCP connection
func NewTCPConnection(config *TCPConfig, logger *zap.Logger) *TCPConnection {
	return &TCPConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Address returns host:port
func (tc *TCPConnection) Address() string {
	return net.JoinHostPort(tc.config.Host, strconv.Itoa(tc.config.Port))
}

// Open opens the TCP connection
func (tc *TCPConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.isOpen {
		return nil
	}

	tc.logger.Debug("Opening TCP connection")

	dialer := &net.Dialer{
		Timeout: tc.config.Timeout,
	}
	if tc.config.KeepAlive {
		dialer.KeepAlive = 30 * time.Second
	}

	address := tc.Address()
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		tc.logger.Debug("Failed to open TCP connection", zap.Error(err))
		if isTimeout(err) {
			err = fmt.Errorf("%w after %s: %v", model.ErrTimeout, tc.config.Timeout, err)
		}
		return model.NewError(model.KindConnection, "connect to "+address, err)
	}

	tc.conn = conn
	tc.isOpen = true
	tc.stats.IsConnected = true
	tc.stats.LastActivity = time.Now()

	tc.logger.Debug("TCP connection opened successfully")
	return nil
}

// Close closes the TCP connection; closing twice is a no-op
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil
	}

	err := tc.conn.Close()
	tc.conn = nil
	tc.isOpen = false
	tc.stats.IsConnected = false

	if err != nil {
		tc.logger.Warn("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tc.logger.Debug("TCP connection closed",
		zap.Int64("bytes_written", tc.stats.BytesWritten),
		zap.Int64("bytes_read", tc.stats.BytesRead),
		zap.Int64("operations", tc.stats.OperationCount),
	)
	return nil
}

// IsOpen returns whether the connection is open
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.isOpen && tc.conn != nil
}

// Write writes data to the TCP connection
func (tc *TCPConnection) Write(ctx context.Context, data []byte) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return model.NewError(model.KindConnection, "write", model.ErrNotConnected)
	}

	select {
	case <-ctx.Done():
		return model.NewError(model.KindConnection, "write", ctx.Err())
	default:
	}

	if tc.config.WriteTimeout > 0 {
		tc.conn.SetWriteDeadline(time.Now().Add(tc.config.WriteTimeout))
	}

	startTime := time.Now()
	n, err := tc.conn.Write(data)
	if err != nil {
		tc.stats.ErrorCount++
		if isTimeout(err) {
			err = fmt.Errorf("%w: %v", model.ErrTimeout, err)
		}
		return model.NewError(model.KindConnection, "write", err)
	}

	if n != len(data) {
		return model.NewError(model.KindConnection, "write",
			fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data)))
	}

	tc.stats.BytesWritten += int64(len(data))
	tc.stats.OperationCount++
	tc.stats.LastActivity = time.Now()
	tc.stats.updateAverageLatency(time.Since(startTime))

	return nil
}

// Read reads up to maxBytes. A peer close is reported as io.EOF so the caller
// can tell a short reply from a broken link.
func (tc *TCPConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil, model.NewError(model.KindConnection, "read", model.ErrNotConnected)
	}

	if tc.config.ReadTimeout > 0 {
		tc.conn.SetReadDeadline(time.Now().Add(tc.config.ReadTimeout))
	}

	conn := tc.conn
	buffer := make([]byte, maxBytes)

	done := make(chan struct {
		data []byte
		err  error
	}, 1)

	go func() {
		n, err := conn.Read(buffer)
		result := struct {
			data []byte
			err  error
		}{}

		if n > 0 {
			result.data = make([]byte, n)
			copy(result.data, buffer[:n])
		}
		if err != nil && n == 0 {
			result.err = err
		}
		done <- result
	}()

	select {
	case result := <-done:
		if result.err != nil {
			tc.stats.ErrorCount++
			return nil, tc.classifyReadError(result.err)
		}

		tc.stats.BytesRead += int64(len(result.data))
		tc.stats.OperationCount++
		tc.stats.LastActivity = time.Now()

		return result.data, nil

	case <-ctx.Done():
		// unblock the reader goroutine; the caller still closes the connection
		conn.SetReadDeadline(time.Now())
		return nil, model.NewError(model.KindConnection, "read", ctx.Err())
	}
}

func (tc *TCPConnection) classifyReadError(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return fmt.Errorf("connection closed by peer: %w", io.EOF)
	case isTimeout(err):
		return model.NewError(model.KindConnection, "read",
			fmt.Errorf("%w: no reply within %s", model.ErrTimeout, tc.config.ReadTimeout))
	default:
		return model.NewError(model.KindConnection, "read", err)
	}
}

// GetProtocolType returns the protocol type
func (tc *TCPConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeTCP
}

// Stats returns a copy of the connection statistics
func (tc *TCPConnection) Stats() ProtocolStats {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.stats
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
