// Package scpi frames SCPI commands and replies over a DeviceProtocol.
//
// Commands are written with a trailing newline. Text replies end at the next
// newline. Binary replies use IEEE 488.2 definite-length blocks and are
// delimited by their declared size, never by a terminator.
package scpi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"dp800ctl/internal/model"
	"dp800ctl/internal/protocol"
	"dp800ctl/internal/utils"
)

const (
	// Terminator ends every command and text reply
	Terminator = "\n"

	// IdentifyQuery is the IEEE 488.2 identification query
	IdentifyQuery = "*IDN?"

	readChunk = 4096
)

// Session exchanges commands with one instrument. It is not safe for
// concurrent use; commands are strictly sequential.
type Session struct {
	proto  protocol.DeviceProtocol
	src    *protocolReader
	reader *bufio.Reader
	logger *utils.DeviceLogger

	// a block's trailing newline that had not arrived when the block was read
	pendingTerminator bool
}

// protocolReader adapts DeviceProtocol.Read to io.Reader for the current call's context
type protocolReader struct {
	ctx   context.Context
	proto protocol.DeviceProtocol

	// bytes received since the last command was written
	received int
}

func (r *protocolReader) Read(p []byte) (int, error) {
	n := len(p)
	if n > readChunk {
		n = readChunk
	}
	data, err := r.proto.Read(r.ctx, n)
	if err != nil {
		return 0, err
	}
	n = copy(p, data)
	r.received += n
	return n, nil
}

// NewSession wraps an open protocol
func NewSession(proto protocol.DeviceProtocol, logger *zap.Logger) *Session {
	src := &protocolReader{ctx: context.Background(), proto: proto}
	return &Session{
		proto:  proto,
		src:    src,
		reader: bufio.NewReaderSize(src, readChunk),
		logger: utils.NewDeviceLogger(logger, proto.Address(), string(proto.GetProtocolType())),
	}
}

// Send writes one command that produces no reply
func (s *Session) Send(ctx context.Context, command string) error {
	start := time.Now()
	err := s.write(ctx, command)
	s.logger.LogCommand(command, "", time.Since(start), err)
	return err
}

// Query writes a command and returns its text reply without the terminator
func (s *Session) Query(ctx context.Context, command string) (string, error) {
	start := time.Now()
	reply, err := s.query(ctx, command)
	s.logger.LogCommand(command, reply, time.Since(start), err)
	return reply, err
}

func (s *Session) query(ctx context.Context, command string) (string, error) {
	if err := s.write(ctx, command); err != nil {
		return "", err
	}

	s.src.ctx = ctx
	line, err := s.reader.ReadString('\n')
	if err == nil && s.pendingTerminator && line == Terminator {
		line, err = s.reader.ReadString('\n')
	}
	s.pendingTerminator = false
	if err != nil {
		if line != "" && timedOut(err) {
			// part of the reply arrived but its terminator never did
			return "", model.NewError(model.KindProtocol, "query "+command,
				fmt.Errorf("%w: reply not terminated by newline after %q: %v", model.ErrMalformedReply, line, err))
		}
		return "", replyError(command, err, "reply not terminated by newline")
	}

	reply := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(reply) == "" {
		return "", model.NewError(model.KindProtocol, "query "+command, model.ErrEmptyReply)
	}
	return reply, nil
}

// QueryBinary writes a command and returns the payload of its binary block reply
func (s *Session) QueryBinary(ctx context.Context, command string) ([]byte, error) {
	start := time.Now()

	if err := s.write(ctx, command); err != nil {
		s.logger.LogCommand(command, "", time.Since(start), err)
		return nil, err
	}

	s.src.ctx = ctx
	data, err := ReadBlock(s.reader)
	if err != nil {
		err = s.blockError(command, err)
	} else if s.reader.Buffered() > 0 {
		if b, _ := s.reader.Peek(1); len(b) == 1 && b[0] == '\n' {
			s.reader.Discard(1)
		}
	} else {
		s.pendingTerminator = true
	}
	s.logger.LogCommand(command, fmt.Sprintf("<%d bytes>", len(data)), time.Since(start), err)
	return data, err
}

func (s *Session) write(ctx context.Context, command string) error {
	if strings.ContainsAny(command, "\r\n") {
		return model.NewError(model.KindValidation, "send",
			fmt.Errorf("%w: command contains a line terminator", model.ErrInvalidValue))
	}
	// drop leftovers of an earlier reply so they are not read as this one
	if n := s.reader.Buffered(); n > 0 {
		s.reader.Discard(n)
	}
	s.src.received = 0
	return s.proto.Write(ctx, []byte(command+Terminator))
}

// blockError reports a block that stopped arriving part way as a protocol error.
// A timeout before any byte arrived stays a connection error.
func (s *Session) blockError(command string, err error) error {
	if s.src.received == 0 || !timedOut(err) {
		return replyError(command, err, "")
	}
	if !errors.Is(err, model.ErrTruncatedBlock) {
		err = fmt.Errorf("%w: reply ended inside block header: %v", model.ErrMalformedReply, err)
	}
	return model.NewError(model.KindProtocol, "query "+command, err)
}

func timedOut(err error) bool {
	return model.IsKind(err, model.KindConnection) && errors.Is(err, model.ErrTimeout)
}

// replyError keeps transport errors as they are and turns everything else into a protocol error
func replyError(command string, err error, eofReason string) error {
	if model.KindOf(err) != model.KindUnknown {
		return err
	}
	if errors.Is(err, io.EOF) && eofReason != "" {
		err = fmt.Errorf("%w: %s", model.ErrMalformedReply, eofReason)
	}
	return model.NewError(model.KindProtocol, "query "+command, err)
}
