package scpi

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"dp800ctl/internal/model"
)

// MaxBlockSize bounds the declared length of a binary block. A DP800 BMP
// screenshot is about 1.1 MB.
const MaxBlockSize = 64 << 20

// ReadBlock reads an IEEE 488.2 definite-length block: '#', one digit n,
// n digits of length, then exactly length bytes. Anything after the payload
// (usually a newline) is left in r.
func ReadBlock(r *bufio.Reader) ([]byte, error) {
	length, err := readBlockHeader(r)
	if err != nil {
		return nil, err
	}

	data := make([]byte, length)
	n, err := io.ReadFull(r, data)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: declared %d bytes, received %d", model.ErrTruncatedBlock, length, n)
		}
		return nil, fmt.Errorf("%w: declared %d bytes, received %d: %w", model.ErrTruncatedBlock, length, n, err)
	}
	return data, nil
}

func readBlockHeader(r *bufio.Reader) (int, error) {
	hash, err := r.ReadByte()
	if err != nil {
		return 0, headerReadError(err)
	}
	if hash != '#' {
		return 0, fmt.Errorf("%w: block must start with '#', got %q", model.ErrMalformedReply, hash)
	}

	countDigit, err := r.ReadByte()
	if err != nil {
		return 0, headerReadError(err)
	}
	if countDigit == '0' {
		return 0, fmt.Errorf("%w: indefinite-length block (#0) is not supported", model.ErrMalformedReply)
	}
	if countDigit < '1' || countDigit > '9' {
		return 0, fmt.Errorf("%w: invalid length digit count %q", model.ErrMalformedReply, countDigit)
	}

	digits := make([]byte, int(countDigit-'0'))
	if _, err := io.ReadFull(r, digits); err != nil {
		return 0, headerReadError(err)
	}

	length := 0
	for _, d := range digits {
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("%w: header declares %c length digits but found %q",
				model.ErrMalformedReply, countDigit, digits)
		}
		length = length*10 + int(d-'0')
	}

	if length > MaxBlockSize {
		return 0, fmt.Errorf("%w: block length %d exceeds %d", model.ErrMalformedReply, length, MaxBlockSize)
	}
	return length, nil
}

func headerReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reply ended inside block header", model.ErrMalformedReply)
	}
	return err
}

// EncodeBlock wraps data in a definite-length block header
func EncodeBlock(data []byte) []byte {
	length := fmt.Sprintf("%d", len(data))
	out := make([]byte, 0, 2+len(length)+len(data))
	out = append(out, '#', byte('0'+len(length)))
	out = append(out, length...)
	return append(out, data...)
}
