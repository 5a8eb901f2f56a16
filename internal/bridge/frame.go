// Package bridge implements the byte-channel protocol that delivers compiled
// sources from the coordinator to a worker that is blocked inside a module load.
//
// A response is two frames, each a 4-byte big-endian length followed by that
// many bytes: the compiled code, then its position map. A zero-length code
// frame means "no artifact" and the worker loads the file natively.
package bridge

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"syscall"

	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/zerr"
)

const lengthPrefixSize = 4

// Response is one decoded bridge exchange.
type Response struct {
	// Code is the compiled source. It is nil when Found is false.
	Code []byte
	// Map is the serialized position map, nil when absent.
	Map []byte
	// Found reports whether the coordinator supplied an artifact.
	Found bool
}

// WriteResponse writes the two frames of one exchange in a single write.
// A write to a worker that has already exited returns an error wrapping
// domain.ErrWorkerGone.
func WriteResponse(w io.Writer, code, posMap []byte) error {
	if uint64(len(code)) > math.MaxUint32 || uint64(len(posMap)) > math.MaxUint32 {
		return zerr.With(domain.ErrFrameTooLarge, "size", len(code)+len(posMap))
	}

	buf := make([]byte, 0, 2*lengthPrefixSize+len(code)+len(posMap))
	buf = appendFrame(buf, code)
	buf = appendFrame(buf, posMap)

	if _, err := w.Write(buf); err != nil {
		if isGone(err) {
			return errors.Join(domain.ErrWorkerGone, err)
		}
		return zerr.Wrap(err, "failed to write bridge response")
	}
	return nil
}

// ReadResponse blocks until both frames of one exchange have arrived.
// Short reads are retried until each declared length is satisfied; a channel
// that closes mid-frame yields an error wrapping domain.ErrFrameTruncated.
func ReadResponse(r io.Reader) (Response, error) {
	code, err := readFrame(r)
	if err != nil {
		return Response{}, err
	}
	posMap, err := readFrame(r)
	if err != nil {
		return Response{}, err
	}
	if len(code) == 0 {
		return Response{Map: posMap}, nil
	}
	return Response{Code: code, Map: posMap, Found: true}, nil
}

//nolint:gosec // length is bounds-checked by WriteResponse
func appendFrame(buf, payload []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

func readFrame(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, readError(err)
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, nil
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, readError(err)
	}
	return payload, nil
}

func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Join(domain.ErrFrameTruncated, err)
	}
	return zerr.Wrap(err, "failed to read bridge response")
}

// isGone reports whether a write failed because the reading side went away.
func isGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}
