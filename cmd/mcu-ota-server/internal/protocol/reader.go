package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Reader reassembles frames from a byte stream. A single read from the
// network may carry a partial frame or several frames, so frame boundaries
// are taken from the header instead of the read calls.
type Reader struct {
	r       *bufio.Reader
	skipped int
}

// NewReader creates a frame reader on top of r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, HeaderSize+MaxPayloadSize+1)}
}

// Skipped returns how many bytes were discarded while looking for the magic of
// the frame returned last.
func (r *Reader) Skipped() int {
	return r.skipped
}

// ReadFrame returns the next complete request frame including magic and checksum.
//
// The payload length is the larger of the declared length and the fixed payload
// size of the packet type, so a device sending a too small length field does not
// desynchronise the stream. A declared length above MaxPayloadSize is answered
// with a LengthError, the offending header is dropped and the reader resyncs on
// the next magic.
func (r *Reader) ReadFrame() ([]byte, error) {
	if err := r.sync(); err != nil {
		return nil, err
	}

	var hdr [3]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return nil, unexpected(err)
	}

	declared := int(binary.BigEndian.Uint16(hdr[1:3]))
	if declared > MaxPayloadSize {
		return nil, NewError(LengthError, "declared payload of %d bytes exceeds %d", declared, MaxPayloadSize)
	}
	n := declared
	if t, err := ParsePacketType(hdr[0]); err == nil {
		n = max(n, t.PayloadSize())
	}

	frame := make([]byte, HeaderSize+n+1)
	frame[0], frame[1] = Magic0, Magic1
	copy(frame[2:HeaderSize], hdr[:])
	if _, err := io.ReadFull(r.r, frame[HeaderSize:]); err != nil {
		return nil, unexpected(err)
	}
	return frame, nil
}

// ReadResponse returns the next complete response frame, error responses included.
func (r *Reader) ReadResponse() ([]byte, error) {
	if err := r.sync(); err != nil {
		return nil, err
	}

	t, err := r.r.ReadByte()
	if err != nil {
		return nil, unexpected(err)
	}
	if t >= byte(CrcMismatch) {
		c, err := r.r.ReadByte()
		if err != nil {
			return nil, unexpected(err)
		}
		return []byte{Magic0, Magic1, t, c}, nil
	}

	var l [2]byte
	if _, err := io.ReadFull(r.r, l[:]); err != nil {
		return nil, unexpected(err)
	}
	n := int(binary.BigEndian.Uint16(l[:]))
	frame := make([]byte, HeaderSize+n+1)
	frame[0], frame[1], frame[2], frame[3], frame[4] = Magic0, Magic1, t, l[0], l[1]
	if _, err := io.ReadFull(r.r, frame[HeaderSize:]); err != nil {
		return nil, unexpected(err)
	}
	return frame, nil
}

// sync consumes bytes up to and including the next magic.
func (r *Reader) sync() error {
	read := 0
	prev := byte(0)
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			r.skipped = read
			if read > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		read++
		if read >= 2 && prev == Magic0 && b == Magic1 {
			r.skipped = read - 2
			return nil
		}
		prev = b
	}
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
