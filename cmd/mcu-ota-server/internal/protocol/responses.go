package protocol

import (
	"encoding/binary"
	"time"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
)

const (
	humanPresent byte = 0xA0
	humanAbsent  byte = 0xA1
)

// EncodeError builds an error response.
func EncodeError(code ErrorCode) []byte {
	frame := []byte{Magic0, Magic1, byte(code)}
	return append(frame, Checksum(frame))
}

// EncodeFirmwareInfo answers a firmware query with code, version and size.
func EncodeFirmwareInfo(info ota.Info) []byte {
	p := appendFirmware(make([]byte, 0, 9), info.Code, info.Version)
	p = binary.BigEndian.AppendUint32(p, info.Size)
	return encode(FirmwareQuery.Response(), p)
}

// EncodeFirmwareData answers a download request with one slice of the image.
// A slice that does not fit into the length field is a LengthError.
func EncodeFirmwareData(info ota.Info, index uint16, data []byte) ([]byte, error) {
	if len(data) > MaxSliceSize {
		return nil, NewError(LengthError, "slice of %d bytes exceeds the maximum of %d", len(data), MaxSliceSize)
	}
	p := appendFirmware(make([]byte, 0, dataResponseHeaderSize+len(data)), info.Code, info.Version)
	p = binary.BigEndian.AppendUint16(p, index)
	p = append(p, data...)
	return encode(FirmwareDownload.Response(), p), nil
}

// EncodeDownloadEnd acknowledges the end of a download.
func EncodeDownloadEnd(info ota.Info) []byte {
	return encode(DownloadEnd.Response(), appendFirmware(make([]byte, 0, 5), info.Code, info.Version))
}

// EncodeConfig answers a config query.
//
//	[GROUP][OPCODE][YY][MM][DD][HH][MM][SS][INTERVAL][TMAX(2)][TMIN(2)][HUMAN]
func EncodeConfig(cfg ota.DeviceConfig) []byte {
	p := make([]byte, 0, 14)
	p = append(p, cfg.GroupID, cfg.OpCode)
	p = append(p, encodeTimestamp(cfg.SyncTime)...)
	p = append(p, cfg.Interval)
	p = binary.BigEndian.AppendUint16(p, uint16(cfg.TempMax))
	p = binary.BigEndian.AppendUint16(p, uint16(cfg.TempMin))
	if cfg.Human {
		p = append(p, humanPresent)
	} else {
		p = append(p, humanAbsent)
	}
	return encode(QueryConfig.Response(), p)
}

// encodeTimestamp writes yy mm dd HH MM SS in UTC. Sensor firmware decodes yy
// as the last two digits of the year, so 2024 goes out as 24 and not as the
// high byte of the 16 bit year (0x07).
func encodeTimestamp(t time.Time) []byte {
	t = t.UTC()
	return []byte{
		byte(t.Year() % 100),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
}

// Response is a decoded server response, used by clients and tests.
type Response struct {
	// Type is the response type byte, or the error code for error responses.
	Type    byte
	Payload []byte
	Error   bool
}

// DecodeResponse validates a complete response frame.
func DecodeResponse(frame []byte) (*Response, error) {
	if len(frame) < ErrorFrameSize {
		return nil, NewError(LengthError, "response of %d bytes is shorter than %d", len(frame), ErrorFrameSize)
	}
	if frame[0] != Magic0 || frame[1] != Magic1 {
		return nil, ErrFraming
	}
	last := len(frame) - 1
	if want := Checksum(frame[:last]); frame[last] != want {
		return nil, NewError(CrcMismatch, "checksum is 0x%02X, expected 0x%02X", frame[last], want)
	}
	if len(frame) == ErrorFrameSize {
		return &Response{Type: frame[2], Error: true}, nil
	}
	if len(frame) < HeaderSize+1 {
		return nil, NewError(LengthError, "response of %d bytes has no length", len(frame))
	}
	n := int(binary.BigEndian.Uint16(frame[3:5]))
	if n != last-HeaderSize {
		return nil, NewError(LengthError, "response declares %d payload bytes but carries %d", n, last-HeaderSize)
	}
	return &Response{Type: frame[2], Payload: frame[HeaderSize:last]}, nil
}
