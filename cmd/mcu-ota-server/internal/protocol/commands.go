package protocol

import (
	"encoding/binary"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
)

// Request is one of InfoQuery, DownloadRequest, DownloadEndRequest or ConfigQuery.
type Request interface {
	Type() PacketType
	payload() []byte
}

// InfoQuery asks for the latest firmware of a code.
type InfoQuery struct {
	Code uint16
}

// DownloadRequest asks for one slice of a firmware image.
type DownloadRequest struct {
	Code      uint16
	Version   ota.Version
	Index     uint16
	SliceSize uint16
}

// DownloadEndRequest reports the outcome of a download.
type DownloadEndRequest struct {
	Code         uint16
	Version      ota.Version
	DeviceID     uint64
	SerialNumber uint32
	Success      bool
}

// ConfigQuery asks for the device configuration currently in effect.
type ConfigQuery struct {
	Code uint16
}

func (InfoQuery) Type() PacketType          { return FirmwareQuery }
func (DownloadRequest) Type() PacketType    { return FirmwareDownload }
func (DownloadEndRequest) Type() PacketType { return DownloadEnd }
func (ConfigQuery) Type() PacketType        { return QueryConfig }

func (q InfoQuery) payload() []byte {
	return binary.BigEndian.AppendUint16(nil, q.Code)
}

func (d DownloadRequest) payload() []byte {
	p := appendFirmware(nil, d.Code, d.Version)
	p = binary.BigEndian.AppendUint16(p, d.Index)
	return binary.BigEndian.AppendUint16(p, d.SliceSize)
}

func (e DownloadEndRequest) payload() []byte {
	p := appendFirmware(nil, e.Code, e.Version)
	p = binary.BigEndian.AppendUint64(p, e.DeviceID)
	p = binary.BigEndian.AppendUint32(p, e.SerialNumber)
	if e.Success {
		return append(p, SuccessFlag)
	}
	return append(p, 0x00)
}

func (q ConfigQuery) payload() []byte {
	return binary.BigEndian.AppendUint16(nil, q.Code)
}

// EncodeRequest builds the frame a client sends for req.
func EncodeRequest(req Request) []byte {
	return encode(byte(req.Type()), req.payload())
}

// Decode validates a complete request frame and parses its payload.
//
// Checks are done in this order: minimum length, magic, checksum, packet type
// and payload length of the packet type. A bad magic yields ErrFraming, every
// other failure a *Error carrying the code for the error response.
func Decode(frame []byte) (Request, error) {
	if len(frame) < MinFrameSize {
		return nil, NewError(LengthError, "frame of %d bytes is shorter than %d", len(frame), MinFrameSize)
	}
	if frame[0] != Magic0 || frame[1] != Magic1 {
		return nil, ErrFraming
	}
	last := len(frame) - 1
	if want := Checksum(frame[:last]); frame[last] != want {
		return nil, NewError(CrcMismatch, "checksum is 0x%02X, expected 0x%02X", frame[last], want)
	}
	t, err := ParsePacketType(frame[2])
	if err != nil {
		return nil, err
	}
	p := frame[HeaderSize:last]
	if len(p) < t.PayloadSize() {
		return nil, NewError(LengthError, "%s payload of %d bytes is shorter than %d", t, len(p), t.PayloadSize())
	}

	code := binary.BigEndian.Uint16(p[0:2])
	switch t {
	case FirmwareQuery:
		return InfoQuery{Code: code}, nil
	case FirmwareDownload:
		return DownloadRequest{
			Code:      code,
			Version:   readVersion(p[2:5]),
			Index:     binary.BigEndian.Uint16(p[5:7]),
			SliceSize: binary.BigEndian.Uint16(p[7:9]),
		}, nil
	case DownloadEnd:
		return DownloadEndRequest{
			Code:         code,
			Version:      readVersion(p[2:5]),
			DeviceID:     binary.BigEndian.Uint64(p[5:13]),
			SerialNumber: binary.BigEndian.Uint32(p[13:17]),
			Success:      p[17] == SuccessFlag,
		}, nil
	default:
		return ConfigQuery{Code: code}, nil
	}
}

func appendFirmware(b []byte, code uint16, v ota.Version) []byte {
	b = binary.BigEndian.AppendUint16(b, code)
	return append(b, v.Major, v.Minor, v.Patch)
}

func readVersion(b []byte) ota.Version {
	return ota.Version{Major: b[0], Minor: b[1], Patch: b[2]}
}

func encode(typ byte, payload []byte) []byte {
	frame := make([]byte, 0, HeaderSize+len(payload)+1)
	frame = append(frame, Magic0, Magic1, typ)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	return append(frame, Checksum(frame))
}
