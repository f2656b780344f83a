package protocol

import "fmt"

const (
	// Magic0 and Magic1 start every frame.
	Magic0 byte = 0xAA
	Magic1 byte = 0x55

	// HeaderSize is magic, type and length.
	HeaderSize = 5
	// MinFrameSize is the smallest typed request: magic, type, length and firmware code.
	MinFrameSize = 7
	// ErrorFrameSize is the size of an error response.
	ErrorFrameSize = 4
	// MaxPayloadSize bounds the declared payload length of incoming frames.
	MaxPayloadSize = 1024
	// MaxSliceSize is the largest slice that still fits the 16 bit length of a data response.
	MaxSliceSize = 0xFFFF - dataResponseHeaderSize

	// SuccessFlag marks a successful upgrade in a download end request.
	SuccessFlag byte = 0xA1

	dataResponseHeaderSize = 7
)

// PacketType is the type byte of a request frame.
type PacketType byte

const (
	FirmwareQuery    PacketType = 0xA1
	FirmwareDownload PacketType = 0xA2
	DownloadEnd      PacketType = 0xA3
	QueryConfig      PacketType = 0xA4
)

// PacketTypes lists all request types understood by the server.
var PacketTypes = []PacketType{
	FirmwareQuery,
	FirmwareDownload,
	DownloadEnd,
	QueryConfig,
}

// ParsePacketType maps a type byte to its packet type.
func ParsePacketType(b byte) (PacketType, error) {
	switch t := PacketType(b); t {
	case FirmwareQuery, FirmwareDownload, DownloadEnd, QueryConfig:
		return t, nil
	}
	return 0, NewError(UnknownPackageType, "unknown package type 0x%02X", b)
}

// Response returns the type byte of the response to this request type.
func (t PacketType) Response() byte {
	return 0xFF - byte(t)
}

// PayloadSize is the fixed payload length of a request of this type.
func (t PacketType) PayloadSize() int {
	switch t {
	case FirmwareQuery, QueryConfig:
		return 2
	case FirmwareDownload:
		return 9
	case DownloadEnd:
		return 18
	}
	return 0
}

func (t PacketType) String() string {
	switch t {
	case FirmwareQuery:
		return "fw-info-query"
	case FirmwareDownload:
		return "fw-download"
	case DownloadEnd:
		return "download-end"
	case QueryConfig:
		return "query-config"
	}
	return fmt.Sprintf("unknown-0x%02X", byte(t))
}

// ErrorCode is sent back in an error response.
type ErrorCode byte

const (
	CrcMismatch        ErrorCode = 0xF0
	LengthError        ErrorCode = 0xF1
	NoFirmwareFound    ErrorCode = 0xF2
	FirmwareReadError  ErrorCode = 0xF3
	UnknownPackageType ErrorCode = 0xF4
)

func (c ErrorCode) String() string {
	switch c {
	case CrcMismatch:
		return "crc-mismatch"
	case LengthError:
		return "length-error"
	case NoFirmwareFound:
		return "no-firmware-found"
	case FirmwareReadError:
		return "firmware-read-error"
	case UnknownPackageType:
		return "unknown-package-type"
	}
	return fmt.Sprintf("unknown-0x%02X", byte(c))
}
