package protocol

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVersion = ota.Version{Major: 0, Minor: 2, Patch: 0}

func TestEncodeRequestLayout(t *testing.T) {
	frame := EncodeRequest(InfoQuery{Code: 0x1987})

	want := []byte{0xAA, 0x55, 0xA1, 0x00, 0x02, 0x19, 0x87}
	require.Equal(t, append(want, Checksum(want)), frame)
}

func TestDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "info query",
			req:  InfoQuery{Code: 0x1987},
		},
		{
			name: "download",
			req:  DownloadRequest{Code: 0x1987, Version: testVersion, Index: 3, SliceSize: 512},
		},
		{
			name: "download end success",
			req: DownloadEndRequest{
				Code:         0x1987,
				Version:      testVersion,
				DeviceID:     0x0102030405060708,
				SerialNumber: 0xCAFEBABE,
				Success:      true,
			},
		},
		{
			name: "download end failure",
			req:  DownloadEndRequest{Code: 0xFFFF, Version: ota.Version{Major: 255, Minor: 255, Patch: 255}},
		},
		{
			name: "config query",
			req:  ConfigQuery{Code: 0x0001},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeRequest(tt.req)
			assert.Len(t, frame, HeaderSize+tt.req.Type().PayloadSize()+1)

			got, err := Decode(frame)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.req, got); diff != "" {
				t.Errorf("Decode() diff: %s", diff)
			}

			last := len(frame) - 1
			for bit := 0; bit < 8; bit++ {
				corrupted := append([]byte{}, frame...)
				corrupted[last] ^= 1 << bit

				_, err := Decode(corrupted)
				perr, ok := AsError(err)
				require.True(t, ok)
				assert.Equal(t, CrcMismatch, perr.Code)
			}
		})
	}
}

func TestDecodeSuccessFlag(t *testing.T) {
	frame := EncodeRequest(DownloadEndRequest{Code: 1, Version: testVersion, Success: true})
	require.Equal(t, SuccessFlag, frame[len(frame)-2])

	for _, flag := range []byte{0x00, 0x01, 0xA0, 0xA2, 0xFF} {
		f := append([]byte{}, frame[:len(frame)-1]...)
		f[len(f)-1] = flag
		f = append(f, Checksum(f))

		req, err := Decode(f)
		require.NoError(t, err)
		assert.False(t, req.(DownloadEndRequest).Success, "flag 0x%02X", flag)
	}
}

func TestDecodeErrors(t *testing.T) {
	withCRC := func(b ...byte) []byte {
		return append(b, Checksum(b))
	}

	tests := []struct {
		name    string
		frame   []byte
		wantErr error
		code    ErrorCode
	}{
		{
			name:  "empty",
			frame: []byte{},
			code:  LengthError,
		},
		{
			name:  "shorter than minimum",
			frame: withCRC(0xAA, 0x55, 0xA1, 0x00, 0x02),
			code:  LengthError,
		},
		{
			name:  "short frame with wrong magic is a length error",
			frame: []byte{0x00, 0x00, 0x00},
			code:  LengthError,
		},
		{
			name:    "wrong magic",
			frame:   withCRC(0xAB, 0x55, 0xA1, 0x00, 0x02, 0x19, 0x87),
			wantErr: ErrFraming,
		},
		{
			name:  "wrong checksum",
			frame: []byte{0xAA, 0x55, 0xA1, 0x00, 0x02, 0x19, 0x87, 0x00},
			code:  CrcMismatch,
		},
		{
			name:  "unknown type",
			frame: withCRC(0xAA, 0x55, 0xB0, 0x00, 0x02, 0x19, 0x87),
			code:  UnknownPackageType,
		},
		{
			name:  "info query with one byte code",
			frame: withCRC(0xAA, 0x55, 0xA1, 0x00, 0x01, 0x19),
			code:  LengthError,
		},
		{
			name:  "download without slice size",
			frame: withCRC(0xAA, 0x55, 0xA2, 0x00, 0x07, 0x19, 0x87, 0x00, 0x02, 0x00, 0x00, 0x00),
			code:  LengthError,
		},
		{
			name:  "download end without device",
			frame: withCRC(0xAA, 0x55, 0xA3, 0x00, 0x05, 0x19, 0x87, 0x00, 0x02, 0x00),
			code:  LengthError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			require.Error(t, err)

			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			perr, ok := AsError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.code, perr.Code)
		})
	}
}

func TestDecodeIgnoresDeclaredLength(t *testing.T) {
	frame := []byte{0xAA, 0x55, 0xA1, 0x00, 0x00, 0x19, 0x87}
	frame = append(frame, Checksum(frame))

	req, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, InfoQuery{Code: 0x1987}, req)
}
