package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketTypeResponse(t *testing.T) {
	tests := []struct {
		typ  PacketType
		want byte
	}{
		{typ: FirmwareQuery, want: 0x5E},
		{typ: FirmwareDownload, want: 0x5D},
		{typ: DownloadEnd, want: 0x5C},
		{typ: QueryConfig, want: 0x5B},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Response())
		})
	}
}

func TestParsePacketType(t *testing.T) {
	for b := 0; b <= 0xFF; b++ {
		typ, err := ParsePacketType(byte(b))
		switch byte(b) {
		case 0xA1, 0xA2, 0xA3, 0xA4:
			require.NoError(t, err)
			assert.Equal(t, PacketType(b), typ)
		default:
			perr, ok := AsError(err)
			require.True(t, ok, "type 0x%02X", b)
			assert.Equal(t, UnknownPackageType, perr.Code)
		}
	}
}

func TestPayloadSizesFitMinimumFrame(t *testing.T) {
	for _, typ := range PacketTypes {
		assert.GreaterOrEqual(t, HeaderSize+typ.PayloadSize(), MinFrameSize, typ.String())
	}
}
