package ota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Version
		wantErr bool
	}{
		{name: "plain", in: "0.2.0", want: Version{Minor: 2}},
		{name: "byte limits", in: "255.0.255", want: Version{Major: 255, Patch: 255}},
		{name: "part too large", in: "256.0.0", wantErr: true},
		{name: "missing part", in: "1.2", wantErr: true},
		{name: "prerelease", in: "1.2.3-rc1", wantErr: true},
		{name: "metadata", in: "1.2.3+abc", wantErr: true},
		{name: "garbage", in: "latest", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestVersion_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b Version
		want int
	}{
		{name: "equal", a: Version{1, 2, 3}, b: Version{1, 2, 3}, want: 0},
		{name: "major wins over minor", a: Version{2, 0, 0}, b: Version{1, 9, 9}, want: 1},
		{name: "minor wins over patch", a: Version{0, 1, 0}, b: Version{0, 2, 0}, want: -1},
		{name: "patch", a: Version{0, 2, 1}, b: Version{0, 2, 0}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
		})
	}
}

func TestNewArtifact(t *testing.T) {
	a, err := NewArtifact(0x1987, Version{Minor: 2}, "s3://firmware/1987-0.2.0.bin", []byte{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, uint32(3), a.Size)
	assert.Equal(t, Key{Code: 0x1987, Version: Version{Minor: 2}}, a.Key())
	assert.Equal(t, "1987-0.2.0", a.Info.String())
}

func TestLatestConfig(t *testing.T) {
	assert.Nil(t, LatestConfig(nil))

	configs := []DeviceConfig{
		{ID: 3, GroupID: 3},
		{ID: 7, GroupID: 7},
		{ID: 5, GroupID: 5},
	}
	got := LatestConfig(configs)
	require.NotNil(t, got)
	assert.Equal(t, uint8(7), got.GroupID)
}

func TestNewUpgradeEvent(t *testing.T) {
	created := time.Date(2024, 3, 5, 6, 7, 8, 0, time.UTC)
	h := UpgradeHistory{
		ID:           "abc",
		SerialNumber: 0xBEEF,
		DeviceID:     0x0102030405060708,
		Code:         0x1987,
		Version:      Version{Minor: 2},
		Success:      true,
		Created:      created,
	}

	got := NewUpgradeEvent(h)
	assert.Equal(t, UpgradeEvent{
		ID:           "abc",
		SerialNumber: "0000BEEF",
		DeviceID:     "0102030405060708",
		Firmware:     "1987-0.2.0",
		Success:      true,
		Time:         created,
	}, got)
}

func TestErrors(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("firmware %04X", 1)))
	assert.False(t, IsNotFound(Invalid("x")))
	assert.True(t, IsInvalid(Invalid("x")))
	assert.Equal(t, "NotFound: firmware 0001", NotFound("firmware %04X", 1).Error())
}
