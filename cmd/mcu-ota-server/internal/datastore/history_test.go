package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"
)

func TestRethinkStore_CreateUpgradeHistory(t *testing.T) {
	ds, mock := InitMockDB(t)
	mock.On(r.DB("mockdb").Table("upgradehistory").Insert(r.MockAnything())).Return(r.WriteResponse{Inserted: 1}, nil)

	h := &ota.UpgradeHistory{
		SerialNumber: 0xDEADBEEF,
		DeviceID:     0x0102030405060708,
		Code:         0x1987,
		Version:      ota.Version{Minor: 2},
		Success:      true,
	}
	err := ds.CreateUpgradeHistory(context.Background(), h)
	require.NoError(t, err)

	assert.NotEmpty(t, h.ID)
	assert.False(t, h.Created.IsZero())
	assert.Equal(t, h.Created, h.Changed)
	mock.AssertExpectations(t)
}

func TestRethinkStore_CreateUpgradeHistoryError(t *testing.T) {
	ds, mock := InitMockDB(t)
	mock.On(r.DB("mockdb").Table("upgradehistory").Insert(r.MockAnything())).Return(nil, errors.New("connection refused"))

	err := ds.CreateUpgradeHistory(context.Background(), &ota.UpgradeHistory{})
	require.Error(t, err)
}

func TestRethinkStore_ListUpgradeHistory(t *testing.T) {
	ds, mock := InitMockDB(t)
	mock.On(r.DB("mockdb").Table("upgradehistory")).Return([]map[string]interface{}{
		{"id": "1", "sn": "DEADBEEF", "device_id": "FFFFFFFFFFFFFFFF", "code": 6535, "version_m": 0, "version_n": 2, "version_l": 0, "success": true},
		{"id": "2", "sn": "00000001", "device_id": "0000000000000002", "code": 1, "version_m": 1, "version_n": 0, "version_l": 3, "success": false},
	}, nil)

	got, err := ds.ListUpgradeHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, uint32(0xDEADBEEF), got[0].SerialNumber)
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), got[0].DeviceID)
	assert.Equal(t, uint16(0x1987), got[0].Code)
	assert.Equal(t, ota.Version{Minor: 2}, got[0].Version)
	assert.True(t, got[0].Success)
	assert.Equal(t, ota.Version{Major: 1, Patch: 3}, got[1].Version)
	assert.False(t, got[1].Success)
}

func TestRethinkStore_ListUpgradeHistoryMalformed(t *testing.T) {
	ds, mock := InitMockDB(t)
	mock.On(r.DB("mockdb").Table("upgradehistory")).Return([]map[string]interface{}{
		{"id": "1", "sn": "not hex", "device_id": "01"},
	}, nil)

	_, err := ds.ListUpgradeHistory(context.Background())
	require.Error(t, err)
}

func TestRethinkStore_FindUpgradeHistoryByDevice(t *testing.T) {
	ds, mock := InitMockDB(t)
	mock.On(r.DB("mockdb").Table("upgradehistory").GetAllByIndex("device_id", "0102030405060708")).Return([]map[string]interface{}{
		{"id": "1", "sn": "00000001", "device_id": "0102030405060708", "code": 1, "success": true},
	}, nil)

	got, err := ds.FindUpgradeHistoryByDevice(context.Background(), 0x0102030405060708)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, uint64(0x0102030405060708), got[0].DeviceID)
}

func TestNewestFirst(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hh := []ota.UpgradeHistory{
		{ID: "a", Created: t0},
		{ID: "b", Created: t0.Add(2 * time.Minute)},
		{ID: "c", Created: t0.Add(time.Minute)},
	}

	got := newestFirst(hh)

	assert.Equal(t, []string{"b", "c", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestDocConversion(t *testing.T) {
	h := ota.UpgradeHistory{
		ID:           "x",
		SerialNumber: 0xFFFFFFFF,
		DeviceID:     0x8000000000000001,
		Code:         0xABCD,
		Version:      ota.Version{Major: 255, Minor: 1, Patch: 2},
	}

	d := toDoc(&h)
	assert.Equal(t, "FFFFFFFF", d.SerialNumber)
	assert.Equal(t, "8000000000000001", d.DeviceID)

	back, err := d.toUpgradeHistory()
	require.NoError(t, err)
	assert.Equal(t, h, back)
}
