package datastore

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"
)

// upgradeHistoryDoc is the stored form of an upgrade history record. Serial
// number and device id are kept as hex strings, rethinkdb numbers are doubles
// and cannot hold every 64 bit device id.
type upgradeHistoryDoc struct {
	ID           string    `rethinkdb:"id"`
	SerialNumber string    `rethinkdb:"sn"`
	DeviceID     string    `rethinkdb:"device_id"`
	Code         int       `rethinkdb:"code"`
	VersionM     int       `rethinkdb:"version_m"`
	VersionN     int       `rethinkdb:"version_n"`
	VersionL     int       `rethinkdb:"version_l"`
	Success      bool      `rethinkdb:"success"`
	Created      time.Time `rethinkdb:"created"`
	Changed      time.Time `rethinkdb:"changed"`
}

func serialKey(sn uint32) string {
	return fmt.Sprintf("%08X", sn)
}

func deviceKey(id uint64) string {
	return fmt.Sprintf("%016X", id)
}

func toDoc(h *ota.UpgradeHistory) upgradeHistoryDoc {
	return upgradeHistoryDoc{
		ID:           h.ID,
		SerialNumber: serialKey(h.SerialNumber),
		DeviceID:     deviceKey(h.DeviceID),
		Code:         int(h.Code),
		VersionM:     int(h.Version.Major),
		VersionN:     int(h.Version.Minor),
		VersionL:     int(h.Version.Patch),
		Success:      h.Success,
		Created:      h.Created,
		Changed:      h.Changed,
	}
}

func (d upgradeHistoryDoc) toUpgradeHistory() (ota.UpgradeHistory, error) {
	sn, err := strconv.ParseUint(d.SerialNumber, 16, 32)
	if err != nil {
		return ota.UpgradeHistory{}, fmt.Errorf("upgrade history %q has malformed serial number: %w", d.ID, err)
	}
	device, err := strconv.ParseUint(d.DeviceID, 16, 64)
	if err != nil {
		return ota.UpgradeHistory{}, fmt.Errorf("upgrade history %q has malformed device id: %w", d.ID, err)
	}
	return ota.UpgradeHistory{
		ID:           d.ID,
		SerialNumber: uint32(sn),
		DeviceID:     device,
		Code:         uint16(d.Code),
		Version:      ota.Version{Major: uint8(d.VersionM), Minor: uint8(d.VersionN), Patch: uint8(d.VersionL)},
		Success:      d.Success,
		Created:      d.Created,
		Changed:      d.Changed,
	}, nil
}

func fromDocs(docs []upgradeHistoryDoc) ([]ota.UpgradeHistory, error) {
	result := make([]ota.UpgradeHistory, 0, len(docs))
	for _, d := range docs {
		h, err := d.toUpgradeHistory()
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, nil
}

// prepare assigns the fields owned by the store.
func prepare(h *ota.UpgradeHistory) {
	now := time.Now()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.Created = now
	h.Changed = now
}

// CreateUpgradeHistory creates a new upgrade history record.
func (rs *RethinkStore) CreateUpgradeHistory(ctx context.Context, h *ota.UpgradeHistory) error {
	prepare(h)
	_, err := rs.upgradeHistoryTable().Insert(toDoc(h)).RunWrite(rs.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("cannot create %s in database: %w", upgradeHistoryTable, err)
	}
	return nil
}

// ListUpgradeHistory returns all upgrade history records.
func (rs *RethinkStore) ListUpgradeHistory(ctx context.Context) ([]ota.UpgradeHistory, error) {
	var docs []upgradeHistoryDoc
	if err := rs.searchEntities(ctx, rs.upgradeHistoryTable(), &docs); err != nil {
		return nil, err
	}
	return fromDocs(docs)
}

// FindUpgradeHistoryByDevice returns the upgrade history of one device, newest first.
func (rs *RethinkStore) FindUpgradeHistoryByDevice(ctx context.Context, deviceID uint64) ([]ota.UpgradeHistory, error) {
	q := rs.upgradeHistoryTable().GetAllByIndex(deviceIndex, deviceKey(deviceID))

	var docs []upgradeHistoryDoc
	if err := rs.searchEntities(ctx, &q, &docs); err != nil {
		return nil, err
	}
	result, err := fromDocs(docs)
	if err != nil {
		return nil, err
	}
	return newestFirst(result), nil
}

func newestFirst(hh []ota.UpgradeHistory) []ota.UpgradeHistory {
	slices.SortStableFunc(hh, func(a, b ota.UpgradeHistory) int {
		return b.Created.Compare(a.Created)
	})
	return hh
}
