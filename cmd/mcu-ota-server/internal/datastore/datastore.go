// Package datastore persists upgrade history records.
package datastore

import (
	"context"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
)

// HistoryStore is implemented by every database backend.
type HistoryStore interface {
	// CreateUpgradeHistory stores h. It assigns ID, Created and Changed.
	CreateUpgradeHistory(ctx context.Context, h *ota.UpgradeHistory) error
	ListUpgradeHistory(ctx context.Context) ([]ota.UpgradeHistory, error)
	// FindUpgradeHistoryByDevice returns the records of one device, newest first.
	FindUpgradeHistoryByDevice(ctx context.Context, deviceID uint64) ([]ota.UpgradeHistory, error)
	Health(ctx context.Context) error
	Close() error
}

var (
	_ HistoryStore = &RethinkStore{}
	_ HistoryStore = &SQLiteStore{}
)
