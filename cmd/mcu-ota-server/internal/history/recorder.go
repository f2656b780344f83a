// Package history records the upgrade outcomes reported by devices.
package history

import (
	"context"
	"fmt"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/datastore"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/eventbus"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/metrics"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"go.uber.org/zap"
)

// Recorder stores an upgrade history record synchronously.
type Recorder interface {
	Record(ctx context.Context, h ota.UpgradeHistory) error
}

// StoreRecorder writes records to a datastore and announces them on the event bus.
type StoreRecorder struct {
	log       *zap.SugaredLogger
	store     datastore.HistoryStore
	publisher eventbus.Publisher
}

// NewStoreRecorder creates a recorder, publisher may be nil to disable events.
func NewStoreRecorder(log *zap.SugaredLogger, store datastore.HistoryStore, publisher eventbus.Publisher) *StoreRecorder {
	return &StoreRecorder{
		log:       log.Named("history"),
		store:     store,
		publisher: publisher,
	}
}

// Record stores h. Events are only published for stored records and a failed
// publish does not fail the record.
func (s *StoreRecorder) Record(ctx context.Context, h ota.UpgradeHistory) error {
	err := s.store.CreateUpgradeHistory(ctx, &h)
	metrics.UpgradeRecorded(h.Success, err)
	if err != nil {
		return fmt.Errorf("cannot record upgrade of %s: %w", h, err)
	}
	s.log.Infow("upgrade recorded", "id", h.ID, "history", h.String())

	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Publish(eventbus.UpgradeTopic, ota.NewUpgradeEvent(h)); err != nil {
		s.log.Errorw("cannot publish upgrade event", "id", h.ID, "error", err)
	}
	return nil
}
