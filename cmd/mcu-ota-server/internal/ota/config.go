package ota

import "time"

// DeviceConfig is a configuration broadcast to devices asking for it.
// The record with the highest ID is the one in effect.
type DeviceConfig struct {
	ID       int64
	GroupID  uint8
	OpCode   uint8
	SyncTime time.Time
	Interval uint8
	TempMax  int16
	TempMin  int16
	// Human reports whether human presence detection is enabled.
	Human bool
}

// LatestConfig returns the config with the highest ID, or nil for an empty list.
func LatestConfig(configs []DeviceConfig) *DeviceConfig {
	var latest *DeviceConfig
	for i := range configs {
		if latest == nil || configs[i].ID >= latest.ID {
			latest = &configs[i]
		}
	}
	return latest
}
