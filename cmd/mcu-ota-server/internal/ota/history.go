package ota

import (
	"fmt"
	"time"
)

// UpgradeHistory is the outcome of one firmware download as reported by a device.
type UpgradeHistory struct {
	ID           string    `json:"id"`
	SerialNumber uint32    `json:"sn"`
	DeviceID     uint64    `json:"device_id"`
	Code         uint16    `json:"code"`
	Version      Version   `json:"version"`
	Success      bool      `json:"success"`
	Created      time.Time `json:"created"`
	Changed      time.Time `json:"changed"`
}

func (h UpgradeHistory) String() string {
	return fmt.Sprintf("sn:%08X device:%016X firmware:%04X-%s success:%t", h.SerialNumber, h.DeviceID, h.Code, h.Version, h.Success)
}

// UpgradeEvent is published after an upgrade history record was stored.
type UpgradeEvent struct {
	ID           string    `json:"id"`
	SerialNumber string    `json:"sn"`
	DeviceID     string    `json:"device_id"`
	Firmware     string    `json:"firmware"`
	Success      bool      `json:"success"`
	Time         time.Time `json:"time"`
}

// NewUpgradeEvent converts a stored record into its published form.
func NewUpgradeEvent(h UpgradeHistory) UpgradeEvent {
	return UpgradeEvent{
		ID:           h.ID,
		SerialNumber: fmt.Sprintf("%08X", h.SerialNumber),
		DeviceID:     fmt.Sprintf("%016X", h.DeviceID),
		Firmware:     fmt.Sprintf("%04X-%s", h.Code, h.Version),
		Success:      h.Success,
		Time:         h.Created,
	}
}
