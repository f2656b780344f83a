package v1

import (
	"fmt"
	"time"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
)

type UpgradeHistoryResponse struct {
	ID           string    `json:"id" description:"the record id"`
	SerialNumber string    `json:"sn" description:"the serial number of the download session as eight hex digits"`
	DeviceID     string    `json:"device_id" description:"the device id as sixteen hex digits"`
	Code         string    `json:"code" description:"the firmware code as four hex digits"`
	Version      string    `json:"version" description:"the firmware version"`
	Success      bool      `json:"success" description:"whether the device applied the firmware"`
	Created      time.Time `json:"created" description:"when the outcome was reported"`
}

func NewUpgradeHistoryResponse(h ota.UpgradeHistory) UpgradeHistoryResponse {
	return UpgradeHistoryResponse{
		ID:           h.ID,
		SerialNumber: fmt.Sprintf("%08X", h.SerialNumber),
		DeviceID:     fmt.Sprintf("%016X", h.DeviceID),
		Code:         fmt.Sprintf("%04X", h.Code),
		Version:      h.Version.String(),
		Success:      h.Success,
		Created:      h.Created,
	}
}
