package v1

import (
	"fmt"
	"time"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
)

type FirmwareResponse struct {
	Code    string `json:"code" description:"the firmware code as four hex digits"`
	Version string `json:"version" description:"the firmware version major.minor.patch"`
	Size    uint32 `json:"size" description:"the image size in bytes"`
	Locator string `json:"locator,omitempty" description:"where the image was fetched from"`
}

type CatalogResponse struct {
	Created   time.Time          `json:"created" description:"when the served catalog was built"`
	Bytes     uint64             `json:"bytes" description:"the total size of all images"`
	Firmwares []FirmwareResponse `json:"firmwares" description:"the images served to devices"`
}

func NewFirmwareResponse(i ota.Info) FirmwareResponse {
	return FirmwareResponse{
		Code:    fmt.Sprintf("%04X", i.Code),
		Version: i.Version.String(),
		Size:    i.Size,
		Locator: i.Locator,
	}
}
