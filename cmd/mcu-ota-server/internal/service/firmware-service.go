package service

import (
	"net/http"
	"strconv"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/catalog"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	v1 "github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/service/v1"
	"github.com/metal-stack/metal-lib/httperrors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type firmwareResource struct {
	webResource
}

// NewFirmware returns a webservice listing the firmware currently served to devices.
func NewFirmware(log *zap.SugaredLogger, store *catalog.Store) *restful.WebService {
	r := firmwareResource{
		webResource: webResource{
			log:   log,
			store: store,
		},
	}
	return r.webService()
}

func (r firmwareResource) webService() *restful.WebService {
	ws := new(restful.WebService)
	ws.
		Path(BasePath + "v1/firmware").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	tags := []string{"firmware"}

	ws.Route(ws.GET("/").
		To(r.listFirmwares).
		Operation("listFirmwares").
		Doc("returns all firmware images of the current catalog").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.CatalogResponse{}).
		Returns(http.StatusOK, "OK", v1.CatalogResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.GET("/{code}/latest").
		To(r.findLatestFirmware).
		Operation("findLatestFirmware").
		Doc("returns the newest firmware image for a code").
		Param(ws.PathParameter("code", "the firmware code in hex").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.FirmwareResponse{}).
		Returns(http.StatusOK, "OK", v1.FirmwareResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	return ws
}

func (r firmwareResource) listFirmwares(request *restful.Request, response *restful.Response) {
	cat := r.store.Load()
	r.send(response, http.StatusOK, v1.CatalogResponse{
		Created:   cat.Created(),
		Bytes:     cat.Bytes(),
		Firmwares: lo.Map(cat.Infos(), func(i ota.Info, _ int) v1.FirmwareResponse { return v1.NewFirmwareResponse(i) }),
	})
}

func (r firmwareResource) findLatestFirmware(request *restful.Request, response *restful.Response) {
	code, err := parseHex(request.PathParameter("code"), 16)
	if r.checkError(request, response, "findLatestFirmware", err) {
		return
	}

	a, ok := r.store.Load().FindLatest(uint16(code))
	if !ok {
		r.checkError(request, response, "findLatestFirmware", ota.NotFound("no firmware for code %04X", code))
		return
	}
	r.send(response, http.StatusOK, v1.NewFirmwareResponse(a.Info))
}

func parseHex(s string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(s, 16, bits)
	if err != nil {
		return 0, ota.Invalid("%q is not a %d bit hex number", s, bits)
	}
	return n, nil
}
