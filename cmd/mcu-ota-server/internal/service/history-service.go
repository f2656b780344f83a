package service

import (
	"net/http"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/datastore"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	v1 "github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/service/v1"
	"github.com/metal-stack/metal-lib/httperrors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type historyResource struct {
	webResource
}

// NewHistory returns a webservice for reading upgrade outcomes.
func NewHistory(log *zap.SugaredLogger, ds datastore.HistoryStore) *restful.WebService {
	r := historyResource{
		webResource: webResource{
			log: log,
			ds:  ds,
		},
	}
	return r.webService()
}

func (r historyResource) webService() *restful.WebService {
	ws := new(restful.WebService)
	ws.
		Path(BasePath + "v1/history").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	tags := []string{"history"}

	ws.Route(ws.GET("/").
		To(r.listUpgradeHistory).
		Operation("listUpgradeHistory").
		Doc("returns all upgrade outcomes, newest first").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes([]v1.UpgradeHistoryResponse{}).
		Returns(http.StatusOK, "OK", []v1.UpgradeHistoryResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.GET("/{device-id}").
		To(r.findUpgradeHistory).
		Operation("findUpgradeHistory").
		Doc("returns the upgrade outcomes of one device, newest first").
		Param(ws.PathParameter("device-id", "the device id in hex").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes([]v1.UpgradeHistoryResponse{}).
		Returns(http.StatusOK, "OK", []v1.UpgradeHistoryResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	return ws
}

func (r historyResource) listUpgradeHistory(request *restful.Request, response *restful.Response) {
	hs, err := r.ds.ListUpgradeHistory(request.Request.Context())
	if r.checkError(request, response, "listUpgradeHistory", err) {
		return
	}
	r.send(response, http.StatusOK, toHistoryResponses(hs))
}

func (r historyResource) findUpgradeHistory(request *restful.Request, response *restful.Response) {
	id, err := parseHex(request.PathParameter("device-id"), 64)
	if r.checkError(request, response, "findUpgradeHistory", err) {
		return
	}

	hs, err := r.ds.FindUpgradeHistoryByDevice(request.Request.Context(), id)
	if r.checkError(request, response, "findUpgradeHistory", err) {
		return
	}
	r.send(response, http.StatusOK, toHistoryResponses(hs))
}

func toHistoryResponses(hs []ota.UpgradeHistory) []v1.UpgradeHistoryResponse {
	return lo.Map(hs, func(h ota.UpgradeHistory, _ int) v1.UpgradeHistoryResponse { return v1.NewUpgradeHistoryResponse(h) })
}
