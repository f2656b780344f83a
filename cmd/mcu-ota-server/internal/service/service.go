// Package service offers read only http endpoints for operators: health,
// the served firmware catalog, upgrade history and metrics.
package service

import (
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/catalog"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/datastore"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/metrics"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"github.com/metal-stack/metal-lib/httperrors"
	"go.uber.org/zap"
)

const BasePath = "/"

type webResource struct {
	log   *zap.SugaredLogger
	ds    datastore.HistoryStore
	store *catalog.Store
}

// NewContainer assembles all web services including metrics and api docs.
func NewContainer(log *zap.SugaredLogger, ds datastore.HistoryStore, store *catalog.Store, version string) *restful.Container {
	log = log.Named("service")
	container := restful.NewContainer()
	container.Add(NewHealth(log, ds, store))
	container.Add(NewFirmware(log, store))
	container.Add(NewHistory(log, ds))

	config := restfulspec.Config{
		WebServices:                   container.RegisteredWebServices(),
		APIPath:                       "/apidocs.json",
		PostBuildSwaggerObjectHandler: enrichSwaggerObject(version),
	}
	container.Add(restfulspec.NewOpenAPIService(config))
	container.Handle("/metrics", metrics.Handler())
	return container
}

func enrichSwaggerObject(version string) func(*spec.Swagger) {
	return func(swo *spec.Swagger) {
		swo.Info = &spec.Info{
			InfoProps: spec.InfoProps{
				Title:       "mcu-ota-server",
				Description: "Firmware catalog and upgrade history of the mcu ota server",
				Version:     version,
			},
		}
		swo.Tags = []spec.Tag{
			{TagProps: spec.TagProps{
				Name:        "health",
				Description: "Server and database health"}},
			{TagProps: spec.TagProps{
				Name:        "firmware",
				Description: "Firmware images currently served to devices"}},
			{TagProps: spec.TagProps{
				Name:        "history",
				Description: "Upgrade outcomes reported by devices"}},
		}
	}
}

// checkError writes an error response for err and reports whether there was one.
func (w webResource) checkError(rq *restful.Request, rsp *restful.Response, opname string, err error) bool {
	if err == nil {
		return false
	}

	var resp *httperrors.HTTPErrorResponse
	switch {
	case ota.IsNotFound(err):
		resp = httperrors.NotFound(err)
	case ota.IsInvalid(err):
		resp = httperrors.BadRequest(err)
	default:
		resp = httperrors.InternalServerError(err)
	}

	w.log.Errorw("service error", "operation", opname, "path", rq.Request.URL.Path, "status", resp.StatusCode, "error", err)
	w.send(rsp, resp.StatusCode, resp)
	return true
}

func (w webResource) send(rsp *restful.Response, status int, value any) {
	if err := rsp.WriteHeaderAndEntity(status, value); err != nil {
		w.log.Errorw("failed to send response", "error", err)
	}
}
