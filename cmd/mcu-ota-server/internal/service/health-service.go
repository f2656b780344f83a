package service

import (
	"context"
	"net/http"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/catalog"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/datastore"
	healthstatus "github.com/metal-stack/metal-lib/rest"
	"go.uber.org/zap"
)

const healthTimeout = 5 * time.Second

type healthResource struct {
	webResource
}

// HealthResponse reports the overall state and the state of each dependency.
type HealthResponse struct {
	Status    healthstatus.HealthStatus            `json:"status"`
	Message   string                               `json:"message"`
	Artifacts int                                  `json:"artifacts"`
	Services  map[string]healthstatus.HealthResult `json:"services"`
}

// NewHealth returns a webservice reporting the health of the server.
func NewHealth(log *zap.SugaredLogger, ds datastore.HistoryStore, store *catalog.Store) *restful.WebService {
	r := healthResource{
		webResource: webResource{
			log:   log,
			ds:    ds,
			store: store,
		},
	}
	return r.webService()
}

func (r healthResource) webService() *restful.WebService {
	ws := new(restful.WebService)
	ws.
		Path(BasePath + "v1/health").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	tags := []string{"health"}

	ws.Route(ws.GET("/").
		To(r.check).
		Operation("health").
		Doc("perform a healthcheck").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(HealthResponse{}).
		Returns(http.StatusOK, "OK", HealthResponse{}).
		Returns(http.StatusInternalServerError, "Unhealthy", HealthResponse{}))

	return ws
}

func (r healthResource) check(request *restful.Request, response *restful.Response) {
	ctx, cancel := context.WithTimeout(request.Request.Context(), healthTimeout)
	defer cancel()

	cat := r.store.Load()
	resp := HealthResponse{
		Status:    healthstatus.HealthStatusHealthy,
		Message:   "OK",
		Artifacts: cat.Len(),
		Services: map[string]healthstatus.HealthResult{
			"datastore": {Status: healthstatus.HealthStatusHealthy, Message: "connected"},
		},
	}
	if cat.Len() == 0 {
		resp.Services["catalog"] = healthstatus.HealthResult{Status: healthstatus.HealthStatusDegraded, Message: "no firmware loaded"}
		resp.Status = healthstatus.HealthStatusDegraded
		resp.Message = "no firmware loaded"
	} else {
		resp.Services["catalog"] = healthstatus.HealthResult{Status: healthstatus.HealthStatusHealthy, Message: "firmware loaded"}
	}

	status := http.StatusOK
	if err := r.ds.Health(ctx); err != nil {
		r.log.Errorw("unhealthy", "error", err)
		resp.Services["datastore"] = healthstatus.HealthResult{Status: healthstatus.HealthStatusUnhealthy, Message: err.Error()}
		resp.Status = healthstatus.HealthStatusUnhealthy
		resp.Message = err.Error()
		status = http.StatusInternalServerError
	}

	r.send(response, status, resp)
}
