package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/catalog"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/datastore"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"github.com/metal-stack/metal-lib/httperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type healthStore struct {
	datastore.HistoryStore
	err error
}

func (s healthStore) Health(context.Context) error {
	return s.err
}

func testStore(t *testing.T) *catalog.Store {
	t.Helper()
	a, err := ota.NewArtifact(0x1987, ota.Version{Minor: 2}, "http://fw/firmware/1", []byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	b, err := ota.NewArtifact(0x1987, ota.Version{Minor: 1, Patch: 9}, "http://fw/firmware/2", []byte{1, 2})
	require.NoError(t, err)

	s := catalog.NewStore()
	s.Swap(catalog.New(a, b))
	return s
}

func serve(t *testing.T, container *restful.Container, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	container.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		store      *catalog.Store
		dsErr      error
		wantCode   int
		wantStatus string
	}{
		{
			name:       "healthy",
			store:      testStore(t),
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "empty catalog",
			store:      catalog.NewStore(),
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "database down",
			store:      testStore(t),
			dsErr:      errors.New("connection refused"),
			wantCode:   http.StatusInternalServerError,
			wantStatus: "unhealthy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := zaptest.NewLogger(t).Sugar()
			container := restful.NewContainer().Add(NewHealth(log, healthStore{err: tt.dsErr}, tt.store))

			w := serve(t, container, "/v1/health")
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())

			var got HealthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			assert.Equal(t, tt.wantStatus, string(got.Status))
			assert.Contains(t, got.Services, "datastore")
			assert.Contains(t, got.Services, "catalog")
		})
	}
}

func TestNewContainer(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	container := NewContainer(log, healthStore{}, testStore(t), "v1.0.0")

	w := serve(t, container, "/apidocs.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mcu-ota-server")
	assert.Contains(t, w.Body.String(), "/v1/firmware/{code}/latest")

	w = serve(t, container, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ota_")
}

func TestCheckError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: ota.NotFound("nothing"), want: http.StatusNotFound},
		{name: "invalid", err: ota.Invalid("bad"), want: http.StatusBadRequest},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := webResource{log: zaptest.NewLogger(t).Sugar()}
			ws := new(restful.WebService).Path("/x")
			ws.Route(ws.GET("/").To(func(request *restful.Request, response *restful.Response) {
				require.True(t, w.checkError(request, response, "test", tt.err))
			}))
			rec := serve(t, restful.NewContainer().Add(ws), "/x")

			assert.Equal(t, tt.want, rec.Code)
			var got httperrors.HTTPErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.want, got.StatusCode)
		})
	}
}
