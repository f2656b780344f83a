package service

import (
	"encoding/json"
	"net/http"
	"testing"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/catalog"
	v1 "github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/service/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestListFirmwares(t *testing.T) {
	container := restful.NewContainer().Add(NewFirmware(zaptest.NewLogger(t).Sugar(), testStore(t)))

	w := serve(t, container, "/v1/firmware")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got v1.CatalogResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, uint64(7), got.Bytes)
	require.Len(t, got.Firmwares, 2)
	assert.ElementsMatch(t, []string{"0.2.0", "0.1.9"}, []string{got.Firmwares[0].Version, got.Firmwares[1].Version})
}

func TestListFirmwaresEmpty(t *testing.T) {
	container := restful.NewContainer().Add(NewFirmware(zaptest.NewLogger(t).Sugar(), catalog.NewStore()))

	w := serve(t, container, "/v1/firmware")
	require.Equal(t, http.StatusOK, w.Code)

	var got v1.CatalogResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Empty(t, got.Firmwares)
}

func TestFindLatestFirmware(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantCode int
		want     *v1.FirmwareResponse
	}{
		{
			name:     "latest version",
			path:     "/v1/firmware/1987/latest",
			wantCode: http.StatusOK,
			want:     &v1.FirmwareResponse{Code: "1987", Version: "0.2.0", Size: 5, Locator: "http://fw/firmware/1"},
		},
		{
			name:     "unknown code",
			path:     "/v1/firmware/beef/latest",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "not hex",
			path:     "/v1/firmware/xyz/latest",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "too large",
			path:     "/v1/firmware/10000/latest",
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container := restful.NewContainer().Add(NewFirmware(zaptest.NewLogger(t).Sugar(), testStore(t)))

			w := serve(t, container, tt.path)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.want == nil {
				return
			}

			var got v1.FirmwareResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			if diff := cmp.Diff(*tt.want, got); diff != "" {
				t.Errorf("findLatestFirmware() diff = %s", diff)
			}
		})
	}
}
