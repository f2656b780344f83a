// Package source fetches firmware images and device configs from the
// services that own them.
package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// firmwareDoc is one entry of the firmware list served by the firmware server.
type firmwareDoc struct {
	ID       int64  `json:"id"`
	Code     int64  `json:"code"`
	VersionM int64  `json:"version_m"`
	VersionN int64  `json:"version_n"`
	VersionL int64  `json:"version_l"`
	Size     int64  `json:"size"`
	Data     string `json:"data"`
}

// configDoc is one entry of the config history served by the firmware server.
type configDoc struct {
	ID       int64  `json:"id"`
	GroupID  int64  `json:"group_id"`
	OpCode   int64  `json:"op_code"`
	SyncTS   string `json:"sync_ts"`
	Interval int64  `json:"interval"`
	TMax     int64  `json:"t_max"`
	TMin     int64  `json:"t_min"`
	Human    bool   `json:"human"`
}

// timestamps without zone are taken as UTC
var syncTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// HTTP reads firmware images and device configs from the firmware server.
type HTTP struct {
	log    *zap.SugaredLogger
	client *http.Client
	url    string
}

func NewHTTP(log *zap.SugaredLogger, url string) (*HTTP, error) {
	if url == "" {
		return nil, fmt.Errorf("firmware server url must be given")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HTTP{
		log: log.Named("http-source"),
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		url: strings.TrimSuffix(url, "/"),
	}, nil
}

// Firmwares fetches all firmware images. A single undecodable entry fails the
// whole fetch so that no partial catalog gets published.
func (h *HTTP) Firmwares(ctx context.Context) ([]*ota.Artifact, error) {
	var docs []firmwareDoc
	if err := h.get(ctx, "/firmware", &docs); err != nil {
		return nil, err
	}

	artifacts := make([]*ota.Artifact, 0, len(docs))
	for _, doc := range docs {
		a, err := doc.toArtifact(h.url)
		if err != nil {
			return nil, err
		}
		if int(a.Size) != len(a.Data) {
			h.log.Warnw("firmware size differs from its content, announcing the declared size", "firmware", a.Info, "declared", a.Size, "actual", len(a.Data))
		}
		artifacts = append(artifacts, a)
	}
	h.log.Debugw("fetched firmwares", "count", len(artifacts))
	return artifacts, nil
}

// Configs fetches the device config history.
func (h *HTTP) Configs(ctx context.Context) ([]ota.DeviceConfig, error) {
	var docs []configDoc
	if err := h.get(ctx, "/config", &docs); err != nil {
		return nil, err
	}

	configs := make([]ota.DeviceConfig, 0, len(docs))
	for _, doc := range docs {
		cfg, err := doc.toConfig()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (h *HTTP) get(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot get %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("get %s returned %s: %s", req.URL, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("cannot decode response of %s: %w", req.URL, err)
	}
	return nil
}

func (d firmwareDoc) toArtifact(server string) (*ota.Artifact, error) {
	if d.Code < 0 || d.Code > 0xFFFF {
		return nil, ota.Invalid("firmware %d has code %d out of range", d.ID, d.Code)
	}
	parts := []int64{d.VersionM, d.VersionN, d.VersionL}
	if lo.SomeBy(parts, func(p int64) bool { return p < 0 || p > 0xFF }) {
		return nil, ota.Invalid("firmware %d has version %d.%d.%d out of range", d.ID, d.VersionM, d.VersionN, d.VersionL)
	}
	if d.Size < 0 || d.Size > math.MaxUint32 {
		return nil, ota.Invalid("firmware %d has size %d out of range", d.ID, d.Size)
	}
	data, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return nil, ota.Invalid("firmware %d has malformed data: %v", d.ID, err)
	}
	version := ota.Version{Major: uint8(d.VersionM), Minor: uint8(d.VersionN), Patch: uint8(d.VersionL)}
	a, err := ota.NewArtifact(uint16(d.Code), version, fmt.Sprintf("%s/firmware/%d", server, d.ID), data)
	if err != nil {
		return nil, err
	}
	// devices are told the size the firmware server declares
	a.Size = uint32(d.Size)
	return a, nil
}

func (d configDoc) toConfig() (ota.DeviceConfig, error) {
	ts, err := parseSyncTime(d.SyncTS)
	if err != nil {
		return ota.DeviceConfig{}, ota.Invalid("config %d: %v", d.ID, err)
	}
	return ota.DeviceConfig{
		ID:       d.ID,
		GroupID:  uint8(d.GroupID),
		OpCode:   uint8(d.OpCode),
		SyncTime: ts,
		Interval: uint8(d.Interval),
		TempMax:  int16(d.TMax),
		TempMin:  int16(d.TMin),
		Human:    d.Human,
	}, nil
}

func parseSyncTime(s string) (time.Time, error) {
	for _, layout := range syncTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable sync timestamp %q", s)
}
