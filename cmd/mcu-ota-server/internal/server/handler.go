package server

import (
	"context"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/catalog"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/history"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/metrics"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handler answers decoded requests. It is shared by all connections, the
// state of a single connection is passed in as connState.
type Handler struct {
	log      *zap.SugaredLogger
	store    *catalog.Store
	recorder history.Recorder
	tracer   trace.Tracer
}

func NewHandler(log *zap.SugaredLogger, store *catalog.Store, recorder history.Recorder, tracer trace.Tracer) *Handler {
	return &Handler{
		log:      log,
		store:    store,
		recorder: recorder,
		tracer:   tracer,
	}
}

// connState is what a connection remembers between two requests.
type connState struct {
	// pinned binds a running download to the catalog it started in, so a
	// refresh in the middle of a transfer cannot mix two images.
	pinned *downloadPin
}

type downloadPin struct {
	key     ota.Key
	catalog *catalog.Catalog
}

// snapshot returns the pinned catalog for key, the current one otherwise.
func (c *connState) snapshot(key ota.Key, store *catalog.Store) *catalog.Catalog {
	if c.pinned != nil && c.pinned.key == key {
		return c.pinned.catalog
	}
	return store.Load()
}

// Handle answers req. Failures are returned as *protocol.Error.
func (h *Handler) Handle(ctx context.Context, st *connState, req protocol.Request) ([]byte, error) {
	ctx, span := h.tracer.Start(ctx, "ota."+req.Type().String(), trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	metrics.FrameReceived(req.Type().String())

	var (
		resp []byte
		err  error
	)
	switch r := req.(type) {
	case protocol.InfoQuery:
		span.SetAttributes(attribute.Int("ota.code", int(r.Code)))
		resp, err = h.info(r)
	case protocol.DownloadRequest:
		span.SetAttributes(
			attribute.Int("ota.code", int(r.Code)),
			attribute.String("ota.version", r.Version.String()),
			attribute.Int("ota.index", int(r.Index)),
			attribute.Int("ota.slice_size", int(r.SliceSize)),
		)
		resp, err = h.download(st, r)
	case protocol.DownloadEndRequest:
		span.SetAttributes(
			attribute.Int("ota.code", int(r.Code)),
			attribute.String("ota.version", r.Version.String()),
			attribute.Bool("ota.success", r.Success),
		)
		resp, err = h.end(ctx, st, r)
	case protocol.ConfigQuery:
		resp, err = h.config()
	default:
		err = protocol.NewError(protocol.UnknownPackageType, "no handler for %s", req.Type())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (h *Handler) info(q protocol.InfoQuery) ([]byte, error) {
	a, ok := h.store.Load().FindLatest(q.Code)
	if !ok {
		return nil, protocol.NewError(protocol.NoFirmwareFound, "no firmware with code %04X", q.Code)
	}
	return protocol.EncodeFirmwareInfo(a.Info), nil
}

func (h *Handler) download(st *connState, d protocol.DownloadRequest) ([]byte, error) {
	key := ota.Key{Code: d.Code, Version: d.Version}
	c := st.snapshot(key, h.store)
	a, ok := c.FindExact(d.Code, d.Version)
	if !ok {
		st.pinned = nil
		return nil, protocol.NewError(protocol.NoFirmwareFound, "no firmware %04X-%s", d.Code, d.Version)
	}
	st.pinned = &downloadPin{key: key, catalog: c}

	chunk, ok := catalog.Slice(a.Data, int(d.Index), int(d.SliceSize))
	if !ok {
		return nil, protocol.NewError(protocol.FirmwareReadError, "slice %d of size %d is beyond the %d bytes of %s", d.Index, d.SliceSize, len(a.Data), a.Info)
	}
	return protocol.EncodeFirmwareData(a.Info, d.Index, chunk)
}

func (h *Handler) end(ctx context.Context, st *connState, e protocol.DownloadEndRequest) ([]byte, error) {
	record := ota.UpgradeHistory{
		SerialNumber: e.SerialNumber,
		DeviceID:     e.DeviceID,
		Code:         e.Code,
		Version:      e.Version,
		Success:      e.Success,
	}
	if err := h.recorder.Record(ctx, record); err != nil {
		h.log.Errorw("cannot record upgrade history", "history", record.String(), "error", err)
	}

	key := ota.Key{Code: e.Code, Version: e.Version}
	c := st.snapshot(key, h.store)
	if st.pinned != nil && st.pinned.key == key {
		st.pinned = nil
	}

	a, ok := c.FindExact(e.Code, e.Version)
	if !ok {
		return nil, protocol.NewError(protocol.NoFirmwareFound, "no firmware %04X-%s", e.Code, e.Version)
	}
	return protocol.EncodeDownloadEnd(a.Info), nil
}

func (h *Handler) config() ([]byte, error) {
	cfg := h.store.Load().Config()
	if cfg == nil {
		return nil, protocol.NewError(protocol.NoFirmwareFound, "no device config available")
	}
	return protocol.EncodeConfig(*cfg), nil
}
