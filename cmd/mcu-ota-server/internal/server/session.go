package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/metrics"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/protocol"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	stateAwaitFrame = "AwaitFrame"
	stateDispatch   = "Dispatch"
	stateRespond    = "Respond"
	stateClosed     = "Closed"

	eventFrame   = "frame"
	eventDrop    = "drop"
	eventRespond = "respond"
	eventNext    = "next"
	eventClose   = "close"
)

func sessionEvents() fsm.Events {
	return fsm.Events{
		{Name: eventFrame, Src: []string{stateAwaitFrame}, Dst: stateDispatch},
		{Name: eventDrop, Src: []string{stateDispatch}, Dst: stateAwaitFrame},
		{Name: eventRespond, Src: []string{stateDispatch}, Dst: stateRespond},
		{Name: eventNext, Src: []string{stateRespond}, Dst: stateAwaitFrame},
		{Name: eventClose, Src: []string{stateAwaitFrame, stateDispatch, stateRespond}, Dst: stateClosed},
	}
}

// session serves one device connection. Requests are handled strictly in
// the order they arrive.
type session struct {
	log         *zap.SugaredLogger
	conn        net.Conn
	reader      *protocol.Reader
	handler     *Handler
	idleTimeout time.Duration
	fsm         *fsm.FSM

	state    connState
	response []byte
	writeErr error
}

func newSession(log *zap.SugaredLogger, conn net.Conn, handler *Handler, idleTimeout time.Duration) *session {
	s := &session{
		log:         log.With("remote", conn.RemoteAddr().String()),
		conn:        conn,
		reader:      protocol.NewReader(conn),
		handler:     handler,
		idleTimeout: idleTimeout,
	}
	s.fsm = fsm.NewFSM(
		stateAwaitFrame,
		sessionEvents(),
		fsm.Callbacks{
			"enter_" + stateDispatch: s.dispatch,
			"enter_" + stateRespond:  s.respond,
			"enter_" + stateClosed:   s.close,
		},
	)
	return s
}

func (s *session) run(ctx context.Context) {
	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("panic while serving connection", "panic", r)
			_ = s.conn.Close()
		}
	}()

	s.log.Debugw("connection accepted")
	for s.fsm.Current() != stateClosed {
		if err := s.step(ctx); err != nil {
			s.log.Errorw("invalid connection state transition", "state", s.fsm.Current(), "error", err)
			_ = s.conn.Close()
			return
		}
	}
}

// step fires the one event that leaves the current state.
func (s *session) step(ctx context.Context) error {
	switch s.fsm.Current() {
	case stateAwaitFrame:
		frame, err := s.readFrame(ctx)
		if err != nil {
			if _, ok := protocol.AsError(err); !ok {
				return s.fsm.Event(eventClose, err)
			}
		}
		return s.fsm.Event(eventFrame, ctx, frame, err)
	case stateDispatch:
		if s.response == nil {
			return s.fsm.Event(eventDrop)
		}
		return s.fsm.Event(eventRespond)
	case stateRespond:
		if s.writeErr != nil {
			return s.fsm.Event(eventClose, s.writeErr)
		}
		return s.fsm.Event(eventNext)
	}
	return fmt.Errorf("no event leaves state %s", s.fsm.Current())
}

func (s *session) readFrame(ctx context.Context) ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := s.reader.ReadFrame()
	if n := s.reader.Skipped(); n > 0 {
		s.log.Infow("dropped bytes without frame magic", "bytes", n)
		metrics.Dropped(n)
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return frame, err
}

// dispatch decodes the frame that was read and computes the response. It
// leaves no response for data that is dropped silently.
func (s *session) dispatch(e *fsm.Event) {
	s.response = nil
	s.writeErr = nil

	ctx, _ := e.Args[0].(context.Context)
	frame, _ := e.Args[1].([]byte)
	readErr, _ := e.Args[2].(error)

	if readErr != nil {
		s.response = s.fail(readErr)
		return
	}

	req, err := protocol.Decode(frame)
	if errors.Is(err, protocol.ErrFraming) {
		s.log.Infow("dropped frame with invalid magic", "bytes", len(frame))
		metrics.Dropped(len(frame))
		return
	}
	if err != nil {
		s.response = s.fail(err)
		return
	}

	s.log.Debugw("request received", "request", req.Type().String())
	resp, err := s.handler.Handle(ctx, &s.state, req)
	if err != nil {
		s.response = s.fail(err)
		return
	}
	s.response = resp
}

// fail turns err into an error response.
func (s *session) fail(err error) []byte {
	code := protocol.FirmwareReadError
	if perr, ok := protocol.AsError(err); ok {
		code = perr.Code
	}
	s.log.Infow("request failed", "code", code.String(), "error", err)
	metrics.ErrorSent(code.String())
	return protocol.EncodeError(code)
}

func (s *session) respond(_ *fsm.Event) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.idleTimeout)); err != nil {
		s.writeErr = err
		return
	}
	n, err := s.conn.Write(s.response)
	metrics.Sent(n)
	s.writeErr = err
}

func (s *session) close(e *fsm.Event) {
	var reason error
	if len(e.Args) > 0 {
		reason, _ = e.Args[0].(error)
	}

	switch {
	case reason == nil, errors.Is(reason, io.EOF):
		s.log.Debugw("connection closed by device")
	case errors.Is(reason, context.Canceled):
		s.log.Infow("connection closed on shutdown")
	case errors.Is(reason, os.ErrDeadlineExceeded):
		s.log.Infow("connection idle, closing", "idle-timeout", s.idleTimeout)
	default:
		s.log.Warnw("connection failed", "error", reason)
	}

	if err := s.conn.Close(); err != nil {
		s.log.Debugw("cannot close connection", "error", err)
	}
}
