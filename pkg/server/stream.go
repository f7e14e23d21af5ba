package server

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/pipeline"
	"github.com/zen-systems/switchboard/pkg/schema"
	"github.com/zen-systems/switchboard/pkg/trace"
)

// Stream frame types.
const (
	FrameStep   = "step"
	FrameResult = "result"
	FrameError  = "error"
)

const (
	streamRequestWait = 30 * time.Second
	streamWriteWait   = 10 * time.Second
)

// Frame is one server-to-client message on /run_jury/stream.
type Frame struct {
	Type   string                `json:"type"`
	Step   *schema.TraceStep     `json:"step,omitempty"`
	Result *schema.Response      `json:"result,omitempty"`
	Error  *schema.ErrorResponse `json:"error,omitempty"`
}

type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (sc *streamConn) send(f Frame) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_ = sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return sc.conn.WriteJSON(f)
}

// handleStream reads one request from the client, then pushes every step
// transition as it happens and finishes with a result or error frame.
// Closing the socket cancels the run.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()
	defer conn.Close()

	sc := &streamConn{conn: conn}

	_ = conn.SetReadDeadline(time.Now().Add(streamRequestWait))
	var req schema.Request
	if err := conn.ReadJSON(&req); err != nil {
		_ = sc.send(Frame{Type: FrameError, Error: &schema.ErrorResponse{
			Error:   schema.ErrValidation,
			Message: "first message must be a JSON request: " + err.Error(),
		}})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	observer := trace.ObserverFunc(func(step schema.TraceStep) {
		if err := sc.send(Frame{Type: FrameStep, Step: &step}); err != nil {
			cancel()
		}
	})

	resp, runErr := s.runner.Run(ctx, req, observer)
	if runErr != nil {
		body := pipeline.Describe(runErr)
		_ = sc.send(Frame{Type: FrameError, Error: &body})
	} else {
		_ = sc.send(Frame{Type: FrameResult, Result: resp})
	}

	sc.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteWait))
	sc.mu.Unlock()
	_ = conn.Close()
	<-readerDone
}
