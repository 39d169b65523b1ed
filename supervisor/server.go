package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/clevergo/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/synapsenet/miner/engine"
	"github.com/synapsenet/miner/internal/minerlog"
)

// Server binds the HTTP route `/<task_id>` and upgrades accepted
// connections to bidirectional framed messages (spec §4.5 steps 4-5).
type Server struct {
	sup      *Supervisor
	upgrader websocket.Upgrader
	log      minerlog.Logger
}

// NewServer builds a Server bound to sup.
func NewServer(sup *Supervisor) *Server {
	return &Server{
		sup:      sup,
		upgrader: websocket.Upgrader{},
		log:      minerlog.Module("supervisor.server"),
	}
}

// Router builds the httprouter.Router serving the supervisor's inference
// endpoint.
func (s *Server) Router() *httprouter.Router {
	r := httprouter.New()
	r.GET("/:task_id", s.handleConnection)
	return r
}

type statusFrame struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	taskIDStr := ps.ByName("task_id")
	if _, err := strconv.ParseUint(taskIDStr, 10, 64); err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "task_id", taskIDStr, "err", err)
		return
	}
	defer conn.Close()

	status, msg := s.sup.Status().Get()
	if status != StatusReady {
		s.writePlaceholder(conn, status, msg)
		return
	}

	eng, shutdownCh, ok := s.sup.ActiveEngine()
	if !ok {
		s.writePlaceholder(conn, StatusIdle, "")
		return
	}

	s.serve(r.Context(), conn, eng, shutdownCh)
}

func (s *Server) writePlaceholder(conn *websocket.Conn, status Status, msg string) {
	frame, _ := json.Marshal(statusFrame{Status: status.String(), Message: msg})
	_ = conn.WriteMessage(websocket.TextMessage, frame)
}

// serve bridges inbound text frames into the engine's request channel and
// outbound engine replies back out as text frames, selecting against the
// shutdown watch so a mid-flight TaskStopRequested cleanly ends the
// handler (spec §4.5 "Per-connection handling").
func (s *Server) serve(ctx context.Context, conn *websocket.Conn, eng engine.Engine, shutdownCh <-chan struct{}) {
	reqs := make(chan engine.Request)
	done := make(chan error, 1)

	go func() {
		done <- eng.Run(ctx, reqs, func(payload []byte) error {
			return conn.WriteMessage(websocket.TextMessage, payload)
		}, shutdownCh)
	}()

	go func() {
		defer close(reqs)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case reqs <- engine.Request{Payload: payload}:
			case <-shutdownCh:
				return
			}
		}
	}()

	if err := <-done; err != nil {
		s.log.Warn("engine run loop ended with error", "err", errors.Cause(err))
	}
	s.sup.MarkDone()
	_ = conn.WriteMessage(websocket.CloseMessage, nil)
}
