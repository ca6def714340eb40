package events

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/canvasflow/workflow"
)

// WSHandler 将事件中心通过 WebSocket 推送给前端画布
// WSHandler upgrades HTTP requests and streams a run's events as JSON text
// frames. The connection closes after the terminal result event.
type WSHandler struct {
	hub          *Hub
	runs         workflow.RunStore
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewWSHandler creates the websocket push handler.
func NewWSHandler(hub *Hub, runs workflow.RunStore, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		hub:          hub,
		runs:         runs,
		logger:       logger.With(zap.String("component", "ws_events")),
		writeTimeout: 10 * time.Second,
	}
}

// ServeHTTP handles GET /ws/workflows/runs/{id}. The run id is the last path
// segment. An unknown run closes the socket with a policy violation.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The canvas UI is served from another origin in development.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket 升级失败 | websocket accept failed", zap.Error(err))
		return
	}

	run, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "unknown run")
		return
	}

	events, cancel := h.hub.Subscribe(runID)
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	// Replay the current status so late subscribers see where the run is,
	// then stream live events.
	snapshot := workflow.Event{
		Type:      workflow.EventWorkflowStatus,
		RunID:     run.ID,
		Status:    run.Status,
		Timestamp: time.Now().UTC(),
	}
	if run.IsTerminal() {
		snapshot.Type = workflow.EventWorkflowResult
		snapshot.Payload = run.Output
	}
	if err := h.write(ctx, conn, snapshot); err != nil {
		conn.Close(websocket.StatusInternalError, "write failed")
		return
	}
	if run.IsTerminal() {
		conn.Close(websocket.StatusNormalClosure, "run finished")
		return
	}

	g, gctx := errgroup.WithContext(ctx)

	// Reader pump: the client sends nothing meaningful, but reading is
	// required to notice the peer going away.
	g.Go(func() error {
		for {
			if _, _, err := conn.Read(gctx); err != nil {
				return err
			}
		}
	})

	// Writer pump.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case event, ok := <-events:
				if !ok {
					return nil
				}
				if err := h.write(gctx, conn, event); err != nil {
					return err
				}
				if event.Type == workflow.EventWorkflowResult {
					// Unblocks the reader pump so Wait can return.
					stop()
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil && websocket.CloseStatus(err) == -1 {
		h.logger.Debug("websocket 会话结束 | websocket session ended",
			zap.String("run_id", runID), zap.Error(err))
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, event workflow.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
