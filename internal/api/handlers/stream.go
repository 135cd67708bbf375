package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bess-impact/internal/api/middleware"
	"bess-impact/internal/api/models"
	"bess-impact/internal/sweep"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const requestTimeout = 30 * time.Second

// Stream handles GET /api/v1/stream/runs. The client sends one RunRequest;
// the server answers with a sweep_step message per sweep step, then
// run_complete (or error) and closes.
func (h *RunHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	var req models.RunRequest
	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		h.send(conn, models.StreamEnvelope{
			Type:    models.StreamError,
			Payload: models.ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return
	}

	// Sweep steps run sequentially on this goroutine, so writes never overlap.
	onStep := func(s sweep.Step) {
		h.send(conn, models.StreamEnvelope{Type: models.StreamSweepStep, Payload: models.SweepPointFrom(s)})
	}
	_, res, err := h.execute(req.Config, onStep)
	if err == nil {
		_, err = h.save(res, req.Options.DryRun)
	}
	if err != nil {
		h.send(conn, models.StreamEnvelope{Type: models.StreamError, Payload: middleware.Detail(err)})
		return
	}
	h.send(conn, models.StreamEnvelope{Type: models.StreamComplete, Payload: summaryFromResult(res)})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *RunHandler) send(conn *websocket.Conn, env models.StreamEnvelope) {
	if err := conn.WriteJSON(env); err != nil {
		h.logger.Warn("websocket write", "type", env.Type, "error", err)
	}
}
