package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/meetlingo/meetlingo/internal/hub"
	"github.com/meetlingo/meetlingo/internal/services"
)

type TranscriptHandler struct {
	sessions    services.SessionService
	transcripts services.TranscriptService
	hub         *hub.Hub
}

func NewTranscriptHandler(sessions services.SessionService, transcripts services.TranscriptService, h *hub.Hub) *TranscriptHandler {
	return &TranscriptHandler{sessions: sessions, transcripts: transcripts, hub: h}
}

// ListBySession returns the full ordered log. While a session is live the
// hub's in-memory log is authoritative (persistence is asynchronous);
// afterwards the durable rows serve history.
func (h *TranscriptHandler) ListBySession(c *gin.Context) {
	code := c.Param("code")

	sess, err := h.sessions.Get(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}

	if sess.Active() {
		if history, ok := h.hub.History(code); ok {
			c.JSON(http.StatusOK, history)
			return
		}
	}

	rows, err := h.transcripts.ListBySession(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *TranscriptHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	rows, err := h.transcripts.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
