package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/meetlingo/meetlingo/internal/hub"
	"github.com/meetlingo/meetlingo/internal/services"
	"github.com/meetlingo/meetlingo/internal/utils"
)

type SessionHandler struct {
	svc services.SessionService
	hub *hub.Hub
}

func NewSessionHandler(svc services.SessionService, h *hub.Hub) *SessionHandler {
	return &SessionHandler{svc: svc, hub: h}
}

type CreateSessionRequest struct {
	ProjectID *string `json:"project_id"`
}

type CreateSessionResponse struct {
	Code      string `json:"code"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Create", "invalid request body", err))
		return
	}

	sess, err := h.svc.Create(c.Request.Context(), req.ProjectID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	// replace any tombstone a previous session left on this code
	h.hub.Open(sess.Code)

	c.JSON(http.StatusOK, CreateSessionResponse{
		Code:      sess.Code,
		Status:    sess.Status,
		CreatedAt: sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

// Join is the pre-flight check before opening the WebSocket: it
// distinguishes "wrong code" (404) from "meeting is over" (410).
func (h *SessionHandler) Join(c *gin.Context) {
	sess, err := h.svc.GetActive(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "successfully joined session",
		"code":    sess.Code,
	})
}

func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	code := c.Param("code")

	sess, err := h.svc.Get(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}
	// only the host may end the meeting
	if sess.CreatedBy != "" && sess.CreatedBy != userID {
		writeError(c, utils.E(utils.CodeForbidden, "SessionHandler.End", "only the session creator can end it", nil))
		return
	}

	ended, err := h.svc.End(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}

	// tear down all live connections after the durable state flips
	h.hub.End(code, "session ended by host")

	c.JSON(http.StatusOK, ended)
}

func (h *SessionHandler) ListRecent(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	rows, err := h.svc.ListRecent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rows)
}
