package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/meetlingo/meetlingo/internal/hub"
	"github.com/meetlingo/meetlingo/internal/protocol"
	"github.com/meetlingo/meetlingo/internal/providers/stt"
	"github.com/meetlingo/meetlingo/internal/services"
	"github.com/meetlingo/meetlingo/internal/utils"
	"github.com/sirupsen/logrus"
)

type WSHandler struct {
	sessions   services.SessionService
	utterances services.UtteranceService
	hub        *hub.Hub
	stt        stt.Provider // may be nil
	log        *logrus.Logger
	upgrader   websocket.Upgrader
}

func NewWSHandler(sessions services.SessionService, utterances services.UtteranceService, h *hub.Hub, sttProvider stt.Provider, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		sessions:   sessions,
		utterances: utterances,
		hub:        h,
		stt:        sttProvider,
		log:        log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteJSON(v)
}

func (h *WSHandler) SessionWS(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "WSHandler.SessionWS", "missing session code", nil))
		return
	}

	// reject before upgrading so NOT_FOUND / SESSION_ENDED surface as
	// plain HTTP statuses the client can message on
	if _, err := h.sessions.GetActive(c.Request.Context(), code); err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}

	hubConn, err := h.hub.Join(code)
	if err != nil {
		_ = wc.writeJSON(protocol.ErrorMessage(string(utils.ErrCode(err)), "session has ended"))
		return
	}
	defer h.hub.Leave(hubConn)

	_ = wc.writeJSON(protocol.ServerMessage{
		Type:        protocol.TypeConnected,
		SessionCode: code,
		Message:     "connected to session",
	})

	// writer: hub -> socket. Exits on the terminal signal or when the
	// hub drops this connection; closing the socket unblocks the reader.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case m := <-hubConn.Messages():
				if wc.writeJSON(m) != nil || m.Type == protocol.TypeSessionEnded {
					return
				}
			case <-hubConn.Done():
				// drain what was queued before the close, the terminal
				// session_ended signal included
				for {
					select {
					case m := <-hubConn.Messages():
						if wc.writeJSON(m) != nil || m.Type == protocol.TypeSessionEnded {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()
	go func() {
		<-writeDone
		_ = conn.Close()
	}()

	// reader: socket -> pipeline -> hub
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = wc.writeJSON(protocol.ErrorMessage(string(utils.CodeInvalidArgument), "invalid json"))
			continue
		}

		switch msg.Type {
		case protocol.TypeUtterance:
			h.publishUtterance(c.Request.Context(), wc, code, msg.SpeakerName, msg.Text, msg.Language)

		case protocol.TypeAudio:
			h.handleAudio(c.Request.Context(), wc, code, msg)

		case protocol.TypePing:
			_ = wc.writeJSON(protocol.ServerMessage{Type: protocol.TypePong})

		default:
			_ = wc.writeJSON(protocol.ErrorMessage(string(utils.CodeInvalidArgument), "unknown message type"))
		}
	}
}

func (h *WSHandler) publishUtterance(ctx context.Context, wc *wsConn, code, speaker, text, language string) {
	draft, err := h.utterances.Submit(ctx, code, speaker, text, language)
	if err != nil {
		_ = wc.writeJSON(protocol.ErrorMessage(string(utils.ErrCode(err)), "failed to process utterance"))
		return
	}

	if _, err := h.hub.Publish(ctx, code, draft); err != nil {
		_ = wc.writeJSON(protocol.ErrorMessage(string(utils.ErrCode(err)), "failed to publish transcript"))
	}
}

func (h *WSHandler) handleAudio(ctx context.Context, wc *wsConn, code string, msg protocol.ClientMessage) {
	if h.stt == nil {
		_ = wc.writeJSON(protocol.ErrorMessage(string(utils.CodeUnavailable), "audio transcription is not available"))
		return
	}

	raw := msg.AudioBase64
	if i := strings.Index(raw, ","); i >= 0 {
		raw = raw[i+1:] // strip data:...;base64,
	}
	audio, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(audio) == 0 {
		_ = wc.writeJSON(protocol.ErrorMessage(string(utils.CodeInvalidArgument), "invalid audio payload"))
		return
	}

	text, confidence, err := h.stt.Transcribe(ctx, audio, speechLanguage(msg.Language))
	if err != nil {
		_ = wc.writeJSON(protocol.ErrorMessage(string(utils.CodeUnavailable), "transcription failed"))
		return
	}
	if strings.TrimSpace(text) == "" {
		_ = wc.writeJSON(protocol.ErrorMessage(string(utils.CodeInvalidArgument), "could not transcribe audio, please speak clearly and try again"))
		return
	}

	h.log.WithFields(logrus.Fields{
		"session_code": code,
		"confidence":   confidence,
	}).Debug("audio transcribed")

	h.publishUtterance(ctx, wc, code, msg.SpeakerName, text, msg.Language)
}

// speechLanguage maps the protocol's short codes to recognizer locales.
func speechLanguage(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "ko":
		return "ko-KR"
	case "bn":
		return "bn-IN"
	case "en", "":
		return "en-US"
	default:
		return code
	}
}
