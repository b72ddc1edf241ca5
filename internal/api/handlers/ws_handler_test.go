package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/meetlingo/meetlingo/internal/hub"
	"github.com/meetlingo/meetlingo/internal/models"
	"github.com/meetlingo/meetlingo/internal/protocol"
	"github.com/meetlingo/meetlingo/internal/services"
	"github.com/meetlingo/meetlingo/internal/utils"
	"github.com/sirupsen/logrus"
)

type stubSessionService struct {
	sessions map[string]*models.Session
}

func (s *stubSessionService) Create(context.Context, *string, string) (*models.Session, error) {
	return nil, utils.E(utils.CodeInternal, "stub", "not implemented", nil)
}

func (s *stubSessionService) Get(_ context.Context, code string) (*models.Session, error) {
	sess, ok := s.sessions[code]
	if !ok {
		return nil, utils.E(utils.CodeNotFound, "stub", "session not found", nil)
	}
	return sess, nil
}

func (s *stubSessionService) GetActive(ctx context.Context, code string) (*models.Session, error) {
	sess, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		return nil, utils.E(utils.CodeSessionEnded, "stub", "session has ended", nil)
	}
	return sess, nil
}

func (s *stubSessionService) End(_ context.Context, code string) (*models.Session, error) {
	sess, ok := s.sessions[code]
	if !ok {
		return nil, utils.E(utils.CodeNotFound, "stub", "session not found", nil)
	}
	sess.Status = models.SessionEnded
	return sess, nil
}

func (s *stubSessionService) ListRecent(context.Context, int64) ([]models.Session, error) {
	return nil, nil
}

// echoUtterances skips translation: every target echoes the source.
type echoUtterances struct{}

func (echoUtterances) Submit(_ context.Context, sessionCode, speakerName, text, language string) (*protocol.Transcript, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, "stub", "utterance text is empty", nil)
	}
	if speakerName == "" {
		speakerName = services.DefaultSpeaker
	}
	return &protocol.Transcript{
		SessionCode:      sessionCode,
		SpeakerName:      speakerName,
		OriginalText:     text,
		OriginalLanguage: language,
		Translations:     map[string]string{language: text},
	}, nil
}

func newWSServer(t *testing.T) (*httptest.Server, *hub.Hub, *stubSessionService) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	sessions := &stubSessionService{sessions: map[string]*models.Session{
		"123456": {Code: "123456", Status: models.SessionActive},
	}}
	h := hub.New(log, nil)

	r := gin.New()
	wsh := NewWSHandler(sessions, echoUtterances{}, h, nil, log)
	r.GET("/ws/session/:code", wsh.SessionWS)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h, sessions
}

func wsDial(t *testing.T, srv *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session/" + code
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestSessionWSUtteranceRoundTrip(t *testing.T) {
	srv, _, _ := newWSServer(t)

	alice := wsDial(t, srv, "123456")
	if msg := readMessage(t, alice); msg.Type != protocol.TypeConnected {
		t.Fatalf("first message type = %q, want connected", msg.Type)
	}

	bob := wsDial(t, srv, "123456")
	if msg := readMessage(t, bob); msg.Type != protocol.TypeConnected {
		t.Fatalf("first message type = %q, want connected", msg.Type)
	}

	if err := alice.WriteJSON(protocol.ClientMessage{
		Type:        protocol.TypeUtterance,
		Text:        "hello everyone",
		Language:    "en",
		SpeakerName: "alice",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// both participants receive the sequenced transcript, the speaker included
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readMessage(t, conn)
		if msg.Type != protocol.TypeTranscript {
			t.Fatalf("type = %q, want transcript", msg.Type)
		}
		if msg.Sequence != 1 || msg.OriginalText != "hello everyone" || msg.SpeakerName != "alice" {
			t.Errorf("transcript = seq %d text %q speaker %q", msg.Sequence, msg.OriginalText, msg.SpeakerName)
		}
	}
}

func TestSessionWSReplayOnJoin(t *testing.T) {
	srv, _, _ := newWSServer(t)

	alice := wsDial(t, srv, "123456")
	readMessage(t, alice) // connected

	for _, text := range []string{"one", "two", "three"} {
		if err := alice.WriteJSON(protocol.ClientMessage{Type: protocol.TypeUtterance, Text: text, Language: "en"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		readMessage(t, alice) // own echo keeps ordering deterministic
	}

	late := wsDial(t, srv, "123456")
	if msg := readMessage(t, late); msg.Type != protocol.TypeConnected {
		t.Fatalf("type = %q, want connected", msg.Type)
	}
	for i := 1; i <= 3; i++ {
		msg := readMessage(t, late)
		if msg.Type != protocol.TypeTranscript || msg.Sequence != int64(i) {
			t.Fatalf("replay %d: type %q seq %d", i, msg.Type, msg.Sequence)
		}
	}
}

func TestSessionWSEndDeliversTerminalSignal(t *testing.T) {
	srv, h, _ := newWSServer(t)

	conn := wsDial(t, srv, "123456")
	readMessage(t, conn) // connected

	h.End("123456", "host ended the meeting")

	msg := readMessage(t, conn)
	if msg.Type != protocol.TypeSessionEnded {
		t.Fatalf("type = %q, want session_ended", msg.Type)
	}
	if msg.Reason != "host ended the meeting" {
		t.Errorf("reason = %q", msg.Reason)
	}

	// the server closes the socket after the terminal signal
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("socket still open after session_ended")
	}
}

func TestSessionWSRejectsUnknownAndEndedSessions(t *testing.T) {
	srv, _, sessions := newWSServer(t)
	sessions.sessions["654321"] = &models.Session{Code: "654321", Status: models.SessionEnded}

	for _, tc := range []struct {
		code string
		want int
	}{
		{"999999", http.StatusNotFound},
		{"654321", http.StatusGone},
	} {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session/" + tc.code
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("dial %s succeeded, want rejection", tc.code)
		}
		if resp == nil || resp.StatusCode != tc.want {
			t.Errorf("code %s: status = %v, want %d", tc.code, respStatus(resp), tc.want)
		}
	}
}

func TestSessionWSPingPong(t *testing.T) {
	srv, _, _ := newWSServer(t)

	conn := wsDial(t, srv, "123456")
	readMessage(t, conn) // connected

	if err := conn.WriteJSON(protocol.ClientMessage{Type: protocol.TypePing}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != protocol.TypePong {
		t.Fatalf("type = %q, want pong", msg.Type)
	}
}

func TestSessionWSEmptyUtteranceErrorEnvelope(t *testing.T) {
	srv, _, _ := newWSServer(t)

	conn := wsDial(t, srv, "123456")
	readMessage(t, conn) // connected

	raw, _ := json.Marshal(protocol.ClientMessage{Type: protocol.TypeUtterance, Text: "   "})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != protocol.TypeError {
		t.Fatalf("type = %q, want error", msg.Type)
	}
	if msg.Code != string(utils.CodeInvalidArgument) {
		t.Errorf("code = %q, want INVALID_ARGUMENT", msg.Code)
	}
}

func respStatus(r *http.Response) any {
	if r == nil {
		return "<no response>"
	}
	return r.StatusCode
}
