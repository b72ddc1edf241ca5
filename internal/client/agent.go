// Package client implements the participant side of a meeting session:
// one Agent per joined session, owning the link lifecycle, the reconnect
// policy, and idempotent rendering of replayed transcripts.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/meetlingo/meetlingo/internal/protocol"
	"github.com/meetlingo/meetlingo/internal/utils"
	"github.com/sirupsen/logrus"
)

// State is the agent's connection state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateClosed is terminal: the session ended, no reconnect.
	StateClosed State = "closed"
	// StateFailed is terminal: reconnects exhausted against a dead link.
	StateFailed State = "failed"
)

const (
	defaultReconnectDelay = 3 * time.Second
	defaultMaxReconnects  = 3
)

// Conn is a minimal transport handle; the default implementation wraps a
// gorilla WebSocket, tests substitute scripted connections.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// DialFunc opens one connection attempt.
type DialFunc func(ctx context.Context) (Conn, error)

// Player renders synthesized audio. At most one entry per transcript is
// played; overlapping playback across translations is deliberately
// avoided.
type Player interface {
	Play(language string, audio []byte) error
}

type Config struct {
	// URL of the session WebSocket endpoint.
	URL         string
	SpeakerName string

	Logger *logrus.Logger
	Player Player // optional

	OnTranscript func(*protocol.Transcript)
	OnState      func(State)
	OnError      func(error)

	// Dial overrides the transport; tests use it to script failures.
	Dial DialFunc

	// ReconnectDelay and MaxReconnects default to the 3s / 3-attempt
	// policy; unbounded retry against a dead session is rejected by
	// design.
	ReconnectDelay time.Duration
	MaxReconnects  int
}

type Agent struct {
	cfg  Config
	dial DialFunc
	log  *logrus.Logger

	mu          sync.Mutex
	state       State
	conn        Conn
	lastSeq     int64
	transcripts []*protocol.Transcript
	attempts    int
}

func New(cfg Config) (*Agent, error) {
	if cfg.URL == "" && cfg.Dial == nil {
		return nil, utils.E(utils.CodeInvalidArgument, "client.New", "URL is required", nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}

	dial := cfg.Dial
	if dial == nil {
		dial = Dialer(cfg.URL)
	}

	return &Agent{
		cfg:   cfg,
		dial:  dial,
		log:   cfg.Logger,
		state: StateDisconnected,
	}, nil
}

// Run drives the connection until the session ends (nil), reconnects are
// exhausted (RECONNECT_EXHAUSTED), or ctx is canceled.
func (a *Agent) Run(ctx context.Context) error {
	const op = "Agent.Run"

	for {
		a.setState(StateConnecting)

		conn, err := a.dial(ctx)
		if err != nil {
			a.log.WithError(err).Warn("connect failed")
		} else {
			a.mu.Lock()
			a.conn = conn
			a.mu.Unlock()
			a.setState(StateConnected)

			terminal := a.readLoop(conn)
			_ = conn.Close()
			a.mu.Lock()
			a.conn = nil
			a.mu.Unlock()

			if terminal {
				a.setState(StateClosed)
				return nil
			}
		}

		if ctx.Err() != nil {
			a.setState(StateDisconnected)
			return ctx.Err()
		}

		// unexpected close with no terminal signal: bounded reconnect
		a.mu.Lock()
		a.attempts++
		attempts := a.attempts
		a.mu.Unlock()

		if attempts > a.cfg.MaxReconnects {
			a.setState(StateFailed)
			err := utils.E(utils.CodeReconnectExhausted, op,
				"connection lost, please create a new session", nil)
			a.reportError(err)
			return err
		}

		a.setState(StateReconnecting)
		a.log.WithField("attempt", attempts).Info("reconnecting")

		select {
		case <-time.After(a.cfg.ReconnectDelay):
		case <-ctx.Done():
			a.setState(StateDisconnected)
			return ctx.Err()
		}
	}
}

// readLoop consumes server messages until the connection breaks. Returns
// true only when the terminal session_ended signal was received; a plain
// read failure (cancellation included) is the caller's to classify.
func (a *Agent) readLoop(conn Conn) bool {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return false
		}

		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			a.log.WithError(err).Warn("malformed server message")
			continue
		}

		// a live message means the link (and session) is alive; only
		// then does the consecutive-reconnect counter reset
		a.mu.Lock()
		a.attempts = 0
		a.mu.Unlock()

		switch msg.Type {
		case protocol.TypeTranscript:
			a.handleTranscript(msg.AsTranscript())

		case protocol.TypeSessionEnded:
			a.log.WithField("reason", msg.Reason).Info("session ended")
			return true

		case protocol.TypeError:
			a.reportError(utils.E(utils.Code(msg.Code), "Agent", msg.Message, nil))

		case protocol.TypeConnected, protocol.TypePong, protocol.TypeUserDisconnected:
			// informational

		default:
			a.log.WithField("type", msg.Type).Debug("unknown message type")
		}
	}
}

// handleTranscript renders idempotently by sequence: a reconnect replays
// the full log, so already-seen sequences are dropped.
func (a *Agent) handleTranscript(t *protocol.Transcript) {
	if t == nil {
		return
	}

	a.mu.Lock()
	if t.Sequence <= a.lastSeq {
		a.mu.Unlock()
		return
	}
	a.lastSeq = t.Sequence
	a.transcripts = append(a.transcripts, t)
	a.mu.Unlock()

	if a.cfg.OnTranscript != nil {
		a.cfg.OnTranscript(t)
	}
	a.playOne(t)
}

// playOne plays at most one synthesized audio entry.
func (a *Agent) playOne(t *protocol.Transcript) {
	if a.cfg.Player == nil {
		return
	}
	for lang, audio := range t.Audio {
		if len(audio) == 0 {
			continue
		}
		if err := a.cfg.Player.Play(lang, audio); err != nil {
			a.log.WithError(err).WithField("language", lang).Warn("audio playback failed")
		}
		break
	}
}

// Submit sends one utterance, fire-and-forget. Fails locally with
// CONNECTION_LOST while not connected; nothing is queued.
func (a *Agent) Submit(text, language string) error {
	const op = "Agent.Submit"

	a.mu.Lock()
	conn := a.conn
	connected := a.state == StateConnected
	a.mu.Unlock()

	if !connected || conn == nil {
		return utils.E(utils.CodeConnectionLost, op, "connection lost", nil)
	}

	data, err := json.Marshal(protocol.ClientMessage{
		Type:        protocol.TypeUtterance,
		Text:        text,
		Language:    language,
		SpeakerName: a.cfg.SpeakerName,
	})
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode utterance", err)
	}

	if err := conn.WriteMessage(data); err != nil {
		return utils.E(utils.CodeConnectionLost, op, "connection lost", err)
	}
	return nil
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Transcripts returns the rendered log so far, in sequence order.
func (a *Agent) Transcripts() []*protocol.Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*protocol.Transcript, len(a.transcripts))
	copy(out, a.transcripts)
	return out
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	if a.cfg.OnState != nil {
		a.cfg.OnState(s)
	}
}

func (a *Agent) reportError(err error) {
	if a.cfg.OnError != nil {
		a.cfg.OnError(err)
	}
}
