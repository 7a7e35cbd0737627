package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mxf-project/mxf/internal/auth"
	"github.com/mxf-project/mxf/internal/bus"
	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/internal/orpar"
	"github.com/mxf-project/mxf/pkg/models"
)

// handshakeFrame is the "handshake" frame's Data payload: the two-layer
// credential (domain key + per-agent keyId/secretKey) plus the channel the
// agent is connecting into (spec §4.2).
type handshakeFrame struct {
	DomainKey   string `json:"domainKey"`
	KeyID       string `json:"keyId"`
	SecretKey   string `json:"secretKey"`
	ChannelID   string `json:"channelId"`
	DisplayName string `json:"displayName"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Token       string `json:"token"`
	SessionID   string `json:"sessionId"`
}

// handshakeAck is returned on the wire after a successful handshake,
// carrying the session token a transport may present on reconnect to skip
// the full credential exchange.
type handshakeAck struct {
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	ChannelID string `json:"channelId"`
	Token     string `json:"token"`
}

// handleWebsocket upgrades the request to the duplex transport, runs the
// handshake, then pumps inbound message frames into the agent's runtime
// and bus envelopes back out, grounded on the teacher's ws_control_plane.go
// narrowed to MXF's single "handshake, then message/event duplex" shape
// (no admin sub-protocols).
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := bus.NewConn(w, r, s.logger)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	first, err := conn.ReadFrame()
	if err != nil {
		s.logger.Warn(ctx, "failed to read handshake frame", "error", err)
		return
	}
	if first.Type != "handshake" {
		_ = conn.WriteFrame(errorFrame(first.RequestID, mxferrors.New(mxferrors.AuthMissing, "first frame must be type \"handshake\"")))
		return
	}

	var hs handshakeFrame
	if err := json.Unmarshal(first.Data, &hs); err != nil {
		_ = conn.WriteFrame(errorFrame(first.RequestID, mxferrors.Wrap(mxferrors.ValidationError, err, "malformed handshake payload")))
		return
	}

	identity, channelID, err := s.authenticate(hs)
	if err != nil {
		_ = conn.WriteFrame(errorFrame(first.RequestID, err))
		return
	}

	s.Channels.AddMember(channelID, identity.AgentID)
	if _, ok := s.Agents.Get(identity.AgentID, channelID); !ok {
		s.Agents.Upsert(models.Agent{
			AgentID:     identity.AgentID,
			ChannelID:   channelID,
			DisplayName: hs.DisplayName,
			LLMAdapterConfig: models.AdapterConfig{
				Provider: hs.Provider,
				Model:    hs.Model,
			},
			Status: models.AgentStatusIdle,
		})
	}

	// A token-resumed handshake that also presents the prior sessionId
	// rejoins that session (and its lock) instead of minting a fresh one,
	// so a reconnecting transport picks its ORPAR turn back up with the
	// same history rather than starting a parallel session.
	sessionID := uuid.NewString()
	if hs.Token != "" && hs.SessionID != "" {
		sessionID = hs.SessionID
	}

	// Serialize everything this session does for the rest of the
	// connection's lifetime: at most one principal drives a session's
	// ORPAR loop at a time (spec §4.2). Acquired before Open so a
	// racing reconnect onto the same resumed sessionID queues instead
	// of running concurrently with this connection's message loop.
	if err := s.Locker.Lock(ctx, sessionID); err != nil {
		_ = conn.WriteFrame(errorFrame(first.RequestID, err))
		return
	}
	defer s.Locker.Unlock(sessionID)

	session := s.Sessions.Open(models.Session{
		ID:         sessionID,
		AgentID:    identity.AgentID,
		ChannelID:  channelID,
		DomainAuth: true,
	})

	token, err := s.JWT.Generate(identity.AgentID, channelID)
	if err != nil {
		s.logger.Error(ctx, "failed to issue session token", "error", err)
		_ = conn.WriteFrame(errorFrame(first.RequestID, mxferrors.Wrap(mxferrors.OperationFailed, err, "failed to issue session token")))
		return
	}

	ackData, _ := json.Marshal(handshakeAck{
		SessionID: session.ID,
		AgentID:   identity.AgentID,
		ChannelID: channelID,
		Token:     token,
	})
	if err := conn.WriteFrame(&bus.Frame{Type: "handshake.ack", RequestID: first.RequestID, Data: ackData, Timestamp: time.Now()}); err != nil {
		return
	}

	rt, err := s.RuntimeFor(ctx, identity.AgentID, channelID, session.ID)
	if err != nil {
		_ = conn.WriteFrame(errorFrame(first.RequestID, err))
		return
	}

	view := bus.NewChannelView(s.Bus, identity.AgentID, channelID)
	sub := view.On("")
	defer sub.Close()

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.Pump(pumpCtx, sub)

	s.Agents.SetStatus(identity.AgentID, channelID, models.AgentStatusRunning)
	defer s.Agents.SetStatus(identity.AgentID, channelID, models.AgentStatusOffline)
	defer s.Sessions.Close(session.ID)

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		s.Sessions.Touch(session.ID)

		switch frame.Type {
		case "message":
			s.handleMessageFrame(ctx, conn, rt, frame)
		case "ping":
			_ = conn.WriteFrame(&bus.Frame{Type: "pong", RequestID: frame.RequestID, Timestamp: time.Now()})
		default:
			_ = conn.WriteFrame(errorFrame(frame.RequestID, mxferrors.New(mxferrors.ValidationError, "unknown frame type %q", frame.Type)))
		}
	}
}

// messageFrame is the "message" frame's Data payload: one inbound user
// turn for the agent's ORPAR loop to process.
type messageFrame struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// resultFrame is returned on the wire after a turn completes.
type resultFrame struct {
	Message    models.ConversationMessage `json:"message"`
	Iterations int                        `json:"iterations"`
}

func (s *Server) handleMessageFrame(ctx context.Context, conn *bus.Conn, rt *orpar.AgentRuntime, frame *bus.Frame) {
	var payload messageFrame
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		_ = conn.WriteFrame(errorFrame(frame.RequestID, mxferrors.Wrap(mxferrors.ValidationError, err, "malformed message payload")))
		return
	}

	inbound := models.ConversationMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   payload.Content,
		Metadata:  payload.Metadata,
		CreatedAt: time.Now(),
	}

	result, err := rt.Process(ctx, inbound)
	if err != nil {
		_ = conn.WriteFrame(errorFrame(frame.RequestID, err))
		return
	}

	data, err := json.Marshal(resultFrame{Message: result.FinalMessage, Iterations: result.Iterations})
	if err != nil {
		s.logger.Error(ctx, "failed to marshal turn result", "error", err)
		return
	}
	_ = conn.WriteFrame(&bus.Frame{
		Type:      "message.result",
		ChannelID: frame.ChannelID,
		RequestID: frame.RequestID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func errorFrame(requestID string, err error) *bus.Frame {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return &bus.Frame{Type: "error", RequestID: requestID, Data: data, Timestamp: time.Now()}
}

// authenticate runs the two-layer handshake, or validates a presented
// session token to resume a prior session without repeating the full
// credential exchange (C2: JWT session-token layer).
func (s *Server) authenticate(hs handshakeFrame) (*auth.Identity, string, error) {
	if hs.Token != "" {
		identity, err := s.JWT.Validate(hs.Token)
		if err != nil {
			return nil, "", err
		}
		channelID := hs.ChannelID
		if channelID == "" {
			return nil, "", mxferrors.New(mxferrors.ValidationError, "channelId is required to resume a session")
		}
		return identity, channelID, nil
	}

	if hs.ChannelID == "" {
		return nil, "", mxferrors.New(mxferrors.ValidationError, "channelId is required")
	}
	identity, err := s.Auth.Authenticate(context.Background(), auth.HandshakeRequest{
		DomainKey: hs.DomainKey,
		KeyID:     hs.KeyID,
		SecretKey: hs.SecretKey,
	})
	if err != nil {
		return nil, "", err
	}
	return identity, hs.ChannelID, nil
}
