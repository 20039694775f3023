// Package ws implements the live channel: a WebSocket endpoint where clients
// join with a credential token, send private messages, and receive pushed
// chat messages and acknowledgments.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lancera/courier/internal/identity"
	"github.com/lancera/courier/internal/registry"
	"github.com/lancera/courier/internal/relay"
	"github.com/lancera/courier/internal/wire"
	"go.uber.org/zap"
)

// inboundEnvelope defers payload decoding until the event is known.
type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler upgrades connections and runs their event loops.
type Handler struct {
	resolver  *identity.Resolver
	reg       *registry.Registry
	router    *relay.Router
	logger    *zap.Logger
	joinGrace time.Duration
	readLimit int64
	upgrader  websocket.Upgrader
}

// NewHandler creates the live channel handler. Connections must present a
// valid join token within joinGrace or they are closed without explanation.
func NewHandler(resolver *identity.Resolver, reg *registry.Registry, router *relay.Router,
	logger *zap.Logger, allowedOrigins []string, joinGrace time.Duration, maxBodyLen int) *Handler {

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &Handler{
		resolver:  resolver,
		reg:       reg,
		router:    router,
		logger:    logger,
		joinGrace: joinGrace,
		// Room for the body plus the envelope and a join token.
		readLimit: int64(maxBodyLen + 8*1024),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin header.
				return origin == "" || allowed[origin]
			},
		},
	}
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsc, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	wsc.SetReadLimit(h.readLimit)

	conn := newConn(wsc)

	userID, err := h.awaitJoin(wsc)
	if err != nil {
		// Fail closed: no error payload, just the close.
		h.logger.Warn("join rejected", zap.Error(err), zap.String("remote", r.RemoteAddr))
		_ = conn.Close()
		return
	}

	h.reg.Register(userID, conn)
	h.logger.Info("user connected", zap.String("user", userID))

	h.readLoop(userID, conn, wsc)

	h.reg.Remove(userID, conn)
	_ = conn.Close()
	h.logger.Info("user disconnected", zap.String("user", userID))
}

// awaitJoin reads the first frame, which must be a join event carrying a
// verifiable token, within the configured grace period.
func (h *Handler) awaitJoin(wsc *websocket.Conn) (string, error) {
	if err := wsc.SetReadDeadline(time.Now().Add(h.joinGrace)); err != nil {
		return "", err
	}

	var env inboundEnvelope
	if err := wsc.ReadJSON(&env); err != nil {
		return "", err
	}
	if env.Event != wire.EventJoin {
		return "", errors.New("first event must be join")
	}

	var join wire.Join
	if err := json.Unmarshal(env.Data, &join); err != nil {
		return "", err
	}

	userID, err := h.resolver.Verify(join.Token)
	if err != nil {
		return "", err
	}

	// Joined: lift the handshake deadline.
	if err := wsc.SetReadDeadline(time.Time{}); err != nil {
		return "", err
	}
	return userID, nil
}

func (h *Handler) readLoop(userID string, conn *Conn, wsc *websocket.Conn) {
	for {
		var env inboundEnvelope
		if err := wsc.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("read failed", zap.Error(err), zap.String("user", userID))
			}
			return
		}

		switch env.Event {
		case wire.EventPrivateMessage:
			h.handlePrivateMessage(userID, conn, env.Data)
		case wire.EventReadMessage:
			h.handleReadMessage(userID, conn, env.Data)
		default:
			h.logger.Warn("unknown event", zap.String("event", env.Event), zap.String("user", userID))
		}
	}
}

func (h *Handler) handlePrivateMessage(userID string, conn *Conn, data json.RawMessage) {
	var pm wire.PrivateMessage
	if err := json.Unmarshal(data, &pm); err != nil {
		h.sendAck(conn, wire.SendAck{Ok: false, Error: "invalid payload"})
		return
	}

	// The sender identity comes from the joined connection, never from the
	// payload.
	_, outcome, err := h.router.Send(userID, pm.ToUsername, pm.Message)
	if err != nil {
		ack := wire.SendAck{Ok: false}
		if relay.IsValidation(err) {
			ack.Error = err.Error()
		} else {
			ack.Error = "message was not delivered"
		}
		h.sendAck(conn, ack)
		return
	}

	h.sendAck(conn, wire.SendAck{Ok: true, Delivered: outcome == relay.OutcomeDelivered})
}

func (h *Handler) handleReadMessage(userID string, conn *Conn, data json.RawMessage) {
	var rm wire.ReadMessage
	if err := json.Unmarshal(data, &rm); err != nil {
		h.deliverQuiet(conn, wire.Envelope{Event: wire.EventReadAck, Data: wire.ReadAck{Ok: false, Error: "invalid payload"}})
		return
	}

	marked, err := h.router.MarkConversationRead(userID, rm.ToUsername)
	if err != nil {
		ack := wire.ReadAck{Ok: false}
		if relay.IsValidation(err) {
			ack.Error = err.Error()
		} else {
			ack.Error = "read state was not updated"
		}
		h.deliverQuiet(conn, wire.Envelope{Event: wire.EventReadAck, Data: ack})
		return
	}

	h.deliverQuiet(conn, wire.Envelope{Event: wire.EventReadAck, Data: wire.ReadAck{Ok: true, Marked: marked}})
}

func (h *Handler) sendAck(conn *Conn, ack wire.SendAck) {
	h.deliverQuiet(conn, wire.Envelope{Event: wire.EventSendAck, Data: ack})
}

func (h *Handler) deliverQuiet(conn *Conn, env wire.Envelope) {
	if err := conn.Deliver(env); err != nil {
		h.logger.Warn("ack delivery failed", zap.Error(err))
	}
}
