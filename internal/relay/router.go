// Package relay routes private messages between connected users: it
// persists every accepted send, fans it out to the live connections of the
// recipient and the sender, and keeps read state consistent between the
// live feed and the REST snapshot.
package relay

import (
	"time"

	"github.com/google/uuid"
	"github.com/lancera/courier/internal/bus"
	"github.com/lancera/courier/internal/registry"
	"github.com/lancera/courier/internal/store"
	"github.com/lancera/courier/internal/wire"
	"go.uber.org/zap"
)

// Outcome classifies how far a successful send got. Persistence is the
// source of truth; live delivery is best effort on top of it.
type Outcome int

const (
	// OutcomeStored means the message is durable but the recipient was not
	// reachable on a live connection. Not an error: the recipient picks it
	// up from the snapshot interface.
	OutcomeStored Outcome = iota
	// OutcomeDelivered means the message is durable and was pushed to the
	// recipient's live connection.
	OutcomeDelivered
)

// Router is the delivery state machine for outbound message intents.
type Router struct {
	db         *store.DB
	reg        *registry.Registry
	bus        *bus.Bus
	logger     *zap.Logger
	maxBodyLen int
}

// NewRouter creates a router. maxBodyLen bounds message bodies in bytes.
func NewRouter(db *store.DB, reg *registry.Registry, b *bus.Bus, logger *zap.Logger, maxBodyLen int) *Router {
	return &Router{
		db:         db,
		reg:        reg,
		bus:        b,
		logger:     logger,
		maxBodyLen: maxBodyLen,
	}
}

// Send validates, persists and fans out one message from senderID to
// toUserID. senderID always comes from the authenticated connection, never
// from the payload.
//
// On success the returned message carries the server-assigned id and
// timestamp, and both the recipient (if online) and the sender (if still
// registered) have received a chat message push. Persistence failures abort
// before any fan-out.
func (r *Router) Send(senderID, toUserID, body string) (*store.Message, Outcome, error) {
	if toUserID == "" {
		return nil, OutcomeStored, ErrEmptyRecipient
	}
	if body == "" {
		return nil, OutcomeStored, ErrEmptyBody
	}
	if len(body) > r.maxBodyLen {
		return nil, OutcomeStored, ErrBodyTooLong
	}

	msg := &store.Message{
		MsgID:     uuid.New().String(),
		From:      senderID,
		To:        toUserID,
		Body:      body,
		IsRead:    false,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := r.db.AppendMessage(msg); err != nil {
		r.logger.Error("message append failed",
			zap.Error(err), zap.String("from", senderID), zap.String("to", toUserID))
		return nil, OutcomeStored, &StorageError{Op: "append", Err: err}
	}

	r.publish("relay.message_stored", map[string]string{
		"msg_id": msg.MsgID, "from": msg.From, "to": msg.To,
	})

	push := wire.Envelope{Event: wire.EventChatMessage, Data: wire.FromStore(msg)}

	outcome := OutcomeStored
	if recipient, online := r.reg.Lookup(toUserID); online {
		if err := recipient.Deliver(push); err != nil {
			// Stale handle between lookup and push. The message stays
			// durable; the recipient reconciles via the snapshot fetch.
			r.logger.Warn("recipient push failed",
				zap.Error(err), zap.String("to", toUserID), zap.String("msg_id", msg.MsgID))
		} else {
			outcome = OutcomeDelivered
			r.publish("relay.message_delivered", map[string]string{
				"msg_id": msg.MsgID, "to": msg.To,
			})
		}
	}

	// Echo the authoritative message back to the sender so their UI shows
	// the server-assigned id and timestamp. A self-send already received
	// the push above; do not echo it twice.
	if senderID != toUserID {
		if sender, online := r.reg.Lookup(senderID); online {
			if err := sender.Deliver(push); err != nil {
				r.logger.Warn("sender echo failed",
					zap.Error(err), zap.String("from", senderID), zap.String("msg_id", msg.MsgID))
			}
		}
	}

	return msg, outcome, nil
}

// MarkConversationRead marks every unread message from counterpartID to
// viewerID as read and returns the number of messages modified. The write
// is visible to all subsequent unread queries; a second call is a no-op.
func (r *Router) MarkConversationRead(viewerID, counterpartID string) (int64, error) {
	if counterpartID == "" {
		return 0, ErrEmptyRecipient
	}

	modified, err := r.db.MarkRead(counterpartID, viewerID)
	if err != nil {
		r.logger.Error("mark read failed",
			zap.Error(err), zap.String("viewer", viewerID), zap.String("counterpart", counterpartID))
		return 0, &StorageError{Op: "mark_read", Err: err}
	}

	if modified > 0 {
		r.publish("relay.conversation_read", map[string]any{
			"viewer": viewerID, "counterpart": counterpartID, "modified": modified,
		})
	}
	return modified, nil
}

func (r *Router) publish(kind string, payload any) {
	r.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
