// Package wire defines the JSON shapes shared by the live WebSocket channel
// and the REST snapshot interface. Store records are converted at this
// boundary; internal types never leak to clients.
package wire

import (
	"time"

	"github.com/lancera/courier/internal/store"
)

// Live channel event names.
const (
	// Client to server.
	EventJoin           = "join"
	EventPrivateMessage = "private message"
	EventReadMessage    = "read message"

	// Server to client.
	EventChatMessage = "chat message"
	EventSendAck     = "send ack"
	EventReadAck     = "read ack"
)

// Envelope frames every event on the live channel.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Join is the first frame a client must send after the upgrade.
type Join struct {
	Token string `json:"token"`
}

// PrivateMessage is an outbound message intent. The sender identity is
// never read from this payload; it comes from the authenticated connection.
type PrivateMessage struct {
	ToUsername string `json:"toUsername"`
	Message    string `json:"message"`
}

// ReadMessage asks to mark the named counterparty's messages to the caller
// as read.
type ReadMessage struct {
	ToUsername string `json:"toUsername"`
}

// Message is the client-facing form of a persisted message.
type Message struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message"`
	IsRead    bool   `json:"isRead"`
	Timestamp string `json:"timestamp"`
}

// SendAck tells the sender whether their send request was accepted, and if
// so whether the recipient was online to receive it. It is distinct from the
// chat message echo.
type SendAck struct {
	Ok        bool   `json:"ok"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// ReadAck reports the result of a read message request.
type ReadAck struct {
	Ok     bool   `json:"ok"`
	Marked int64  `json:"marked"`
	Error  string `json:"error,omitempty"`
}

// FromStore converts a persisted message to its wire form. Timestamps go
// out as ISO-8601 in UTC.
func FromStore(m *store.Message) Message {
	return Message{
		From:      m.From,
		To:        m.To,
		Message:   m.Body,
		IsRead:    m.IsRead,
		Timestamp: time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339Nano),
	}
}

// FromStoreSlice converts a batch of persisted messages, returning an empty
// slice rather than nil so JSON encodes [] instead of null.
func FromStoreSlice(msgs []store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, FromStore(&msgs[i]))
	}
	return out
}
