package store

// Message is the durable unit of communication between two users.
// A stored message is immutable except for IsRead, which only ever moves
// from false to true.
type Message struct {
	ID        int64
	MsgID     string // server-assigned uuid
	From      string
	To        string
	Body      string
	IsRead    bool
	Timestamp int64 // unix millis, server-assigned at send time
}
