package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func appendMsg(t *testing.T, db *DB, msgID, from, to, body string, ts int64) *Message {
	t.Helper()
	m := &Message{MsgID: msgID, From: from, To: to, Body: body, Timestamp: ts}
	if err := db.AppendMessage(m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + unread index)", result.Version)
	}
}

func TestAppendAssignsID(t *testing.T) {
	db := testDB(t)

	m := appendMsg(t, db, "m1", "alice", "bob", "hi", 1000)
	if m.ID == 0 {
		t.Error("AppendMessage did not assign a row ID")
	}
}

func TestAppendDuplicateMsgIDFails(t *testing.T) {
	db := testDB(t)

	appendMsg(t, db, "m1", "alice", "bob", "hi", 1000)
	err := db.AppendMessage(&Message{MsgID: "m1", From: "alice", To: "bob", Body: "again", Timestamp: 2000})
	if err == nil {
		t.Error("duplicate msg_id should fail")
	}
}

func TestListBetweenUnorderedPair(t *testing.T) {
	db := testDB(t)

	appendMsg(t, db, "m1", "alice", "bob", "one", 1000)
	appendMsg(t, db, "m2", "bob", "alice", "two", 2000)
	appendMsg(t, db, "m3", "alice", "carol", "other pair", 1500)

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		msgs, err := db.ListBetween(pair[0], pair[1])
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 2 {
			t.Fatalf("ListBetween(%v) returned %d messages, want 2", pair, len(msgs))
		}
		if msgs[0].Body != "one" || msgs[1].Body != "two" {
			t.Errorf("messages out of order: %q, %q", msgs[0].Body, msgs[1].Body)
		}
	}
}

func TestListBetweenTimestampTieBreak(t *testing.T) {
	db := testDB(t)

	// Same timestamp: insertion order must win.
	appendMsg(t, db, "m1", "alice", "bob", "first", 1000)
	appendMsg(t, db, "m2", "alice", "bob", "second", 1000)

	msgs, err := db.ListBetween("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Body != "first" || msgs[1].Body != "second" {
		t.Errorf("tie-break failed: %+v", msgs)
	}
}

func TestListForParticipant(t *testing.T) {
	db := testDB(t)

	appendMsg(t, db, "m1", "alice", "bob", "sent", 1000)
	appendMsg(t, db, "m2", "carol", "alice", "received", 2000)
	appendMsg(t, db, "m3", "bob", "carol", "unrelated", 3000)

	msgs, err := db.ListForParticipant("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Body != "sent" || msgs[1].Body != "received" {
		t.Errorf("unexpected participant history: %+v", msgs)
	}
}

func TestCountUnread(t *testing.T) {
	db := testDB(t)

	appendMsg(t, db, "m1", "alice", "bob", "one", 1000)
	appendMsg(t, db, "m2", "carol", "bob", "two", 2000)
	appendMsg(t, db, "m3", "bob", "alice", "outbound", 3000)

	count, err := db.CountUnread("bob")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("CountUnread(bob) = %d, want 2", count)
	}

	// Outbound messages never count against the sender.
	count, err = db.CountUnread("alice")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("CountUnread(alice) = %d, want 1", count)
	}
}

func TestUnreadBySender(t *testing.T) {
	db := testDB(t)

	appendMsg(t, db, "m1", "alice", "bob", "one", 1000)
	appendMsg(t, db, "m2", "alice", "bob", "two", 2000)
	appendMsg(t, db, "m3", "carol", "bob", "three", 3000)

	counts, err := db.UnreadBySender("bob")
	if err != nil {
		t.Fatal(err)
	}
	if counts["alice"] != 2 || counts["carol"] != 1 {
		t.Errorf("UnreadBySender = %v, want alice:2 carol:1", counts)
	}
	if _, ok := counts["bob"]; ok {
		t.Error("UnreadBySender must not include users with no unread messages")
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	db := testDB(t)

	appendMsg(t, db, "m1", "alice", "bob", "one", 1000)
	appendMsg(t, db, "m2", "alice", "bob", "two", 2000)
	appendMsg(t, db, "m3", "carol", "bob", "three", 3000)

	modified, err := db.MarkRead("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if modified != 2 {
		t.Errorf("MarkRead modified %d rows, want 2", modified)
	}

	// Second call is a no-op.
	modified, err = db.MarkRead("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if modified != 0 {
		t.Errorf("second MarkRead modified %d rows, want 0", modified)
	}

	// Messages from carol are untouched.
	count, err := db.CountUnread("bob")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("CountUnread(bob) = %d, want 1", count)
	}
}

func TestMarkReadVisibleToReads(t *testing.T) {
	db := testDB(t)

	appendMsg(t, db, "m1", "alice", "bob", "hi", 1000)
	if _, err := db.MarkRead("alice", "bob"); err != nil {
		t.Fatal(err)
	}

	// Read-after-write: the flag must be visible on every read path.
	msgs, err := db.ListBetween("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || !msgs[0].IsRead {
		t.Errorf("message not marked read on fetch: %+v", msgs)
	}
	count, err := db.CountUnread("bob")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("CountUnread(bob) = %d, want 0", count)
	}
}
