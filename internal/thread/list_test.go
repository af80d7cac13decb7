package thread

import (
	"testing"

	"github.com/qlchat/qlchat-go/internal/chat"
)

func msg(id, sender, content string) chat.Message {
	return chat.Message{
		ID:      id,
		Sender:  chat.User{Name: sender},
		Content: content,
	}
}

func listIDs(l *list) []string {
	out := make([]string, 0, len(l.items))
	for _, it := range l.items {
		out = append(out, it.Message.ID)
	}
	return out
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestAppendDedupesByID(t *testing.T) {
	l := newList()
	if !l.append(msg("m1", "alice", "hi")) {
		t.Fatal("first append should succeed")
	}
	if l.append(msg("m1", "alice", "hi")) {
		t.Fatal("duplicate id must be rejected")
	}
	if l.append(msg("m1", "bob", "different content, same id")) {
		t.Fatal("dedupe is by identifier, not content")
	}
	if !equalIDs(listIDs(l), []string{"m1"}) {
		t.Fatalf("unexpected list: %v", listIDs(l))
	}
}

func TestAppendIgnoresMissingID(t *testing.T) {
	l := newList()
	if l.append(chat.Message{Content: "no id"}) {
		t.Fatal("messages without an id are not appendable")
	}
}

func TestMergeHistoryAppendsLiveOnlyAfter(t *testing.T) {
	// a live message landed before the history fetch completed
	l := newList()
	l.append(msg("m3", "bob", "live"))

	l.mergeHistory([]chat.Message{msg("m1", "alice", "a"), msg("m2", "bob", "b")})

	if !equalIDs(listIDs(l), []string{"m1", "m2", "m3"}) {
		t.Fatalf("expected [m1 m2 m3], got %v", listIDs(l))
	}
}

func TestMergeHistoryPrefersHistoricalOrderForOverlap(t *testing.T) {
	l := newList()
	l.append(msg("m2", "bob", "b"))
	l.append(msg("m3", "bob", "c"))

	l.mergeHistory([]chat.Message{msg("m1", "alice", "a"), msg("m2", "bob", "b")})

	if !equalIDs(listIDs(l), []string{"m1", "m2", "m3"}) {
		t.Fatalf("expected [m1 m2 m3], got %v", listIDs(l))
	}
}

func TestMergeHistoryKeepsPendingEchoes(t *testing.T) {
	l := newList()
	l.appendPending("corr-1", msg("", "alice", "outbound"))

	l.mergeHistory([]chat.Message{msg("m1", "bob", "a")})

	if len(l.items) != 2 {
		t.Fatalf("expected pending echo to survive, got %v", l.items)
	}
	if !l.items[1].Pending || l.items[1].CorrelationID != "corr-1" {
		t.Fatalf("pending echo lost its identity: %+v", l.items[1])
	}
}

func TestConfirmResolvesEchoInPlace(t *testing.T) {
	l := newList()
	l.append(msg("m1", "bob", "a"))
	l.appendPending("corr-1", msg("", "alice", "outbound"))

	l.confirm("corr-1", msg("m2", "alice", "outbound"))

	if !equalIDs(listIDs(l), []string{"m1", "m2"}) {
		t.Fatalf("expected [m1 m2], got %v", listIDs(l))
	}
	if l.items[1].Pending {
		t.Fatal("confirmed entry still marked pending")
	}
	// the live echo of the same send arrives later
	if l.append(msg("m2", "alice", "outbound")) {
		t.Fatal("live echo of a confirmed send must be suppressed")
	}
}

func TestConfirmAfterLiveEchoDropsPendingEntry(t *testing.T) {
	l := newList()
	l.appendPending("corr-1", msg("", "alice", "outbound"))
	// the live feed wins the race against the send acknowledgment
	l.append(msg("m2", "alice", "outbound"))

	l.confirm("corr-1", msg("m2", "alice", "outbound"))

	if !equalIDs(listIDs(l), []string{"m2"}) {
		t.Fatalf("expected exactly one m2, got %v", listIDs(l))
	}
}

func TestDropPending(t *testing.T) {
	l := newList()
	l.append(msg("m1", "bob", "a"))
	l.appendPending("corr-1", msg("", "alice", "failing"))

	l.dropPending("corr-1")

	if !equalIDs(listIDs(l), []string{"m1"}) {
		t.Fatalf("expected failed echo removed, got %v", listIDs(l))
	}
}
