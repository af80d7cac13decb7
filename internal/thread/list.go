package thread

import "github.com/qlchat/qlchat-go/internal/chat"

// Item is one entry in a conversation's ordered message list.
type Item struct {
	Message chat.Message
	// Pending marks an optimistic local echo awaiting server confirmation.
	Pending bool
	// CorrelationID ties a pending echo to its in-flight send. Empty once
	// the server id is known.
	CorrelationID string
	// Own marks a message sent by the session identity. Stable across
	// token refreshes: it compares against the identity the synchronizer
	// was constructed with.
	Own bool
}

// list owns ordering and id-based dedupe for one conversation. The list
// is append-only: entries are never removed or reordered once accepted,
// except a pending echo being resolved in place or dropped on failure.
type list struct {
	items []Item
	ids   map[string]struct{} // server ids present
}

func newList() *list {
	return &list{ids: make(map[string]struct{})}
}

// append inserts a server-delivered message unless its id is already
// present. Reports whether the list changed.
func (l *list) append(msg chat.Message) bool {
	if msg.ID == "" {
		return false
	}
	if _, dup := l.ids[msg.ID]; dup {
		return false
	}
	l.ids[msg.ID] = struct{}{}
	l.items = append(l.items, Item{Message: msg})
	return true
}

// appendPending inserts an optimistic local echo keyed by corr.
func (l *list) appendPending(corr string, msg chat.Message) {
	l.items = append(l.items, Item{Message: msg, Pending: true, CorrelationID: corr})
}

// confirm resolves the pending echo corr to the server-assigned message.
// If the live feed already delivered the same id, the echo is dropped so
// the id appears exactly once.
func (l *list) confirm(corr string, msg chat.Message) {
	if _, dup := l.ids[msg.ID]; dup && msg.ID != "" {
		l.dropPending(corr)
		return
	}
	for i := range l.items {
		if l.items[i].Pending && l.items[i].CorrelationID == corr {
			l.items[i] = Item{Message: msg}
			l.ids[msg.ID] = struct{}{}
			return
		}
	}
	// echo vanished (history refresh raced the ack); fall back to append
	l.append(msg)
}

// dropPending removes a failed echo.
func (l *list) dropPending(corr string) {
	for i := range l.items {
		if l.items[i].Pending && l.items[i].CorrelationID == corr {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

// mergeHistory reconciles a fresh bulk fetch with the current list. The
// historical order wins for overlapping ids; entries the history does
// not know about (live arrivals during the fetch, pending echoes) keep
// their relative order and move after the historical block.
func (l *list) mergeHistory(history []chat.Message) {
	ids := make(map[string]struct{}, len(history))
	merged := make([]Item, 0, len(history)+len(l.items))

	for _, m := range history {
		if m.ID == "" {
			continue
		}
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		merged = append(merged, Item{Message: m})
	}

	for _, it := range l.items {
		if it.Message.ID != "" {
			if _, dup := ids[it.Message.ID]; dup {
				continue
			}
			ids[it.Message.ID] = struct{}{}
		} else if !it.Pending {
			continue
		}
		merged = append(merged, it)
	}

	l.items = merged
	l.ids = ids
}

// snapshot returns a copy safe to hand outside the loop.
func (l *list) snapshot() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}
