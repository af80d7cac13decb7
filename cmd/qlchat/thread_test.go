package main

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/rs/zerolog"

	"github.com/qlchat/qlchat-go/internal/config"
	"github.com/qlchat/qlchat-go/internal/thread"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	a := &app{
		cfg:  &config.Config{Timeout: time.Second},
		sty:  newStyles(),
		spin: spinner.New(),
		log:  zerolog.Nop(),
		scr:  screenThread,
	}
	tv := newThreadView(nil, "bob")
	a.thread = &tv
	return a
}

func failedSendState(seq int) thread.State {
	return thread.State{
		ConversationID: "c1",
		Phase:          thread.PhaseReady,
		Notice:         "message not sent, try again",
		NoticeSeq:      seq,
		FailedContent:  "hello",
	}
}

func TestSendFailureNoticeAutoDismisses(t *testing.T) {
	a := newTestApp(t)

	a.updateThread(threadStateMsg{state: failedSendState(1), ok: true})
	if a.thread.noticeHidden {
		t.Fatal("notice hidden immediately after failure")
	}
	if !strings.Contains(a.viewThread(), "not sent") {
		t.Fatal("failure notice missing from view")
	}

	a.updateThread(noticeExpiredMsg{seq: 1})
	if !a.thread.noticeHidden {
		t.Fatal("notice not dismissed after expiry")
	}
	if strings.Contains(a.viewThread(), "not sent") {
		t.Fatal("dismissed notice still rendered")
	}
}

func TestRepeatedSendFailureReshowsNotice(t *testing.T) {
	a := newTestApp(t)

	a.updateThread(threadStateMsg{state: failedSendState(1), ok: true})
	a.updateThread(noticeExpiredMsg{seq: 1})

	// a second failure carries the same text under a new sequence
	a.updateThread(threadStateMsg{state: failedSendState(2), ok: true})
	if a.thread.noticeHidden {
		t.Fatal("second failure's notice not shown")
	}
	if !strings.Contains(a.viewThread(), "not sent") {
		t.Fatal("second failure's notice missing from view")
	}

	// the first failure's stale expiry must not dismiss the second notice
	a.updateThread(noticeExpiredMsg{seq: 1})
	if a.thread.noticeHidden {
		t.Fatal("stale expiry dismissed the current notice")
	}
	a.updateThread(noticeExpiredMsg{seq: 2})
	if !a.thread.noticeHidden {
		t.Fatal("second notice not dismissed after its own expiry")
	}
}

func TestFailedContentRestoredIntoInput(t *testing.T) {
	a := newTestApp(t)

	a.updateThread(threadStateMsg{state: failedSendState(1), ok: true})
	if got := a.thread.input.Value(); got != "hello" {
		t.Fatalf("input = %q, want failed content restored", got)
	}
}
