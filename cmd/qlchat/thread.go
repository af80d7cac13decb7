package main

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/qlchat/qlchat-go/internal/chat"
	"github.com/qlchat/qlchat-go/internal/graphql"
	"github.com/qlchat/qlchat-go/internal/thread"
)

type threadView struct {
	sync  *thread.Synchronizer
	title string

	state    thread.State
	gotState bool

	input    textinput.Model
	timeline viewport.Model

	// failedApplied guards against re-filling the compose box with the
	// same failed send more than once.
	failedApplied string

	// noticeSeq/noticeHidden dismiss the failure notice after a short
	// delay. Dismissal is keyed on the snapshot's notice sequence, not
	// the text: a repeated failure carries the same text but must be
	// shown again.
	noticeSeq    int
	noticeHidden bool

	// add-participant flow
	adding     bool
	addInput   textinput.Model
	users      []chat.User
	userCursor int
	searchBusy bool
	addErr     string

	width  int
	height int
}

func newThreadView(sync *thread.Synchronizer, title string) threadView {
	input := textinput.New()
	input.Placeholder = "message"
	input.CharLimit = 1024
	input.Focus()

	addInput := textinput.New()
	addInput.Placeholder = "search users"
	addInput.CharLimit = 64

	return threadView{
		sync:     sync,
		title:    title,
		input:    input,
		addInput: addInput,
		timeline: viewport.New(0, 0),
	}
}

func (tv *threadView) resize(width, height int) {
	tv.width = width
	tv.height = height
	tv.timeline.Width = width
	h := height - 7
	if h < 3 {
		h = 3
	}
	tv.timeline.Height = h
}

type noticeExpiredMsg struct{ seq int }

const noticeLifetime = 4 * time.Second

func expireNotice(seq int) tea.Cmd {
	return tea.Tick(noticeLifetime, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

// waitForState blocks on the synchronizer's snapshot channel and
// forwards the next state into the program.
func waitForState(sync *thread.Synchronizer) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-sync.Events()
		return threadStateMsg{state: st, ok: ok}
	}
}

func (a *app) searchUsers(term string) tea.Cmd {
	api := a.api
	timeout := a.cfg.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		users, err := api.SearchUsers(ctx, term)
		return usersFoundMsg{users: users, err: err}
	}
}

func (a *app) updateThread(msg tea.Msg) (tea.Model, tea.Cmd) {
	tv := a.thread
	if tv == nil {
		a.scr = screenConversations
		return a, nil
	}

	switch msg := msg.(type) {
	case threadStateMsg:
		if !msg.ok {
			return a, nil
		}
		tv.state = msg.state
		tv.gotState = true
		if fc := msg.state.FailedContent; fc != "" && fc != tv.failedApplied && tv.input.Value() == "" {
			tv.input.SetValue(fc)
			tv.input.CursorEnd()
			tv.failedApplied = fc
		}
		a.renderTimeline(tv)
		cmds := []tea.Cmd{waitForState(tv.sync)}
		if msg.state.Notice != "" && msg.state.NoticeSeq != tv.noticeSeq {
			tv.noticeSeq = msg.state.NoticeSeq
			tv.noticeHidden = false
			cmds = append(cmds, expireNotice(tv.noticeSeq))
		}
		return a, tea.Batch(cmds...)

	case noticeExpiredMsg:
		if msg.seq == tv.noticeSeq {
			tv.noticeHidden = true
		}
		return a, nil

	case usersFoundMsg:
		tv.searchBusy = false
		if msg.err != nil {
			tv.addErr = msg.err.Error()
			return a, nil
		}
		tv.addErr = ""
		tv.users = msg.users
		tv.userCursor = 0
		return a, nil

	case tea.KeyMsg:
		if tv.adding {
			return a.updateAddParticipant(tv, msg)
		}

		switch msg.String() {
		case "esc":
			a.closeThread()
			a.scr = screenConversations
			a.convs.loading = true
			return a, a.fetchConversations()
		case "ctrl+r":
			if tv.state.Phase == thread.PhaseFailed {
				tv.sync.Retry()
			}
			return a, nil
		case "ctrl+a":
			if tv.state.Conversation.IsGroup {
				tv.adding = true
				tv.users = nil
				tv.addErr = ""
				tv.addInput.SetValue("")
				tv.addInput.Focus()
				tv.input.Blur()
				return a, textinput.Blink
			}
			return a, nil
		case "pgup":
			tv.timeline.HalfViewUp()
			return a, nil
		case "pgdown":
			tv.timeline.HalfViewDown()
			return a, nil
		case "enter":
			if tv.state.Phase == thread.PhaseFailed {
				return a, nil
			}
			content := tv.input.Value()
			if err := tv.sync.Send(content); err != nil {
				if graphql.IsValidation(err) {
					return a, nil
				}
				a.log.Warn().Err(err).Msg("Send rejected")
				return a, nil
			}
			tv.input.SetValue("")
			tv.failedApplied = ""
			return a, nil
		}
	}

	var cmd tea.Cmd
	tv.input, cmd = tv.input.Update(msg)
	return a, cmd
}

func (a *app) updateAddParticipant(tv *threadView, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if len(tv.users) > 0 && !tv.addInput.Focused() {
			tv.users = nil
			tv.addInput.Focus()
			return a, textinput.Blink
		}
		tv.adding = false
		tv.addInput.Blur()
		tv.input.Focus()
		return a, textinput.Blink
	case "enter":
		if tv.addInput.Focused() {
			term := strings.TrimSpace(tv.addInput.Value())
			if term == "" {
				return a, nil
			}
			tv.searchBusy = true
			tv.addInput.Blur()
			return a, a.searchUsers(term)
		}
		if len(tv.users) > 0 {
			tv.sync.AddParticipant(tv.users[tv.userCursor].ID)
			tv.adding = false
			tv.input.Focus()
			return a, textinput.Blink
		}
		return a, nil
	case "up", "k":
		if !tv.addInput.Focused() && tv.userCursor > 0 {
			tv.userCursor--
		}
	case "down", "j":
		if !tv.addInput.Focused() && tv.userCursor < len(tv.users)-1 {
			tv.userCursor++
		}
	}

	if tv.addInput.Focused() {
		var cmd tea.Cmd
		tv.addInput, cmd = tv.addInput.Update(msg)
		return a, cmd
	}
	return a, nil
}

// renderTimeline rebuilds the viewport content from the latest
// snapshot and pins the view to the newest message.
func (a *app) renderTimeline(tv *threadView) {
	var b strings.Builder
	for _, item := range tv.state.Items {
		b.WriteString(a.renderItem(item) + "\n")
	}
	tv.timeline.SetContent(b.String())
	tv.timeline.GotoBottom()
}

func (a *app) renderItem(item thread.Item) string {
	sender := item.Message.Sender.Name
	style := a.sty.sender
	if item.Own {
		sender = "you"
		style = a.sty.ownSender
	}
	line := style.Render(sender+":") + " " + item.Message.Content
	if item.Pending {
		line += " " + a.sty.pending.Render("(sending)")
	}
	return line
}

func (a *app) viewThread() string {
	tv := a.thread
	if tv == nil {
		return ""
	}

	var b strings.Builder
	header := a.sty.title.Render(tv.title)
	if tv.state.Conversation.IsGroup {
		header += " " + a.sty.groupBadge.Render(participantSummary(tv.state.Conversation))
	}
	if tv.state.Reconnecting {
		header += "  " + a.spin.View() + a.sty.reconnect.Render("reconnecting")
	}
	b.WriteString(header + "\n\n")

	switch {
	case !tv.gotState || tv.state.Phase == thread.PhaseLoading:
		b.WriteString(a.spin.View() + a.sty.label.Render("loading messages") + "\n")
	case tv.state.Phase == thread.PhaseFailed:
		b.WriteString(a.sty.errText.Render(failureText(tv.state.Err)) + "\n")
		if graphql.IsTransient(tv.state.Err) {
			b.WriteString(a.sty.help.Render("ctrl+r retry") + "\n")
		}
	default:
		b.WriteString(tv.timeline.View() + "\n")
	}

	if tv.state.Notice != "" && !tv.noticeHidden {
		b.WriteString(a.sty.notice.Render(tv.state.Notice) + "\n")
	}

	if tv.adding {
		b.WriteString(a.viewAddParticipant(tv))
	} else {
		b.WriteString(a.sty.inputFrame.Render(tv.input.View()) + "\n")
		help := "enter send · esc back"
		if tv.state.Conversation.IsGroup {
			help += " · ctrl+a add member"
		}
		b.WriteString(a.sty.help.Render(help))
	}
	return b.String()
}

func (a *app) viewAddParticipant(tv *threadView) string {
	var b strings.Builder
	b.WriteString(a.sty.header.Render("Add participant") + "\n")
	b.WriteString(tv.addInput.View() + "\n")
	switch {
	case tv.searchBusy:
		b.WriteString(a.spin.View() + a.sty.label.Render("searching") + "\n")
	case tv.addErr != "":
		b.WriteString(a.sty.errText.Render(tv.addErr) + "\n")
	default:
		for i, u := range tv.users {
			marker := "  "
			name := u.Name
			if i == tv.userCursor && !tv.addInput.Focused() {
				marker = a.sty.cursor.Render("> ")
				name = a.sty.cursor.Render(name)
			}
			b.WriteString(marker + name + " " + a.sty.label.Render(u.Email) + "\n")
		}
	}
	b.WriteString(a.sty.help.Render("enter search/add · esc cancel"))
	return b.String()
}

func participantSummary(c chat.Conversation) string {
	names := make([]string, 0, len(c.Participants))
	for _, u := range c.Participants {
		names = append(names, u.Name)
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func failureText(err error) string {
	switch graphql.KindOf(err) {
	case graphql.KindAccessDenied:
		return "you no longer have access to this conversation"
	case graphql.KindNotFound:
		return "this conversation no longer exists"
	default:
		if err != nil {
			return err.Error()
		}
		return "could not load messages"
	}
}
