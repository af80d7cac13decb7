package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/qlchat/qlchat-go/internal/chat"
	"github.com/qlchat/qlchat-go/internal/thread"
)

type convList struct {
	all       []chat.Conversation
	cursor    int
	groups    bool
	search    textinput.Model
	searching bool
	loading   bool
	errText   string
}

func newConvList() convList {
	search := textinput.New()
	search.Placeholder = "participant name"
	search.CharLimit = 64
	return convList{search: search, loading: true}
}

// visible applies the type toggle and the participant filter.
func (l *convList) visible() []chat.Conversation {
	return chat.Filter(l.all, l.search.Value(), l.groups)
}

func (l *convList) clampCursor() {
	n := len(l.visible())
	if l.cursor >= n {
		l.cursor = n - 1
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
}

func (a *app) updateConversations(msg tea.Msg) (tea.Model, tea.Cmd) {
	l := &a.convs

	switch msg := msg.(type) {
	case conversationsMsg:
		l.loading = false
		if msg.err != nil {
			l.errText = msg.err.Error()
			return a, nil
		}
		l.errText = ""
		l.all = msg.convs
		l.clampCursor()
		return a, nil

	case tea.KeyMsg:
		if l.searching {
			switch msg.String() {
			case "enter", "esc":
				l.searching = false
				l.search.Blur()
				l.clampCursor()
				return a, nil
			}
			var cmd tea.Cmd
			l.search, cmd = l.search.Update(msg)
			l.clampCursor()
			return a, cmd
		}

		switch msg.String() {
		case "q":
			return a, tea.Quit
		case "up", "k":
			if l.cursor > 0 {
				l.cursor--
			}
			return a, nil
		case "down", "j":
			if l.cursor < len(l.visible())-1 {
				l.cursor++
			}
			return a, nil
		case "g":
			l.groups = !l.groups
			l.clampCursor()
			return a, nil
		case "/":
			l.searching = true
			l.search.Focus()
			return a, textinput.Blink
		case "r":
			l.loading = true
			return a, a.fetchConversations()
		case "L":
			a.signOut()
			return a, textinput.Blink
		case "enter":
			convs := l.visible()
			if len(convs) == 0 {
				return a, nil
			}
			return a.openThread(convs[l.cursor])
		}
	}
	return a, nil
}

// openThread starts a synchronizer for the selected conversation and
// switches to the thread view.
func (a *app) openThread(conv chat.Conversation) (tea.Model, tea.Cmd) {
	sync := thread.New(thread.WrapClient(a.api), a.sess, conv, a.cfg.Timeout, a.log)
	tv := newThreadView(sync, conv.DisplayName(a.sess.Identity.Name))
	tv.resize(a.width, a.height)
	a.thread = &tv
	a.scr = screenThread
	return a, tea.Batch(textinput.Blink, waitForState(sync))
}

func (a *app) viewConversations() string {
	l := a.convs
	var b strings.Builder

	kind := "direct"
	if l.groups {
		kind = "group"
	}
	b.WriteString(a.sty.title.Render("QL-CHAT") + "  " +
		a.sty.label.Render(a.sess.Identity.Name) + "  " +
		a.sty.label.Render("["+kind+"]") + "\n\n")

	if l.searching || l.search.Value() != "" {
		b.WriteString(a.sty.label.Render("filter: ") + l.search.View() + "\n\n")
	}

	switch {
	case l.loading:
		b.WriteString(a.spin.View() + a.sty.label.Render("loading conversations") + "\n")
	case l.errText != "":
		b.WriteString(a.sty.errText.Render(l.errText) + "\n")
	default:
		convs := l.visible()
		if len(convs) == 0 {
			b.WriteString(a.sty.label.Render("no conversations") + "\n")
		}
		for i, c := range convs {
			b.WriteString(a.renderConversation(c, i == l.cursor) + "\n")
		}
	}

	b.WriteString("\n" + a.sty.help.Render("enter open · g direct/group · / filter · r refresh · L log out · q quit"))
	return b.String()
}

func (a *app) renderConversation(c chat.Conversation, selected bool) string {
	marker := "  "
	if selected {
		marker = a.sty.cursor.Render("> ")
	}

	name := c.DisplayName(a.sess.Identity.Name)
	badge := ""
	if c.IsGroup {
		badge = " " + a.sty.groupBadge.Render(fmt.Sprintf("(%d)", len(c.Participants)))
	}

	preview := ""
	if c.LatestMessage != nil {
		preview = "  " + a.sty.preview.Render(c.LatestMessage.Sender.Name+": "+truncate(c.LatestMessage.Content, 48))
	}

	line := a.sty.entry.Render(name)
	if selected {
		line = a.sty.cursor.Render(name)
	}
	return marker + line + badge + preview
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
