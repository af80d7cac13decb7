package main

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/qlchat/qlchat-go/internal/chat"
	"github.com/qlchat/qlchat-go/internal/config"
	"github.com/qlchat/qlchat-go/internal/graphql"
	"github.com/qlchat/qlchat-go/internal/session"
	"github.com/qlchat/qlchat-go/internal/thread"
)

type screen int

const (
	screenLogin screen = iota
	screenSignup
	screenConversations
	screenThread
)

// Messages crossing screen boundaries.
type (
	authDoneMsg struct {
		sess session.Session
		err  error
	}
	conversationsMsg struct {
		convs []chat.Conversation
		err   error
	}
	threadStateMsg struct {
		state thread.State
		ok    bool
	}
	usersFoundMsg struct {
		users []chat.User
		err   error
	}
)

type app struct {
	cfg   *config.Config
	store *session.Store
	log   zerolog.Logger
	sty   styles

	sess session.Session
	api  *chat.Client

	scr    screen
	width  int
	height int

	spin   spinner.Model
	login  loginForm
	signup signupForm
	convs  convList
	thread *threadView
}

func newApp(cfg *config.Config, store *session.Store, log zerolog.Logger) *app {
	a := &app{
		cfg:   cfg,
		store: store,
		log:   log,
		sty:   newStyles(),
		scr:   screenLogin,
	}
	a.spin = spinner.New()
	a.spin.Spinner = spinner.Dot
	a.spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	a.login = newLoginForm()
	a.signup = newSignupForm()
	a.convs = newConvList()

	// Resume a stored credential when one exists.
	if token, err := store.Load(); err == nil {
		if sess, err := session.New(token); err == nil {
			a.signIn(sess)
		} else {
			log.Warn().Err(err).Msg("Stored credential unusable, clearing")
			_ = store.Clear()
		}
	}
	return a
}

// signIn wires the authenticated clients and switches to the
// conversation list.
func (a *app) signIn(sess session.Session) {
	a.sess = sess
	a.api = buildClient(a.cfg, sess.Token, a.log)
	a.scr = screenConversations
	a.convs.loading = true
}

// signOut drops the stored credential and returns to the login form.
func (a *app) signOut() {
	if err := a.store.Clear(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to clear stored credential")
	}
	a.sess = session.Session{}
	a.api = nil
	a.login = newLoginForm()
	a.convs = newConvList()
	a.scr = screenLogin
}

func buildClient(cfg *config.Config, token string, log zerolog.Logger) *chat.Client {
	source := func() string { return token }
	gql := graphql.NewClient(cfg.ServerURL, source, cfg.Timeout, log)
	subs := graphql.NewSubscriber(cfg.WSURL, source, log)
	return chat.NewClient(gql, subs, log)
}

func (a *app) Init() tea.Cmd {
	if a.scr == screenConversations {
		return tea.Batch(textinput.Blink, a.spin.Tick, a.fetchConversations())
	}
	return tea.Batch(textinput.Blink, a.spin.Tick)
}

func (a *app) fetchConversations() tea.Cmd {
	api := a.api
	timeout := a.cfg.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		convs, err := api.Conversations(ctx)
		return conversationsMsg{convs: convs, err: err}
	}
}

func (a *app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.thread != nil {
			a.thread.resize(msg.Width, msg.Height)
		}
		return a, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.closeThread()
			return a, tea.Quit
		}
	}

	switch a.scr {
	case screenLogin:
		return a.updateLogin(msg)
	case screenSignup:
		return a.updateSignup(msg)
	case screenConversations:
		return a.updateConversations(msg)
	case screenThread:
		return a.updateThread(msg)
	}
	return a, nil
}

// closeThread tears down the open synchronizer, if any.
func (a *app) closeThread() {
	if a.thread != nil {
		a.thread.sync.Close()
		a.thread = nil
	}
}

func (a *app) View() string {
	switch a.scr {
	case screenLogin:
		return a.viewLogin()
	case screenSignup:
		return a.viewSignup()
	case screenConversations:
		return a.viewConversations()
	case screenThread:
		return a.viewThread()
	}
	return ""
}
