package main

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/qlchat/qlchat-go/internal/config"
	"github.com/qlchat/qlchat-go/internal/graphql"
	"github.com/qlchat/qlchat-go/internal/session"
	"github.com/rs/zerolog"
)

type loginForm struct {
	input   [2]textinput.Model // email, password
	focus   int
	busy    bool
	errText string
}

func newLoginForm() loginForm {
	email := textinput.New()
	email.Placeholder = "email"
	email.CharLimit = 128
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.CharLimit = 128
	password.EchoMode = textinput.EchoPassword

	return loginForm{input: [2]textinput.Model{email, password}}
}

type signupForm struct {
	input   [3]textinput.Model // name, email, password
	focus   int
	busy    bool
	errText string
}

func newSignupForm() signupForm {
	name := textinput.New()
	name.Placeholder = "user name"
	name.CharLimit = 64
	name.Focus()

	email := textinput.New()
	email.Placeholder = "email"
	email.CharLimit = 128

	password := textinput.New()
	password.Placeholder = "password"
	password.CharLimit = 128
	password.EchoMode = textinput.EchoPassword

	return signupForm{input: [3]textinput.Model{name, email, password}}
}

// loginCmd exchanges credentials for a bearer token and persists it.
func loginCmd(cfg *config.Config, store *session.Store, log zerolog.Logger, email, password string) tea.Cmd {
	return func() tea.Msg {
		api := buildClient(cfg, "", log)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		token, _, err := api.Login(ctx, email, password)
		if err != nil {
			return authDoneMsg{err: err}
		}
		sess, err := session.New(token)
		if err != nil {
			return authDoneMsg{err: err}
		}
		if err := store.Save(token); err != nil {
			log.Warn().Err(err).Msg("Failed to persist credential")
		}
		return authDoneMsg{sess: sess}
	}
}

// signupCmd registers the account and signs in with the new
// credentials in one step.
func signupCmd(cfg *config.Config, store *session.Store, log zerolog.Logger, name, email, password string) tea.Cmd {
	return func() tea.Msg {
		api := buildClient(cfg, "", log)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		if _, err := api.Signup(ctx, name, email, password); err != nil {
			return authDoneMsg{err: err}
		}
		token, _, err := api.Login(ctx, email, password)
		if err != nil {
			return authDoneMsg{err: err}
		}
		sess, err := session.New(token)
		if err != nil {
			return authDoneMsg{err: err}
		}
		if err := store.Save(token); err != nil {
			log.Warn().Err(err).Msg("Failed to persist credential")
		}
		return authDoneMsg{sess: sess}
	}
}

func (a *app) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	f := &a.login

	switch msg := msg.(type) {
	case authDoneMsg:
		f.busy = false
		if msg.err != nil {
			f.errText = authErrorText(msg.err)
			return a, nil
		}
		a.signIn(msg.sess)
		return a, a.fetchConversations()

	case tea.KeyMsg:
		if f.busy {
			return a, nil
		}
		switch msg.String() {
		case "tab", "down":
			f.focus = (f.focus + 1) % len(f.input)
			return a, focusInput(f.input[:], f.focus)
		case "shift+tab", "up":
			f.focus = (f.focus + len(f.input) - 1) % len(f.input)
			return a, focusInput(f.input[:], f.focus)
		case "ctrl+s":
			a.signup = newSignupForm()
			a.scr = screenSignup
			return a, textinput.Blink
		case "enter":
			email := strings.TrimSpace(f.input[0].Value())
			password := f.input[1].Value()
			if email == "" || password == "" {
				f.errText = "email and password are required"
				return a, nil
			}
			f.busy = true
			f.errText = ""
			return a, loginCmd(a.cfg, a.store, a.log, email, password)
		}
	}

	var cmd tea.Cmd
	f.input[f.focus], cmd = f.input[f.focus].Update(msg)
	return a, cmd
}

func (a *app) updateSignup(msg tea.Msg) (tea.Model, tea.Cmd) {
	f := &a.signup

	switch msg := msg.(type) {
	case authDoneMsg:
		f.busy = false
		if msg.err != nil {
			f.errText = authErrorText(msg.err)
			return a, nil
		}
		a.signIn(msg.sess)
		return a, a.fetchConversations()

	case tea.KeyMsg:
		if f.busy {
			return a, nil
		}
		switch msg.String() {
		case "tab", "down":
			f.focus = (f.focus + 1) % len(f.input)
			return a, focusInput(f.input[:], f.focus)
		case "shift+tab", "up":
			f.focus = (f.focus + len(f.input) - 1) % len(f.input)
			return a, focusInput(f.input[:], f.focus)
		case "esc":
			a.scr = screenLogin
			return a, textinput.Blink
		case "enter":
			name := strings.TrimSpace(f.input[0].Value())
			email := strings.TrimSpace(f.input[1].Value())
			password := f.input[2].Value()
			if name == "" || email == "" || password == "" {
				f.errText = "all fields are required"
				return a, nil
			}
			f.busy = true
			f.errText = ""
			return a, signupCmd(a.cfg, a.store, a.log, name, email, password)
		}
	}

	var cmd tea.Cmd
	f.input[f.focus], cmd = f.input[f.focus].Update(msg)
	return a, cmd
}

func focusInput(inputs []textinput.Model, focus int) tea.Cmd {
	for i := range inputs {
		if i == focus {
			inputs[i].Focus()
		} else {
			inputs[i].Blur()
		}
	}
	return textinput.Blink
}

func authErrorText(err error) string {
	switch graphql.KindOf(err) {
	case graphql.KindAccessDenied:
		return "invalid email or password"
	case graphql.KindTransient:
		return "server unreachable, try again"
	}
	return err.Error()
}

func (a *app) viewLogin() string {
	f := a.login
	var b strings.Builder
	b.WriteString(a.sty.title.Render("QL-CHAT") + "\n\n")
	b.WriteString(a.sty.header.Render("Sign in") + "\n\n")
	for i := range f.input {
		b.WriteString(f.input[i].View() + "\n")
	}
	if f.busy {
		b.WriteString("\n" + a.spin.View() + a.sty.label.Render("signing in") + "\n")
	}
	if f.errText != "" {
		b.WriteString("\n" + a.sty.errText.Render(f.errText) + "\n")
	}
	b.WriteString("\n" + a.sty.help.Render("enter sign in · ctrl+s create account · ctrl+c quit"))
	return b.String()
}

func (a *app) viewSignup() string {
	f := a.signup
	var b strings.Builder
	b.WriteString(a.sty.title.Render("QL-CHAT") + "\n\n")
	b.WriteString(a.sty.header.Render("Create account") + "\n\n")
	for i := range f.input {
		b.WriteString(f.input[i].View() + "\n")
	}
	if f.busy {
		b.WriteString("\n" + a.spin.View() + a.sty.label.Render("creating account") + "\n")
	}
	if f.errText != "" {
		b.WriteString("\n" + a.sty.errText.Render(f.errText) + "\n")
	}
	b.WriteString("\n" + a.sty.help.Render("enter submit · esc back to sign in · ctrl+c quit"))
	return b.String()
}
