// Command qlchat is the terminal client for the QL-CHAT server: sign
// in, browse conversations, and chat over the live subscription feed.
package main

import (
	"io"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/qlchat/qlchat-go/internal/config"
	"github.com/qlchat/qlchat-go/internal/session"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics listener stopped")
			}
		}()
	}

	store := session.NewStore(cfg.ConfigDir)

	app := newApp(cfg, store, logger)
	program := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logger.Error().Err(err).Msg("Client exited with error")
		os.Exit(1)
	}
}

// newLogger routes structured logs away from the terminal, which the
// TUI owns. Without QLCHAT_LOG_FILE logs are dropped.
func newLogger(cfg *config.Config) zerolog.Logger {
	var w io.Writer = io.Discard
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			w = f
		}
	}

	level := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
