package main

import (
	"net/http"
	"time"

	"github.com/daniacca/molviz/internal/molviz"
	"github.com/daniacca/molviz/internal/molviz/notifiers"
	"github.com/daniacca/molviz/internal/raster"
)

// Server is the HTTP front of the molecule viewer.
type Server struct {
	library        *molviz.PresetLibrary
	sessions       *molviz.SessionManager
	notifications  *molviz.NotificationManager
	renderer       *raster.Renderer
	snapshotDir    string
	frameInterval  time.Duration
	maxUploadBytes int64
	logger         *Logger
}

// NewServer wires the session manager, notifications and renderer around
// a preset library.
func NewServer(cfg ServerConfig, library *molviz.PresetLibrary, logger *Logger) *Server {
	s := &Server{
		library:        library,
		notifications:  molviz.NewNotificationManager(logger),
		renderer:       raster.New(),
		snapshotDir:    cfg.SnapshotDir,
		frameInterval:  cfg.FrameInterval,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         logger,
	}

	viewport := cfg.Viewport()
	if viewport.Validate() != nil {
		viewport = molviz.Viewport{Width: 800, Height: 600}
	}

	s.sessions = molviz.NewSessionManager(molviz.SessionOptions{
		Decoder:        library,
		Catalogue:      library.Catalogue,
		Notifications:  s.notifications,
		Viewport:       viewport,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SnapshotDir:    cfg.SnapshotDir,
		Logger:         logger,
	}, func(id molviz.SessionID) molviz.SessionHub {
		return notifiers.NewWebSocketNotifier("ws-"+string(id), s.renderer.EncodePNG)
	})

	return s
}

// Routes returns the server's handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/about", s.handleAbout)
	mux.HandleFunc("/presets", s.handlePresets)
	mux.HandleFunc("/styles", s.handleStyles)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/session/", s.handleSessionRoutes)
	mux.HandleFunc("/notifiers", s.handleNotifiersRoutes)
	mux.HandleFunc("/notifiers/", s.handleNotifiersRoutes)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Close tears down every session and notifier.
func (s *Server) Close() error {
	err := s.sessions.Close()
	if nerr := s.notifications.Close(); err == nil {
		err = nerr
	}
	return err
}
