package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/daniacca/molviz/internal/molviz"
	"github.com/daniacca/molviz/internal/molviz/notifiers"
)

//go:embed web/index.html
var indexHTML []byte

const aboutText = `molviz renders PDB molecule files in 3D.

Pick one of the bundled molecules or upload your own .pdb file, then switch
between spheres, wireframe, points, depth, normal and physical styles. Atoms
are colored by element (CPK) and labelled with their symbol; bonds come from
the file's CONECT records.
`

// extractSessionID splits "/session/{id}/rest" into the ID and "/rest".
func extractSessionID(path string) (molviz.SessionID, string) {
	if !strings.HasPrefix(path, "/session/") {
		return "", ""
	}
	rest := path[len("/session/"):]
	idx := strings.Index(rest, "/")
	if idx == -1 {
		return molviz.SessionID(rest), ""
	}
	return molviz.SessionID(rest[:idx]), rest[idx:]
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, molviz.ErrSessionNotFound), errors.Is(err, molviz.ErrNoScene), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, molviz.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, molviz.ErrInvalidExtension),
		errors.Is(err, molviz.ErrUnknownStyle),
		errors.Is(err, molviz.ErrUnknownPreset),
		errors.Is(err, molviz.ErrInvalidViewport),
		errors.Is(err, molviz.ErrDecode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(aboutText))
}

// GET /presets
func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cat := s.library.Catalogue()
	writeJSON(w, http.StatusOK, map[string]any{
		"presets": cat.Entries(),
		"default": cat.Default(),
	})
}

// GET /styles
func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"styles":  molviz.AllStyles(),
		"default": molviz.DefaultStyle,
	})
}

// POST /sessions creates a session; GET /sessions lists them.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		sess, err := s.sessions.Create()
		if err != nil {
			s.logger.Errorf("Failed to create session: error=%v", err)
			http.Error(w, "cannot create session: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if s.frameInterval > 0 {
			sess.Start(s.frameInterval)
		}
		s.logger.Infof("Session created: session_id=%s", sess.ID())
		writeJSON(w, http.StatusCreated, map[string]string{"id": string(sess.ID())})
	case http.MethodGet:
		ids := s.sessions.List()
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = string(id)
		}
		writeJSON(w, http.StatusOK, map[string][]string{"sessions": out})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionRoutes routes /session/{id}/... to the session handlers.
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	id, rest := extractSessionID(r.URL.Path)
	if id == "" {
		http.Error(w, "session ID is required in path: /session/{id}/...", http.StatusBadRequest)
		return
	}

	if rest == "" && r.Method == http.MethodDelete {
		s.handleDeleteSession(w, id)
		return
	}

	sess, ok := s.sessions.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	switch {
	case rest == "/selection" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, sess.Status())
	case rest == "/molecule" && r.Method == http.MethodPost:
		s.handleSelectMolecule(w, r, sess)
	case rest == "/style" && r.Method == http.MethodPost:
		s.handleSelectStyle(w, r, sess)
	case rest == "/upload" && r.Method == http.MethodPost:
		s.handleUpload(w, r, sess)
	case rest == "/scene" && r.Method == http.MethodGet:
		s.handleScene(w, sess)
	case rest == "/frame.png" && r.Method == http.MethodGet:
		s.handleFrame(w, sess)
	case rest == "/viewport" && r.Method == http.MethodPost:
		s.handleViewport(w, r, sess)
	case rest == "/start" && r.Method == http.MethodPost:
		s.handleStart(w, r, sess)
	case rest == "/stop" && r.Method == http.MethodPost:
		sess.Stop()
		s.logger.Infof("Render loop stopped: session_id=%s", id)
		_, _ = w.Write([]byte("render loop stopped"))
	case rest == "/snapshot" && r.Method == http.MethodPost:
		s.handleSaveSnapshot(w, sess)
	case rest == "/snapshot" && r.Method == http.MethodGet:
		s.handleGetSnapshot(w, sess)
	case rest == "/ws" && r.Method == http.MethodGet:
		s.handleWebSocket(w, r, sess)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// DELETE /session/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, id molviz.SessionID) {
	if err := s.sessions.Delete(id); err != nil {
		s.logger.Warnf("Failed to delete session: session_id=%s error=%v", id, err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.logger.Infof("Session deleted: session_id=%s", id)
	_, _ = w.Write([]byte("session deleted"))
}

type selectMoleculeRequest struct {
	Preset string `json:"preset"`
}

// POST /session/{id}/molecule
func (s *Server) handleSelectMolecule(w http.ResponseWriter, r *http.Request, sess *molviz.Session) {
	defer r.Body.Close()
	var req selectMoleculeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.SelectPreset(req.Preset); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.logger.Debugf("Molecule selected: session_id=%s preset=%s", sess.ID(), req.Preset)
	writeJSON(w, http.StatusAccepted, sess.Status())
}

type selectStyleRequest struct {
	Style string `json:"style"`
}

// POST /session/{id}/style
func (s *Server) handleSelectStyle(w http.ResponseWriter, r *http.Request, sess *molviz.Session) {
	defer r.Body.Close()
	var req selectStyleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	style, err := molviz.ParseRenderStyle(req.Style)
	if err == nil {
		err = sess.SelectStyle(style)
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.logger.Debugf("Style selected: session_id=%s style=%s", sess.ID(), style)
	writeJSON(w, http.StatusAccepted, sess.Status())
}

// POST /session/{id}/upload, multipart form with a "file" part.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, sess *molviz.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+64*1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, molviz.ErrFileTooLarge.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "a multipart \"file\" field is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	done, err := sess.Upload(r.Context(), header.Filename, file)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if err := <-done; err != nil {
		s.logger.Warnf("Upload failed: session_id=%s file=%s error=%v", sess.ID(), header.Filename, err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.logger.Infof("File uploaded: session_id=%s file=%s", sess.ID(), header.Filename)
	writeJSON(w, http.StatusAccepted, sess.Status())
}

// GET /session/{id}/scene
func (s *Server) handleScene(w http.ResponseWriter, sess *molviz.Session) {
	scene := sess.Scene()
	if scene == nil {
		http.Error(w, molviz.ErrNoScene.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

// GET /session/{id}/frame.png
func (s *Server) handleFrame(w http.ResponseWriter, sess *molviz.Session) {
	frame := sess.CurrentFrame()
	if frame.Scene == nil {
		http.Error(w, molviz.ErrNoScene.Error(), http.StatusNotFound)
		return
	}
	data, err := s.renderer.EncodePNG(frame)
	if err != nil {
		s.logger.Errorf("Frame render failed: session_id=%s error=%v", sess.ID(), err)
		http.Error(w, "cannot render frame: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// POST /session/{id}/viewport
func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request, sess *molviz.Session) {
	defer r.Body.Close()
	var v molviz.Viewport
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.Resize(v); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// POST /session/{id}/start?interval=ms
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, sess *molviz.Session) {
	interval := s.frameInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if intervalStr := r.URL.Query().Get("interval"); intervalStr != "" {
		ms, err := strconv.Atoi(intervalStr)
		if err != nil || ms <= 0 {
			http.Error(w, "invalid interval: must be a positive integer (milliseconds)", http.StatusBadRequest)
			return
		}
		interval = time.Duration(ms) * time.Millisecond
	}
	sess.Start(interval)
	s.logger.Infof("Render loop started: session_id=%s interval=%v", sess.ID(), interval)
	_, _ = w.Write([]byte("render loop started"))
}

// POST /session/{id}/snapshot
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, sess *molviz.Session) {
	if s.snapshotDir == "" {
		http.Error(w, "snapshot directory not configured", http.StatusInternalServerError)
		return
	}
	path, err := sess.SaveSnapshot()
	if err != nil {
		s.logger.Errorf("Failed to save snapshot: session_id=%s error=%v", sess.ID(), err)
		http.Error(w, "failed to save snapshot: "+err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "path": path})
}

// GET /session/{id}/snapshot
func (s *Server) handleGetSnapshot(w http.ResponseWriter, sess *molviz.Session) {
	if s.snapshotDir == "" {
		http.Error(w, "snapshot directory not configured", http.StatusInternalServerError)
		return
	}
	snap, err := sess.LoadSnapshot()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "snapshot not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to read snapshot: "+err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// clientMessage is a control message received over the websocket.
type clientMessage struct {
	Type   string `json:"type"`
	Preset string `json:"preset,omitempty"`
	Style  string `json:"style,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

func applyClientMessage(sess *molviz.Session, msg clientMessage) error {
	switch msg.Type {
	case "select_molecule":
		return sess.SelectPreset(msg.Preset)
	case "select_style":
		style, err := molviz.ParseRenderStyle(msg.Style)
		if err != nil {
			return err
		}
		return sess.SelectStyle(style)
	case "resize":
		return sess.Resize(molviz.Viewport{Width: msg.Width, Height: msg.Height})
	default:
		return errors.New("unknown message type: " + msg.Type)
	}
}

// GET /session/{id}/ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, sess *molviz.Session) {
	hub, ok := sess.Hub().(*notifiers.WebSocketNotifier)
	if !ok {
		http.Error(w, "websocket not available for this session", http.StatusNotImplemented)
		return
	}

	upgrader := hub.GetUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("WebSocket upgrade failed: session_id=%s error=%v", sess.ID(), err)
		return
	}
	hub.RegisterClient(conn)
	s.logger.Debugf("WebSocket client connected: session_id=%s", sess.ID())

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if err := applyClientMessage(sess, msg); err != nil {
			s.logger.Warnf("WebSocket message rejected: session_id=%s type=%s error=%v", sess.ID(), msg.Type, err)
		}
	}

	hub.UnregisterClient(conn)
	s.logger.Debugf("WebSocket client disconnected: session_id=%s", sess.ID())
}

// handleNotifiersRoutes handles notifier management endpoints
func (s *Server) handleNotifiersRoutes(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/notifiers" && r.Method == http.MethodGet:
		s.handleListNotifiers(w, r)
	case r.URL.Path == "/notifiers" && r.Method == http.MethodPost:
		s.handleRegisterNotifier(w, r)
	case strings.HasPrefix(r.URL.Path, "/notifiers/") && r.Method == http.MethodDelete:
		s.handleUnregisterNotifier(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GET /notifiers
func (s *Server) handleListNotifiers(w http.ResponseWriter, _ *http.Request) {
	ids := s.notifications.ListNotifiers()
	out := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.notifications.GetNotifier(id); ok {
			out = append(out, map[string]string{"id": id, "type": n.Type()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifiers": out})
}

// POST /notifiers
// Body: { "type": "webhook", "id": "my-webhook", "config": { "url": "http://...", "events": ["scene_rebuilt"] } }
type registerNotifierRequest struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleRegisterNotifier(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req registerNotifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}

	var notifier molviz.Notifier
	switch req.Type {
	case "webhook":
		url, ok := req.Config["url"].(string)
		if !ok || url == "" {
			http.Error(w, "webhook URL is required", http.StatusBadRequest)
			return
		}
		var kinds []molviz.EventKind
		if events, ok := req.Config["events"].([]any); ok {
			for _, e := range events {
				if str, ok := e.(string); ok {
					kinds = append(kinds, molviz.EventKind(str))
				}
			}
		}
		wh := notifiers.NewWebhookNotifier(req.ID, url, kinds...)
		if headers, ok := req.Config["headers"].(map[string]any); ok {
			for k, v := range headers {
				if vStr, ok := v.(string); ok {
					wh.SetHeader(k, vStr)
				}
			}
		}
		notifier = wh
	default:
		http.Error(w, "unknown notifier type: "+req.Type, http.StatusBadRequest)
		return
	}

	if err := s.notifications.RegisterNotifier(notifier); err != nil {
		http.Error(w, "cannot register notifier: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Infof("Notifier registered: id=%s type=%s", req.ID, req.Type)
	_, _ = w.Write([]byte("notifier registered"))
}

// DELETE /notifiers/{id}
func (s *Server) handleUnregisterNotifier(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/notifiers/")
	if id == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}
	if err := s.notifications.UnregisterNotifier(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Infof("Notifier unregistered: id=%s", id)
	_, _ = w.Write([]byte("notifier unregistered"))
}
