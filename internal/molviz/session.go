package molviz

import (
	"context"
	"errors"
	"io"
	"time"
)

// SessionID identifies one open view.
type SessionID string

// SessionHub is the per-session push channel: it receives the session's
// events and its rendered frames.
type SessionHub interface {
	Notifier
	FrameSink
}

// SessionOptions is what every session of a manager shares.
type SessionOptions struct {
	Decoder        Decoder
	Catalogue      func() *Catalogue
	Notifications  *NotificationManager
	Viewport       Viewport
	MaxUploadBytes int64
	SnapshotDir    string
	Logger         Logger
}

// SessionStatus is the externally visible state of a session.
type SessionStatus struct {
	ID        SessionID `json:"id"`
	Selection Selection `json:"selection"`
	Token     uint64    `json:"token"`
	LastError string    `json:"last_error,omitempty"`
	Running   bool      `json:"running"`
	Viewport  Viewport  `json:"viewport"`
	CreatedAt time.Time `json:"created_at"`
}

// Session owns the selection, the scene builder and the render loop of one
// viewer. Selection changes rebuild the scene; build outcomes are published
// to the hub and to every registered webhook.
type Session struct {
	id            SessionID
	createdAt     time.Time
	controller    *Controller
	builder       *SceneBuilder
	loop          *RenderLoop
	ingestor      *FileIngestor
	hub           SessionHub
	notifications *NotificationManager
	snapshotDir   string
	logger        Logger

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// NewSession creates a session showing initial and starts its first build.
// hub may be nil.
func NewSession(id SessionID, initial Selection, opts SessionOptions, hub SessionHub) (*Session, error) {
	logger := withSession(opts.Logger, id)
	if opts.Decoder == nil {
		return nil, errors.New("session needs a decoder")
	}

	loop, err := NewRenderLoop(nil, opts.Viewport, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            id,
		createdAt:     time.Now(),
		controller:    NewController(initial, opts.Catalogue),
		builder:       NewSceneBuilder(opts.Decoder, opts.Catalogue, logger),
		loop:          loop,
		hub:           hub,
		notifications: opts.Notifications,
		snapshotDir:   opts.SnapshotDir,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
	s.loop.scene = s.builder.Scene
	s.ingestor = NewFileIngestor(s.controller, opts.MaxUploadBytes, logger)
	if hub != nil {
		s.loop.AddSink(hub)
	}

	s.builder.OnResult(s.onBuild)
	s.unsubscribe = s.controller.Subscribe(s.onSelection)
	s.builder.Build(s.ctx, initial.Source, initial.Style)

	logger.Infof("Session created: source=%s style=%s", initial.Source.Label(), initial.Style)
	return s, nil
}

func (s *Session) onSelection(sel Selection) {
	s.publish(SceneEvent{
		SessionID: s.id,
		Kind:      EventSelectionChanged,
		Style:     sel.Style,
		Source:    sel.Source,
		Timestamp: time.Now().Unix(),
	})
	s.builder.Build(s.ctx, sel.Source, sel.Style)
}

func (s *Session) onBuild(res BuildResult) {
	if res.Outcome == BuildFailed && IsCanceled(res.Err) && s.ctx.Err() != nil {
		return
	}
	if ev, ok := eventFromResult(s.id, res); ok {
		s.publish(ev)
	}
	if res.Outcome == BuildFailed && !IsCanceled(res.Err) {
		s.revert(res.Source)
	}
}

// revert restores the source of the visible scene after a build of failed
// fails. If the style moved on meanwhile the scene is rebuilt to match.
func (s *Session) revert(failed MoleculeSource) {
	scene, good := s.builder.Current()
	if scene == nil || good == failed {
		return
	}
	if !s.controller.RevertSource(failed, good) {
		return
	}
	s.logger.Warnf("Selection reverted: failed=%s restored=%s", failed.Label(), good.Label())

	sel := s.controller.Selection()
	if sel.Style != scene.Style {
		s.controller.Refresh()
		return
	}
	s.publish(SceneEvent{
		SessionID: s.id,
		Kind:      EventSelectionChanged,
		Token:     scene.Token,
		Style:     sel.Style,
		Source:    sel.Source,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Session) publish(ev SceneEvent) {
	if s.hub != nil {
		ctx, cancel := context.WithTimeout(s.ctx, time.Second)
		if err := s.hub.Notify(ctx, ev); err != nil {
			s.logger.Debugf("Hub notification failed: kind=%s error=%v", ev.Kind, err)
		}
		cancel()
	}
	if s.notifications != nil {
		s.notifications.Enqueue(ev, s.notifications.NotifierIDsByType("webhook"))
	}
}

func (s *Session) ID() SessionID { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Selection returns the current selection.
func (s *Session) Selection() Selection { return s.controller.Selection() }

// Scene is the current scene or nil before the first successful build.
func (s *Session) Scene() *SceneGraph { return s.builder.Scene() }

// LastError is the failure of the latest build, if any.
func (s *Session) LastError() error { return s.builder.LastError() }

// SelectPreset switches to a catalogue molecule.
func (s *Session) SelectPreset(name string) error {
	return s.controller.SetPreset(name)
}

// SelectStyle switches the rendering style.
func (s *Session) SelectStyle(style RenderStyle) error {
	return s.controller.SetStyle(style)
}

// Upload ingests a file. A rejected name is reported as a file_rejected
// event and leaves the session unchanged.
func (s *Session) Upload(ctx context.Context, name string, r io.Reader) (<-chan error, error) {
	done, err := s.ingestor.Ingest(ctx, name, r)
	if err != nil {
		sel := s.controller.Selection()
		s.publish(SceneEvent{
			SessionID: s.id,
			Kind:      EventFileRejected,
			Style:     sel.Style,
			Source:    sel.Source,
			Error:     err.Error(),
			Timestamp: time.Now().Unix(),
		})
		return nil, err
	}
	return done, nil
}

// Start runs the render loop.
func (s *Session) Start(interval time.Duration) { s.loop.Run(interval) }

// Stop pauses the render loop.
func (s *Session) Stop() { s.loop.Stop() }

// Resize changes the viewport.
func (s *Session) Resize(v Viewport) error { return s.loop.Resize(v) }

// CurrentFrame is the frame at the loop's present rotation.
func (s *Session) CurrentFrame() Frame { return s.loop.CurrentFrame() }

// Loop exposes the render loop.
func (s *Session) Loop() *RenderLoop { return s.loop }

// Hub is the session's push channel, or nil.
func (s *Session) Hub() SessionHub { return s.hub }

// WaitIdle blocks until every issued build has finished.
func (s *Session) WaitIdle() { s.builder.Wait() }

// Status summarises the session.
func (s *Session) Status() SessionStatus {
	st := SessionStatus{
		ID:        s.id,
		Selection: s.controller.Selection(),
		Token:     s.builder.Latest(),
		Running:   s.loop.Running(),
		Viewport:  s.loop.Viewport(),
		CreatedAt: s.createdAt,
	}
	if err := s.builder.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// Snapshot captures the current scene and the source it was built from.
func (s *Session) Snapshot() (Snapshot, error) {
	scene, src := s.builder.Current()
	if scene == nil {
		return Snapshot{}, ErrNoScene
	}
	return Snapshot{
		SessionID: s.id,
		Token:     scene.Token,
		Style:     scene.Style,
		Source:    src,
		Scene:     scene,
	}, nil
}

// SaveSnapshot writes the current scene to the snapshot directory.
func (s *Session) SaveSnapshot() (string, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return "", err
	}
	p, err := WriteSnapshot(s.snapshotDir, snap)
	if err != nil {
		return "", err
	}
	s.logger.Infof("Snapshot written: path=%s token=%d", p, snap.Token)
	return p, nil
}

// LoadSnapshot reads the last snapshot written for this session.
func (s *Session) LoadSnapshot() (Snapshot, error) {
	return ReadSnapshot(s.snapshotDir, s.id)
}

// Close stops the loop, cancels any build and closes the hub.
func (s *Session) Close() error {
	s.unsubscribe()
	s.loop.Stop()
	s.cancel()
	s.builder.Close()
	s.logger.Infof("Session closed")
	if s.hub != nil {
		return s.hub.Close()
	}
	return nil
}
