package molviz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHub keeps every event and frame it is handed.
type recordingHub struct {
	id     string
	mu     sync.Mutex
	events []SceneEvent
	frames []Frame
	closed bool
}

func (h *recordingHub) ID() string   { return h.id }
func (h *recordingHub) Type() string { return "recording" }

func (h *recordingHub) Notify(_ context.Context, ev SceneEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *recordingHub) RenderFrame(f Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
	return nil
}

func (h *recordingHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *recordingHub) kinds() []EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EventKind, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Kind
	}
	return out
}

func (h *recordingHub) last() SceneEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

func testSessionOptions(t *testing.T) SessionOptions {
	t.Helper()
	lib, err := OpenPresetLibrary("", "", nil)
	require.NoError(t, err)
	return SessionOptions{
		Decoder:     lib,
		Catalogue:   lib.Catalogue,
		Viewport:    Viewport{Width: 320, Height: 240},
		SnapshotDir: t.TempDir(),
	}
}

func newTestSession(t *testing.T, opts SessionOptions) (*Session, *recordingHub) {
	t.Helper()
	hub := &recordingHub{id: "hub"}
	s, err := NewSession("s1", Selection{Source: PresetSource("caffeine"), Style: StyleSpheres}, opts, hub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.WaitIdle()
	return s, hub
}

func TestSession_InitialBuild(t *testing.T) {
	s, hub := newTestSession(t, testSessionOptions(t))

	scene := s.Scene()
	require.NotNil(t, scene)
	assert.Len(t, scene.Atoms, 24)
	assert.Len(t, scene.Bonds, 25)
	assert.Len(t, scene.Labels, 24)
	assert.Equal(t, []EventKind{EventSceneRebuilt}, hub.kinds())

	st := s.Status()
	assert.Equal(t, SessionID("s1"), st.ID)
	assert.Equal(t, uint64(1), st.Token)
	assert.Empty(t, st.LastError)
	assert.False(t, st.Running)
	assert.Equal(t, Viewport{Width: 320, Height: 240}, st.Viewport)
}

func TestSession_StyleChangeRebuilds(t *testing.T) {
	s, hub := newTestSession(t, testSessionOptions(t))

	require.NoError(t, s.SelectStyle(StyleWireframe))
	s.WaitIdle()

	assert.Equal(t, []EventKind{EventSceneRebuilt, EventSelectionChanged, EventSceneRebuilt}, hub.kinds())
	assert.Equal(t, StyleWireframe, s.Scene().Style)
	assert.Len(t, s.Scene().Atoms, 24)
	assert.Equal(t, StyleWireframe, hub.last().Style)
}

func TestSession_SelectPreset(t *testing.T) {
	s, _ := newTestSession(t, testSessionOptions(t))

	require.NoError(t, s.SelectPreset("water"))
	s.WaitIdle()
	assert.Len(t, s.Scene().Atoms, 3)
	assert.Equal(t, "water", s.Selection().Source.Preset)

	assert.ErrorIs(t, s.SelectPreset("benzene"), ErrUnknownPreset)
	assert.Equal(t, "water", s.Selection().Source.Preset)
}

func TestSession_UploadRejectedName(t *testing.T) {
	s, hub := newTestSession(t, testSessionOptions(t))
	before := s.Scene()

	done, err := s.Upload(context.Background(), "molecule.txt", strings.NewReader(waterPDB))
	assert.ErrorIs(t, err, ErrInvalidExtension)
	assert.Nil(t, done)

	ev := hub.last()
	assert.Equal(t, EventFileRejected, ev.Kind)
	assert.Equal(t, ErrInvalidExtension.Error(), ev.Error)
	assert.Same(t, before, s.Scene())
	assert.Equal(t, "caffeine", s.Selection().Source.Preset)
}

func TestSession_UploadReplacesScene(t *testing.T) {
	s, hub := newTestSession(t, testSessionOptions(t))

	done, err := s.Upload(context.Background(), "Water.PDB", strings.NewReader(waterPDB))
	require.NoError(t, err)
	require.NoError(t, <-done)
	s.WaitIdle()

	assert.Len(t, s.Scene().Atoms, 3)
	assert.Equal(t, "Water.PDB", s.Scene().Name)
	assert.Equal(t, EventSceneRebuilt, hub.last().Kind)
	assert.Equal(t, SourceText, hub.last().Source.Kind)
}

func TestSession_UndecodableUploadKeepsScene(t *testing.T) {
	s, hub := newTestSession(t, testSessionOptions(t))
	before := s.Scene()

	done, err := s.Upload(context.Background(), "junk.pdb", strings.NewReader("this is not a molecule\n"))
	require.NoError(t, err)
	require.NoError(t, <-done)
	s.WaitIdle()

	assert.Same(t, before, s.Scene())
	assert.Equal(t, []EventKind{EventSceneRebuilt, EventSelectionChanged, EventDecodeFailed, EventSelectionChanged}, hub.kinds())
	assert.Equal(t, "caffeine", hub.last().Source.Preset)
	assert.NotEmpty(t, s.Status().LastError)
	assert.True(t, errors.Is(s.LastError(), ErrDecode))

	// the failed upload is no longer selected, so a style change is visible
	assert.Equal(t, PresetSource("caffeine"), s.Selection().Source)
	require.NoError(t, s.SelectStyle(StyleNormal))
	s.WaitIdle()
	assert.Equal(t, StyleNormal, s.Scene().Style)
	assert.Len(t, s.Scene().Atoms, 24)
	assert.NoError(t, s.LastError())
}

// holdingDecoder delays decodes of one reference name until released.
type holdingDecoder struct {
	Decoder
	hold string
	gate chan struct{}
}

func (d *holdingDecoder) Decode(ctx context.Context, ref Reference) (*Molecule, error) {
	if ref.Name == d.hold {
		select {
		case <-d.gate:
		case <-ctx.Done():
		}
	}
	return d.Decoder.Decode(ctx, ref)
}

func holdingOptions(t *testing.T, name string) (SessionOptions, *holdingDecoder) {
	t.Helper()
	opts := testSessionOptions(t)
	dec := &holdingDecoder{Decoder: opts.Decoder, hold: name, gate: make(chan struct{})}
	opts.Decoder = dec
	return opts, dec
}

func TestSession_SnapshotUsesBuiltSource(t *testing.T) {
	opts, dec := holdingOptions(t, "junk.pdb")
	s, _ := newTestSession(t, opts)

	done, err := s.Upload(context.Background(), "junk.pdb", strings.NewReader("this is not a molecule\n"))
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, SourceText, s.Selection().Source.Kind)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, PresetSource("caffeine"), snap.Source)
	assert.Equal(t, "caffeine", snap.Scene.Name)

	close(dec.gate)
	s.WaitIdle()

	snap, err = s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, PresetSource("caffeine"), snap.Source)
	assert.Equal(t, snap.Scene.Token, s.Scene().Token)
}

func TestSession_FailedBuildAfterStyleChangeRebuildsPreviousSource(t *testing.T) {
	opts, dec := holdingOptions(t, "junk.pdb")
	s, hub := newTestSession(t, opts)

	done, err := s.Upload(context.Background(), "junk.pdb", strings.NewReader("junk\n"))
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.NoError(t, s.SelectStyle(StylePoints))

	close(dec.gate)
	s.WaitIdle()

	assert.Equal(t, Selection{Source: PresetSource("caffeine"), Style: StylePoints}, s.Selection())
	scene, src := s.builder.Current()
	assert.Equal(t, PresetSource("caffeine"), src)
	assert.Equal(t, StylePoints, scene.Style)
	assert.Equal(t, EventSceneRebuilt, hub.last().Kind)
}

func TestSession_ConcurrentSelectionsMatchScene(t *testing.T) {
	s, _ := newTestSession(t, testSessionOptions(t))

	presets := []string{"caffeine", "water"}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SelectPreset(presets[i%2]))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SelectStyle(AllStyles()[i%6]))
		}()
	}
	wg.Wait()
	s.WaitIdle()

	sel := s.Selection()
	scene, src := s.builder.Current()
	require.NotNil(t, scene)
	assert.Equal(t, sel.Source, src)
	assert.Equal(t, sel.Style, scene.Style)
	assert.Equal(t, s.builder.Latest(), scene.Token)
}

func TestSession_FramesReachHub(t *testing.T) {
	s, hub := newTestSession(t, testSessionOptions(t))

	f := s.Loop().Tick()
	assert.Same(t, s.Scene(), f.Scene)

	hub.mu.Lock()
	n := len(hub.frames)
	hub.mu.Unlock()
	assert.Equal(t, 1, n)

	require.NoError(t, s.Resize(Viewport{Width: 640, Height: 480}))
	assert.Equal(t, Viewport{Width: 640, Height: 480}, s.CurrentFrame().Viewport)
	assert.ErrorIs(t, s.Resize(Viewport{}), ErrInvalidViewport)
}

func TestSession_StartStop(t *testing.T) {
	s, _ := newTestSession(t, testSessionOptions(t))

	s.Start(10 * time.Millisecond)
	assert.True(t, s.Status().Running)
	s.Stop()
	assert.False(t, s.Status().Running)
}

func TestSession_Snapshot(t *testing.T) {
	s, _ := newTestSession(t, testSessionOptions(t))

	p, err := s.SaveSnapshot()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, "s1.scene.json"))

	snap, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, s.Scene().Token, snap.Token)
	assert.Equal(t, "caffeine", snap.Source.Preset)
	assert.Len(t, snap.Scene.Atoms, 24)
}

func TestSession_SnapshotWithoutScene(t *testing.T) {
	opts := testSessionOptions(t)
	s, err := NewSession("empty", Selection{Source: PresetSource("benzene")}, opts, nil)
	require.NoError(t, err)
	defer s.Close()
	s.WaitIdle()

	_, err = s.Snapshot()
	assert.ErrorIs(t, err, ErrNoScene)
	assert.ErrorIs(t, s.LastError(), ErrUnknownPreset)
}

func TestSession_WebhooksReceiveEvents(t *testing.T) {
	opts := testSessionOptions(t)
	nm := NewNotificationManager(nil)
	defer nm.Close()
	hook := &fakeNotifier{id: "hook", typ: "webhook"}
	other := &fakeNotifier{id: "other", typ: "websocket"}
	require.NoError(t, nm.RegisterNotifier(hook))
	require.NoError(t, nm.RegisterNotifier(other))
	opts.Notifications = nm

	s, _ := newTestSession(t, opts)
	require.NoError(t, s.SelectStyle(StylePoints))
	s.WaitIdle()

	waitFor(t, func() bool { return len(hook.received()) == 3 })
	assert.Equal(t, EventSelectionChanged, hook.received()[1].Kind)
	assert.Empty(t, other.received())
}

func TestSession_Close(t *testing.T) {
	opts := testSessionOptions(t)
	hub := &recordingHub{id: "hub"}
	s, err := NewSession("s2", Selection{Source: PresetSource("water")}, opts, hub)
	require.NoError(t, err)
	s.Start(time.Millisecond)

	require.NoError(t, s.Close())
	assert.False(t, s.Loop().Running())
	assert.True(t, hub.closed)
}

func TestNewSession_Errors(t *testing.T) {
	opts := testSessionOptions(t)
	opts.Decoder = nil
	_, err := NewSession("x", Selection{}, opts, nil)
	assert.Error(t, err)

	opts = testSessionOptions(t)
	opts.Viewport = Viewport{}
	_, err = NewSession("x", Selection{}, opts, nil)
	assert.ErrorIs(t, err, ErrInvalidViewport)
}
