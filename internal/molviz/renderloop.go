package molviz

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// RotationRate is radians of rotation per millisecond of loop time.
const RotationRate = 0.0004

// Rotation is the Euler rotation of the whole scene, applied X then Y.
type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RotationAt is the rotation reached after elapsed loop time.
func RotationAt(elapsed time.Duration) Rotation {
	angle := float64(elapsed.Milliseconds()) * RotationRate
	return Rotation{X: angle, Y: 0.7 * angle}
}

// Matrix is the model matrix for the rotation.
func (r Rotation) Matrix() mgl64.Mat4 {
	return mgl64.HomogRotate3DX(r.X).Mul4(mgl64.HomogRotate3DY(r.Y))
}

// Camera is a perspective camera looking at a fixed target.
type Camera struct {
	Position Vec3    `json:"position"`
	Target   Vec3    `json:"target"`
	FOV      float64 `json:"fov"` // vertical, degrees
	Near     float64 `json:"near"`
	Far      float64 `json:"far"`
	Aspect   float64 `json:"aspect"`
}

// DefaultCamera sits at (700, 200, 0) and looks at the origin.
func DefaultCamera(aspect float64) Camera {
	return Camera{
		Position: Vec3{700, 200, 0},
		Target:   Vec3{},
		FOV:      75,
		Near:     0.1,
		Far:      1000,
		Aspect:   aspect,
	}
}

// View is the world-to-camera matrix.
func (c Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Position, c.Target, Vec3{0, 1, 0})
}

// Projection is the camera-to-clip matrix.
func (c Camera) Projection() mgl64.Mat4 {
	return mgl64.Perspective(mgl64.DegToRad(c.FOV), c.Aspect, c.Near, c.Far)
}

// Viewport is the output size in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate rejects non-positive sizes.
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return ErrInvalidViewport
	}
	return nil
}

// Aspect is width over height.
func (v Viewport) Aspect() float64 {
	return float64(v.Width) / float64(v.Height)
}

// Frame is what one tick hands to the sinks.
type Frame struct {
	Seq      uint64        `json:"seq"`
	Elapsed  time.Duration `json:"elapsed"`
	Rotation Rotation      `json:"rotation"`
	Scene    *SceneGraph   `json:"-"`
	Camera   Camera        `json:"camera"`
	Viewport Viewport      `json:"viewport"`
}

// FrameSink consumes frames. A failing sink does not stop the loop.
type FrameSink interface {
	RenderFrame(Frame) error
}

// Resizer is implemented by sinks that care about viewport changes.
type Resizer interface {
	Resize(Viewport)
}

// RenderLoop advances the scene rotation on a ticker and hands every frame
// to its sinks. Loop time pauses while stopped and resumes on the next Run.
type RenderLoop struct {
	mu        sync.Mutex
	scene     func() *SceneGraph
	sinks     []FrameSink
	camera    Camera
	viewport  Viewport
	started   time.Time
	elapsed   time.Duration
	seq       uint64
	stopCh    chan struct{}
	isRunning bool
	wg        sync.WaitGroup
	now       func() time.Time
	logger    Logger
}

// NewRenderLoop creates a stopped loop drawing whatever scene returns.
func NewRenderLoop(scene func() *SceneGraph, viewport Viewport, logger Logger) (*RenderLoop, error) {
	if err := viewport.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &RenderLoop{
		scene:    scene,
		camera:   DefaultCamera(viewport.Aspect()),
		viewport: viewport,
		stopCh:   make(chan struct{}),
		now:      time.Now,
		logger:   logger,
	}, nil
}

// AddSink registers a sink for every following frame.
func (l *RenderLoop) AddSink(s FrameSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Run starts the ticker in a goroutine. Calling Run on a running loop does
// nothing; after Stop it can be called again.
func (l *RenderLoop) Run(interval time.Duration) {
	l.mu.Lock()
	if l.isRunning {
		l.mu.Unlock()
		return
	}
	l.stopCh = make(chan struct{})
	l.isRunning = true
	l.started = l.now().Add(-l.elapsed)
	stopCh := l.stopCh
	l.wg.Add(1)
	l.mu.Unlock()

	l.logger.Infof("Render loop started: interval=%s", interval)

	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Tick()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for the ticker goroutine to exit.
func (l *RenderLoop) Stop() {
	l.mu.Lock()
	if !l.isRunning {
		l.mu.Unlock()
		return
	}
	l.elapsed = l.now().Sub(l.started)
	l.isRunning = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Infof("Render loop stopped: elapsed=%s", l.Elapsed())
}

// Running reports whether the ticker is active.
func (l *RenderLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isRunning
}

// Elapsed is the loop time driving the rotation.
func (l *RenderLoop) Elapsed() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.elapsedLocked()
}

func (l *RenderLoop) elapsedLocked() time.Duration {
	if l.isRunning {
		return l.now().Sub(l.started)
	}
	return l.elapsed
}

// Tick produces one frame and hands it to every sink. Without a scene the
// frame is returned but not delivered.
func (l *RenderLoop) Tick() Frame {
	l.mu.Lock()
	l.seq++
	f := l.frameLocked()
	sinks := append([]FrameSink(nil), l.sinks...)
	l.mu.Unlock()

	if f.Scene == nil {
		return f
	}
	for _, s := range sinks {
		if err := s.RenderFrame(f); err != nil {
			l.logger.Debugf("Frame sink failed: seq=%d error=%v", f.Seq, err)
		}
	}
	return f
}

// CurrentFrame describes the present state without advancing the sequence
// or notifying sinks.
func (l *RenderLoop) CurrentFrame() Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frameLocked()
}

func (l *RenderLoop) frameLocked() Frame {
	elapsed := l.elapsedLocked()
	var scene *SceneGraph
	if l.scene != nil {
		scene = l.scene()
	}
	return Frame{
		Seq:      l.seq,
		Elapsed:  elapsed,
		Rotation: RotationAt(elapsed),
		Scene:    scene,
		Camera:   l.camera,
		Viewport: l.viewport,
	}
}

// Resize changes the output size and camera aspect. Sinks implementing
// Resizer are told about the new size.
func (l *RenderLoop) Resize(v Viewport) error {
	if err := v.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.viewport = v
	l.camera.Aspect = v.Aspect()
	sinks := append([]FrameSink(nil), l.sinks...)
	l.mu.Unlock()

	for _, s := range sinks {
		if r, ok := s.(Resizer); ok {
			r.Resize(v)
		}
	}
	l.logger.Debugf("Viewport resized: width=%d height=%d", v.Width, v.Height)
	return nil
}

// Viewport returns the current output size.
func (l *RenderLoop) Viewport() Viewport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewport
}
