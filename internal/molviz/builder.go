package molviz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// BuildOutcome says what happened to one Build call.
type BuildOutcome int

const (
	BuildApplied    BuildOutcome = iota // the new scene is current
	BuildFailed                         // decode or build failed; the previous scene stays
	BuildSuperseded                     // a newer Build was issued before this one finished
)

func (o BuildOutcome) String() string {
	switch o {
	case BuildApplied:
		return "applied"
	case BuildFailed:
		return "failed"
	case BuildSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// BuildResult is reported once per Build call.
type BuildResult struct {
	Token   uint64
	Source  MoleculeSource
	Style   RenderStyle
	Outcome BuildOutcome
	Scene   *SceneGraph
	Err     error
}

// SceneBuilder decodes sources asynchronously and keeps the current
// SceneGraph. Every Build gets a new token and cancels the decode before it;
// a result is applied only while its token is still the latest, so the
// last request wins no matter in which order decodes finish.
type SceneBuilder struct {
	decoder   Decoder
	catalogue func() *Catalogue
	logger    Logger

	mu       sync.Mutex
	latest   uint64
	cancel   context.CancelFunc
	lastErr  error
	onResult func(BuildResult)
	source   MoleculeSource

	current atomic.Pointer[SceneGraph]
	wg      sync.WaitGroup
}

// NewSceneBuilder creates a builder. catalogue is consulted on every build so
// catalogue reloads are picked up.
func NewSceneBuilder(decoder Decoder, catalogue func() *Catalogue, logger Logger) *SceneBuilder {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &SceneBuilder{
		decoder:   decoder,
		catalogue: catalogue,
		logger:    logger,
	}
}

// OnResult sets the callback invoked after every build, from the build's
// goroutine.
func (b *SceneBuilder) OnResult(fn func(BuildResult)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResult = fn
}

// Build starts a rebuild and returns its token without waiting.
func (b *SceneBuilder) Build(ctx context.Context, src MoleculeSource, style RenderStyle) uint64 {
	b.mu.Lock()
	b.latest++
	token := b.latest
	if b.cancel != nil {
		b.cancel()
	}
	buildCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.wg.Add(1)
	b.mu.Unlock()

	b.logger.Debugf("Build requested: token=%d source=%s style=%s", token, src.Label(), style)
	go b.run(buildCtx, cancel, token, src, style)
	return token
}

func (b *SceneBuilder) run(ctx context.Context, cancel context.CancelFunc, token uint64, src MoleculeSource, style RenderStyle) {
	defer b.wg.Done()
	defer cancel()

	res := BuildResult{Token: token, Source: src, Style: style}

	scene, err := b.construct(ctx, src, style)
	if scene != nil {
		scene.Token = token
	}

	b.mu.Lock()
	switch {
	case token != b.latest:
		res.Outcome = BuildSuperseded
	case err != nil:
		res.Outcome = BuildFailed
		res.Err = err
		b.lastErr = err
	default:
		res.Outcome = BuildApplied
		res.Scene = scene
		b.current.Store(scene)
		b.source = src
		b.lastErr = nil
	}
	fn := b.onResult
	b.mu.Unlock()

	switch res.Outcome {
	case BuildSuperseded:
		b.logger.Debugf("Build discarded: token=%d source=%s", token, src.Label())
	case BuildFailed:
		b.logger.Warnf("Build failed, keeping previous scene: token=%d source=%s error=%v", token, src.Label(), err)
	case BuildApplied:
		b.logger.Infof("Scene rebuilt: token=%d source=%s style=%s atoms=%d bonds=%d",
			token, src.Label(), style, len(scene.Atoms), len(scene.Bonds))
	}

	if fn != nil {
		fn(res)
	}
}

func (b *SceneBuilder) construct(ctx context.Context, src MoleculeSource, style RenderStyle) (*SceneGraph, error) {
	var cat *Catalogue
	if b.catalogue != nil {
		cat = b.catalogue()
	}
	ref, err := src.Resolve(cat)
	if err != nil {
		return nil, err
	}
	mol, err := b.decoder.Decode(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return BuildScene(mol, style)
}

// Scene is the current scene, or nil before the first successful build.
func (b *SceneBuilder) Scene() *SceneGraph {
	return b.current.Load()
}

// Current returns the current scene together with the source it was built
// from. Both are nil/zero before the first successful build.
func (b *SceneBuilder) Current() (*SceneGraph, MoleculeSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.Load(), b.source
}

// LastError is the failure of the latest build, cleared by the next success.
func (b *SceneBuilder) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Latest is the most recently issued token.
func (b *SceneBuilder) Latest() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Wait blocks until every issued build has finished.
func (b *SceneBuilder) Wait() {
	b.wg.Wait()
}

// Close cancels the in-flight build and waits for it.
func (b *SceneBuilder) Close() {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// IsCanceled reports whether err comes from a superseded or closed build.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
