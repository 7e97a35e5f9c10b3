package molviz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventKind names what happened in a session.
type EventKind string

const (
	EventSceneRebuilt     EventKind = "scene_rebuilt"
	EventDecodeFailed     EventKind = "decode_failed"
	EventFileRejected     EventKind = "file_rejected"
	EventSelectionChanged EventKind = "selection_changed"
)

// SceneEvent is published for every selection change and build outcome.
type SceneEvent struct {
	SessionID  SessionID      `json:"session_id"`
	Kind       EventKind      `json:"kind"`
	Token      uint64         `json:"token,omitempty"`
	Style      RenderStyle    `json:"style"`
	Source     MoleculeSource `json:"source"`
	AtomCount  int            `json:"atom_count,omitempty"`
	BondCount  int            `json:"bond_count,omitempty"`
	LabelCount int            `json:"label_count,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

// JSON returns the event as JSON bytes.
func (e SceneEvent) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// eventFromResult describes a finished build. Superseded builds produce no event.
func eventFromResult(id SessionID, res BuildResult) (SceneEvent, bool) {
	ev := SceneEvent{
		SessionID: id,
		Token:     res.Token,
		Style:     res.Style,
		Source:    res.Source,
		Timestamp: time.Now().Unix(),
	}
	switch res.Outcome {
	case BuildApplied:
		ev.Kind = EventSceneRebuilt
		ev.AtomCount = len(res.Scene.Atoms)
		ev.BondCount = len(res.Scene.Bonds)
		ev.LabelCount = len(res.Scene.Labels)
	case BuildFailed:
		ev.Kind = EventDecodeFailed
		ev.Error = res.Err.Error()
	default:
		return SceneEvent{}, false
	}
	return ev, true
}

// Notifier is a destination for scene events.
type Notifier interface {
	// ID returns a unique identifier for this notifier
	ID() string

	// Type returns the kind of notifier, e.g. "webhook" or "websocket"
	Type() string

	// Notify delivers one event. ctx bounds the delivery.
	Notify(ctx context.Context, event SceneEvent) error

	// Close releases the notifier's resources
	Close() error
}

type notificationJob struct {
	Event       SceneEvent
	NotifierIDs []string
}

// NotificationManager keeps the registered notifiers and delivers events to
// them from a worker goroutine with retry and exponential backoff. Enqueue
// never blocks; events are dropped when the queue is full.
type NotificationManager struct {
	mu         sync.RWMutex
	notifiers  map[string]Notifier
	jobs       chan notificationJob
	closed     bool
	wg         sync.WaitGroup
	logger     Logger
	maxRetries int
	backoff    time.Duration
}

// NewNotificationManager creates a manager with one worker.
func NewNotificationManager(logger Logger) *NotificationManager {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	mgr := &NotificationManager{
		notifiers:  make(map[string]Notifier),
		jobs:       make(chan notificationJob, 1024),
		logger:     logger,
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
	mgr.startWorkers(1)
	return mgr
}

// RegisterNotifier adds a notifier. IDs must be unique.
func (nm *NotificationManager) RegisterNotifier(notifier Notifier) error {
	if notifier == nil {
		return fmt.Errorf("notifier cannot be nil")
	}
	id := notifier.ID()
	if id == "" {
		return fmt.Errorf("notifier ID cannot be empty")
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if _, exists := nm.notifiers[id]; exists {
		return fmt.Errorf("notifier with ID %s already exists", id)
	}
	nm.notifiers[id] = notifier
	nm.logger.Debugf("Notifier registered: id=%s type=%s", id, notifier.Type())
	return nil
}

// UnregisterNotifier closes and removes a notifier.
func (nm *NotificationManager) UnregisterNotifier(id string) error {
	nm.mu.Lock()
	notifier, exists := nm.notifiers[id]
	delete(nm.notifiers, id)
	nm.mu.Unlock()

	if !exists {
		return fmt.Errorf("notifier with ID %s not found", id)
	}
	if err := notifier.Close(); err != nil {
		return fmt.Errorf("error closing notifier %s: %w", id, err)
	}
	nm.logger.Debugf("Notifier unregistered: id=%s", id)
	return nil
}

// GetNotifier looks up a notifier by ID.
func (nm *NotificationManager) GetNotifier(id string) (Notifier, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	n, ok := nm.notifiers[id]
	return n, ok
}

// ListNotifiers returns the registered IDs, sorted.
func (nm *NotificationManager) ListNotifiers() []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	ids := make([]string, 0, len(nm.notifiers))
	for id := range nm.notifiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NotifierIDsByType returns the sorted IDs of every notifier of type typ.
func (nm *NotificationManager) NotifierIDsByType(typ string) []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	var ids []string
	for id, n := range nm.notifiers {
		if n.Type() == typ {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Enqueue hands an event to the workers for the given notifiers.
func (nm *NotificationManager) Enqueue(event SceneEvent, notifierIDs []string) {
	if len(notifierIDs) == 0 {
		return
	}

	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if nm.closed {
		return
	}

	select {
	case nm.jobs <- notificationJob{Event: event, NotifierIDs: notifierIDs}:
	default:
		nm.logger.Warnf("Notification queue full, dropping event: session=%s kind=%s", event.SessionID, event.Kind)
	}
}

func (nm *NotificationManager) startWorkers(n int) {
	for range n {
		nm.wg.Add(1)
		go nm.worker()
	}
}

func (nm *NotificationManager) worker() {
	defer nm.wg.Done()
	for job := range nm.jobs {
		nm.dispatchJob(job)
	}
}

func (nm *NotificationManager) dispatchJob(job notificationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, id := range job.NotifierIDs {
		nm.notifyWithRetry(ctx, id, job.Event)
	}
}

func (nm *NotificationManager) notifyWithRetry(ctx context.Context, notifierID string, event SceneEvent) {
	notifier, ok := nm.GetNotifier(notifierID)
	if !ok {
		nm.logger.Warnf("Notification failed: notifier=%s error=notifier not found", notifierID)
		return
	}

	backoff := nm.backoff
	for attempt := 0; attempt <= nm.maxRetries; attempt++ {
		err := notifier.Notify(ctx, event)
		if err == nil {
			return
		}
		nm.logger.Warnf("Notification failed: notifier=%s attempt=%d error=%v", notifierID, attempt+1, err)

		if attempt == nm.maxRetries {
			nm.logger.Errorf("Notification abandoned after %d attempts: notifier=%s kind=%s", nm.maxRetries+1, notifierID, event.Kind)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Notify delivers an event synchronously, once, to each notifier.
func (nm *NotificationManager) Notify(ctx context.Context, event SceneEvent, notifierIDs []string) error {
	var errs []error
	for _, id := range notifierIDs {
		n, ok := nm.GetNotifier(id)
		if !ok {
			errs = append(errs, fmt.Errorf("notifier %s not found", id))
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notifier %s failed: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close drains the queue, stops the workers and closes every notifier.
func (nm *NotificationManager) Close() error {
	nm.mu.Lock()
	if nm.closed {
		nm.mu.Unlock()
		return nil
	}
	nm.closed = true
	close(nm.jobs)
	nm.mu.Unlock()

	nm.wg.Wait()

	nm.mu.Lock()
	var errs []error
	for id, n := range nm.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing notifier %s: %w", id, err))
		}
	}
	nm.notifiers = make(map[string]Notifier)
	nm.mu.Unlock()

	return errors.Join(errs...)
}
