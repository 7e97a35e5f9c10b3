package molviz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot is an exported copy of a session's current scene.
type Snapshot struct {
	SessionID SessionID      `json:"session_id"`
	Token     uint64         `json:"token"`
	Style     RenderStyle    `json:"style"`
	Source    MoleculeSource `json:"source"`
	Scene     *SceneGraph    `json:"scene"`
}

// ValidateSnapshot checks that the scene is present, carries one label per
// atom and uses a known style that matches the snapshot's.
func ValidateSnapshot(s Snapshot) error {
	if s.SessionID == "" {
		return fmt.Errorf("snapshot has empty session ID")
	}
	if !s.Style.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStyle, int(s.Style))
	}
	if s.Scene == nil {
		return fmt.Errorf("snapshot of session %s has no scene", s.SessionID)
	}
	if s.Scene.Style != s.Style {
		return fmt.Errorf("snapshot style %s does not match scene style %s", s.Style, s.Scene.Style)
	}
	if len(s.Scene.Labels) != len(s.Scene.Atoms) {
		return fmt.Errorf("snapshot has %d labels for %d atoms", len(s.Scene.Labels), len(s.Scene.Atoms))
	}
	return nil
}

// EncodeSnapshotJSON encodes a snapshot to JSON.
func EncodeSnapshotJSON(s Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshotJSON decodes a snapshot from JSON.
func DecodeSnapshotJSON(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// SnapshotPath is where a session's snapshot lives inside dir.
func SnapshotPath(dir string, id SessionID) string {
	return filepath.Join(dir, string(id)+".scene.json")
}

// WriteSnapshot validates s and writes it to SnapshotPath(dir, s.SessionID).
func WriteSnapshot(dir string, s Snapshot) (string, error) {
	if err := ValidateSnapshot(s); err != nil {
		return "", err
	}
	data, err := EncodeSnapshotJSON(s)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}
	p := SnapshotPath(dir, s.SessionID)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return p, nil
}

// ReadSnapshot loads and validates a session's snapshot from dir.
func ReadSnapshot(dir string, id SessionID) (Snapshot, error) {
	data, err := os.ReadFile(SnapshotPath(dir, id))
	if err != nil {
		return Snapshot{}, err
	}
	s, err := DecodeSnapshotJSON(data)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ValidateSnapshot(s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
