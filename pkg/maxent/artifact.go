package maxent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the model artifact as JSON. Weights serialize through Go's
// shortest-round-trip float encoding, so a reloaded model predicts
// identically.
func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write model %s: %w", path, err)
	}
	return nil
}

// Load reads a model artifact written by Save.
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if m.Features == nil || len(m.Weights) != m.Features.NumFeatures() {
		return nil, fmt.Errorf("model %s: weights do not match feature map", path)
	}
	return &m, nil
}
