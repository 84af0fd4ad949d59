package registryfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Writer serializes read-modify-write updates to the registry file, used
// by the background health loop to post status back into tomains[tenant].
// It never blocks request paths: callers invoke SetStatus from the health
// loop's own goroutine, never from an HTTP handler.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter wraps path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// SetStatus updates tomains[tenantID].status, creating the entry if absent.
// Errors are the caller's to log and swallow, per the health loop's
// "errors are logged and swallowed" contract.
func (w *Writer) SetStatus(tenantID, status string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc, err := Load(w.path)
	if err != nil {
		return fmt.Errorf("registryfile: load before write: %w", err)
	}

	t := doc.Tomains[tenantID]
	t.ID = tenantID
	t.Status = status
	doc.Tomains[tenantID] = t

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("registryfile: marshal: %w", err)
	}
	if err := os.WriteFile(w.path, raw, 0o644); err != nil {
		return fmt.Errorf("registryfile: write %s: %w", w.path, err)
	}
	return nil
}
