// Package history keeps the most recent queries, newest first.
package history

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xhad/crossrag/internal/models"
)

const previewLength = 50

type History struct {
	mu      sync.RWMutex
	size    int
	entries []models.HistoryEntry
	now     func() time.Time
}

func New(size int) *History {
	if size <= 0 {
		size = 10
	}
	return &History{size: size, now: time.Now}
}

// Add records a query at the front and drops the oldest entries beyond the
// configured size.
func (h *History) Add(query string, mode models.Mode) models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := models.HistoryEntry{Query: query, Timestamp: h.now(), Mode: mode}
	h.entries = append([]models.HistoryEntry{entry}, h.entries...)
	if len(h.entries) > h.size {
		h.entries = h.entries[:h.size]
	}
	return entry
}

// List returns a copy of the entries, newest first.
func (h *History) List() []models.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Get returns the i-th entry, zero being the newest.
func (h *History) Get(i int) (models.HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if i < 0 || i >= len(h.entries) {
		return models.HistoryEntry{}, fmt.Errorf("no history entry %d (have %d)", i, len(h.entries))
	}
	return h.entries[i], nil
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Preview shortens a query to fifty characters plus "..." for display.
func Preview(query string) string {
	if utf8.RuneCountInString(query) <= previewLength {
		return query
	}
	runes := []rune(query)
	return string(runes[:previewLength]) + "..."
}
