package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which sources a query touches.
type Mode string

const (
	ModeDual           Mode = "dual"
	ModeDocuments      Mode = "documents"
	ModeCommunications Mode = "communications"
	ModeContradiction  Mode = "contradiction"
)

var modes = []Mode{ModeDual, ModeDocuments, ModeCommunications, ModeContradiction}

// Modes lists the supported modes in display order.
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

// ParseMode accepts the canonical names plus the labels used by the UI.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dual", "dual query":
		return ModeDual, nil
	case "documents", "docs", "court documents only":
		return ModeDocuments, nil
	case "communications", "comms", "communications only":
		return ModeCommunications, nil
	case "contradiction", "contradiction analysis":
		return ModeContradiction, nil
	}
	return "", fmt.Errorf("unknown query mode %q", s)
}

func (m Mode) QueriesDocuments() bool {
	return m == ModeDual || m == ModeDocuments || m == ModeContradiction
}

func (m Mode) QueriesCommunications() bool {
	return m == ModeDual || m == ModeCommunications || m == ModeContradiction
}

func (m Mode) Label() string {
	switch m {
	case ModeDual:
		return "Dual Query"
	case ModeDocuments:
		return "Court Documents Only"
	case ModeCommunications:
		return "Communications Only"
	case ModeContradiction:
		return "Contradiction Analysis"
	}
	return string(m)
}

// HistoryEntry is one previously executed query.
type HistoryEntry struct {
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
	Mode      Mode      `json:"mode"`
}

// Template is a named canned query.
type Template struct {
	Name  string `json:"name" yaml:"name"`
	Query string `json:"query" yaml:"query"`
}
