// Package model holds the data types shared across the store, recall,
// consolidation, and compaction packages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// EpisodeType classifies a raw episode.
type EpisodeType string

const (
	EpisodeConversation  EpisodeType = "conversation"
	EpisodeObservation   EpisodeType = "observation"
	EpisodeToolResult    EpisodeType = "toolResult"
	EpisodeError         EpisodeType = "error"
	EpisodeDecision      EpisodeType = "decision"
	EpisodeUserDirective EpisodeType = "userDirective"
)

// DefaultImportance returns the configured default importance for an episode type.
func (t EpisodeType) DefaultImportance() float64 {
	switch t {
	case EpisodeUserDirective:
		return 0.95
	case EpisodeError, EpisodeToolResult:
		return 0.8
	case EpisodeDecision:
		return 0.75
	case EpisodeConversation:
		return 0.4
	case EpisodeObservation:
		return 0.3
	default:
		return 0.4
	}
}

// Episode is a single timestamped raw event ingested by the engine.
type Episode struct {
	ID           string // 26-character sortable id (ULID)
	SessionID    string
	Timestamp    time.Time
	Type         EpisodeType
	Content      string
	Importance   float64
	AccessCount  int
	LastAccessed *time.Time
	Consolidated bool
}

// MemoryStatus is the lifecycle state of a Memory row.
type MemoryStatus string

const (
	StatusActive     MemoryStatus = "active"
	StatusSuperseded MemoryStatus = "superseded"
	StatusExpired    MemoryStatus = "expired"
	StatusDecayed    MemoryStatus = "decayed"
)

// IsTombstone reports whether the status is a terminal, non-recallable state.
func (s MemoryStatus) IsTombstone() bool {
	return s == StatusSuperseded || s == StatusExpired || s == StatusDecayed
}

// Memory is the canonical consolidated, component-tagged record.
type Memory struct {
	ID               string // 26-character sortable id (ULID)
	Content          string
	Component        string
	Category         string
	Importance       float64
	SessionID        string // optional; used by session-scoped components
	SourceEpisodeIDs []string
	EntityIDs        []string
	Embedding        []float32 // optional, fixed dimension per embedder
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastAccessed     *time.Time
	AccessCount      int
	Status           MemoryStatus
	SupersededBy     string // only meaningful when Status == StatusSuperseded
	ValidAt          *time.Time
	InvalidAt        *time.Time
}

// TemporallyValid reports whether the memory's validity window contains now.
func (m Memory) TemporallyValid(now time.Time) bool {
	if m.ValidAt != nil && now.Before(*m.ValidAt) {
		return false
	}
	if m.InvalidAt != nil && !now.Before(*m.InvalidAt) {
		return false
	}
	return true
}

// Recallable reports whether the memory is active and temporally valid at now.
func (m Memory) Recallable(now time.Time) bool {
	return m.Status == StatusActive && m.TemporallyValid(now)
}

// Entity is a named node in the shared entity graph.
type Entity struct {
	ID   uuid.UUID
	Name string
	Type string
}

// Relationship is a directed, confidence-weighted edge between two entities.
// Identity is the composite (FromEntityID, ToEntityID, Relation).
type Relationship struct {
	FromEntityID uuid.UUID
	ToEntityID   uuid.UUID
	Relation     string
	Confidence   float64
	UpdatedAt    time.Time
}

// MemoryUpdate is a partial update applied to a Memory row. Nil/unset fields
// are left unchanged; UpdatedAt is always bumped by the store regardless of
// which fields are set.
type MemoryUpdate struct {
	Content      *string
	Importance   *float64
	EntityIDs    []string
	SetEntityIDs bool
	SourceIDs    []string
	SetSourceIDs bool
	Embedding    []float32
	SetEmbedding bool
	Status       *MemoryStatus
	SupersededBy *string
	InvalidAt    *time.Time
	SetInvalidAt bool
}

// Stats is an aggregate snapshot of the memory store, broken down by status
// and by component.
type Stats struct {
	TotalMemories      int
	ByStatus           map[MemoryStatus]int
	ByComponent        map[string]int
	TotalEntities      int
	TotalRelationships int
	Unconsolidated     int
}
