package domain

import (
	"time"

	pstrings "jurisync/pkg/platform/strings"
)

// LifecycleLogEntry is one line of the per-document audit trail.
type LifecycleLogEntry struct {
	Date    time.Time `json:"date"`
	Message string    `json:"msg"`
}

// LifecycleEntry is the append-only audit trail plus current-state snapshot
// for one source document. Keyed by "source:id". Created on first sighting,
// never hard-deleted: deletion is a flag flip.
type LifecycleEntry struct {
	Key      string `json:"_id"`
	Source   Source `json:"source"`
	SourceID int64  `json:"sourceId"`

	// References holds the legal numbers usable to look this document up
	// (register number, Portalis id).
	References   []string `json:"references,omitempty"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`

	// DecisionID is the canonical record's store id once one exists.
	DecisionID string `json:"decisionId,omitempty"`

	DuplicateKeys []string `json:"duplicateKeys,omitempty"`
	DecattIDs     []string `json:"decattIds,omitempty"`

	Public  *bool `json:"public,omitempty"`
	Deleted bool  `json:"deleted"`

	// Log is ordered newest first.
	Log       []LifecycleLogEntry `json:"log,omitempty"`
	LastError string              `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MergeFrom folds a freshly computed projection into the server-held entry.
// Scalar fields are last-write-wins when the projection carries a value,
// array fields are unioned, the log and error are left to the caller.
func (e *LifecycleEntry) MergeFrom(projection LifecycleEntry) {
	e.References = pstrings.Union(e.References, projection.References)
	e.DuplicateKeys = pstrings.Union(e.DuplicateKeys, projection.DuplicateKeys)
	e.DecattIDs = pstrings.Union(e.DecattIDs, projection.DecattIDs)

	if projection.Jurisdiction != "" {
		e.Jurisdiction = projection.Jurisdiction
	}
	if projection.DecisionID != "" {
		e.DecisionID = projection.DecisionID
	}
	if projection.Public != nil {
		e.Public = projection.Public
	}
}

// Prepend pushes a log line to the head of the trail.
func (e *LifecycleEntry) Prepend(at time.Time, message string) {
	if message == "" {
		return
	}
	e.Log = append([]LifecycleLogEntry{{Date: at, Message: message}}, e.Log...)
}
