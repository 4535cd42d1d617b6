package domain

import (
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a work stream.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusBlocked      Status = "blocked"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusArchived     Status = "archived"
)

var validStatuses = []Status{
	StatusInitializing,
	StatusActive,
	StatusBlocked,
	StatusPaused,
	StatusCompleted,
	StatusArchived,
}

// ValidStatus reports whether s is a member of the closed status set.
func ValidStatus(s Status) bool {
	return slices.Contains(validStatuses, s)
}

// Category classifies a work stream.
type Category string

const (
	CategoryBackend  Category = "backend"
	CategoryFrontend Category = "frontend"
	CategoryInfra    Category = "infra"
	CategoryTooling  Category = "tooling"
	CategoryResearch Category = "research"
)

var validCategories = []Category{
	CategoryBackend,
	CategoryFrontend,
	CategoryInfra,
	CategoryTooling,
	CategoryResearch,
}

// ValidCategory reports whether c is a member of the closed category set.
func ValidCategory(c Category) bool {
	return slices.Contains(validCategories, c)
}

// Priority is the ordinal urgency of a work stream: critical > high > medium > low.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var validPriorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// Stream is one tracked unit of engineering work. Streams are never deleted;
// removal is a transition into a terminal status.
type Stream struct {
	ID           string
	StreamNumber string
	Title        string
	Category     Category
	Priority     Priority
	Status       Status
	Progress     int
	Phases       []string
	CurrentPhase *int
	BlockedBy    string
	WorktreePath string
	Branch       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// StreamInput carries the caller-supplied fields for NewStream.
type StreamInput struct {
	ID           string
	StreamNumber string
	Title        string
	Category     Category
	Priority     Priority
	WorktreePath string
	Branch       string
	Phases       []string
}

// NewStream validates input and returns a stream in the initializing status
// with zero progress and CreatedAt == UpdatedAt.
func NewStream(in StreamInput, now time.Time) (Stream, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.StreamNumber = strings.TrimSpace(in.StreamNumber)
	in.Title = strings.TrimSpace(in.Title)
	in.WorktreePath = strings.TrimSpace(in.WorktreePath)
	in.Branch = strings.TrimSpace(in.Branch)

	if in.ID == "" {
		return Stream{}, ErrInvalidID
	}
	if in.StreamNumber == "" {
		return Stream{}, ErrInvalidStreamNumber
	}
	if in.Title == "" {
		return Stream{}, ErrInvalidTitle
	}
	if in.WorktreePath == "" {
		return Stream{}, ErrInvalidWorktreePath
	}
	if in.Branch == "" {
		return Stream{}, ErrInvalidBranch
	}
	if !ValidCategory(in.Category) {
		return Stream{}, ErrInvalidCategory
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !slices.Contains(validPriorities, in.Priority) {
		return Stream{}, ErrInvalidPriority
	}

	ts := now.UTC()
	return Stream{
		ID:           in.ID,
		StreamNumber: in.StreamNumber,
		Title:        in.Title,
		Category:     in.Category,
		Priority:     in.Priority,
		Status:       StatusInitializing,
		Progress:     0,
		Phases:       normalizePhases(in.Phases),
		WorktreePath: in.WorktreePath,
		Branch:       in.Branch,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}, nil
}

// StreamPatch holds the optional fields an update may set. Nil means "leave
// unchanged"; no transition-graph restriction is applied beyond enum
// membership, which is the documented permissive behavior.
type StreamPatch struct {
	Status       *Status
	Progress     *int
	CurrentPhase *int
	BlockedBy    *string
}

// Validate checks patch fields against the closed enums and ranges.
func (p StreamPatch) Validate() error {
	if p.Status != nil && !ValidStatus(*p.Status) {
		return ErrInvalidStatus
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return ErrInvalidProgress
	}
	if p.CurrentPhase != nil && *p.CurrentPhase < 0 {
		return ErrInvalidPhase
	}
	return nil
}

// Empty reports whether the patch carries no fields at all.
func (p StreamPatch) Empty() bool {
	return p.Status == nil && p.Progress == nil && p.CurrentPhase == nil && p.BlockedBy == nil
}

// Apply mutates the stream with every patch field that differs from the
// current value and reports whether anything changed. A status move into a
// terminal state stamps CompletedAt once.
func (s *Stream) Apply(p StreamPatch, now time.Time) bool {
	changed := false
	if p.Status != nil && *p.Status != s.Status {
		s.Status = *p.Status
		if s.terminal() && s.CompletedAt == nil {
			ts := now.UTC()
			s.CompletedAt = &ts
		}
		changed = true
	}
	if p.Progress != nil && *p.Progress != s.Progress {
		s.Progress = *p.Progress
		changed = true
	}
	if p.CurrentPhase != nil && !equalIntPtr(p.CurrentPhase, s.CurrentPhase) {
		v := *p.CurrentPhase
		s.CurrentPhase = &v
		changed = true
	}
	if p.BlockedBy != nil && strings.TrimSpace(*p.BlockedBy) != s.BlockedBy {
		s.BlockedBy = strings.TrimSpace(*p.BlockedBy)
		changed = true
	}
	if changed {
		s.UpdatedAt = now.UTC()
	}
	return changed
}

// Complete moves the stream into the completed status and stamps CompletedAt
// exactly once.
func (s *Stream) Complete(now time.Time) {
	ts := now.UTC()
	s.Status = StatusCompleted
	if s.CompletedAt == nil {
		s.CompletedAt = &ts
	}
	s.UpdatedAt = ts
}

// Archive moves the stream into the archived status, preserving history.
func (s *Stream) Archive(now time.Time) {
	ts := now.UTC()
	s.Status = StatusArchived
	if s.CompletedAt == nil {
		s.CompletedAt = &ts
	}
	s.UpdatedAt = ts
}

func (s *Stream) terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusArchived
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func normalizePhases(phases []string) []string {
	out := make([]string, 0, len(phases))
	for _, raw := range phases {
		phase := strings.TrimSpace(raw)
		if phase == "" {
			continue
		}
		out = append(out, phase)
	}
	return out
}
