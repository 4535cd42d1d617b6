package httpapi

import (
	"time"

	"github.com/hylla/strand/internal/domain"
)

// streamJSON is the wire shape of one work stream.
type streamJSON struct {
	ID           string     `json:"id"`
	StreamNumber string     `json:"stream_number"`
	Title        string     `json:"title"`
	Category     string     `json:"category"`
	Priority     string     `json:"priority"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	Phases       []string   `json:"phases"`
	CurrentPhase *int       `json:"current_phase,omitempty"`
	BlockedBy    string     `json:"blocked_by,omitempty"`
	WorktreePath string     `json:"worktree_path"`
	Branch       string     `json:"branch"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// historyEventJSON is the wire shape of one audit record.
type historyEventJSON struct {
	ID        int64     `json:"id"`
	StreamID  string    `json:"stream_id"`
	EventType string    `json:"event_type"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// commitJSON is the wire shape of one commit ledger entry.
type commitJSON struct {
	ID           int64     `json:"id"`
	StreamID     string    `json:"stream_id"`
	CommitHash   string    `json:"commit_hash"`
	Message      string    `json:"message,omitempty"`
	Author       string    `json:"author,omitempty"`
	FilesChanged int       `json:"files_changed"`
	Timestamp    time.Time `json:"timestamp"`
}

// statsJSON is the wire shape of the aggregate rollup.
type statsJSON struct {
	ActiveStreams  int `json:"active_streams"`
	InProgress     int `json:"in_progress"`
	Blocked        int `json:"blocked"`
	ReadyToStart   int `json:"ready_to_start"`
	CompletedToday int `json:"completed_today"`
	TotalCommits   int `json:"total_commits"`
	CommitsToday   int `json:"commits_today"`
}

// createStreamRequest is the POST `/streams` payload.
type createStreamRequest struct {
	StreamNumber string   `json:"stream_number"`
	Title        string   `json:"title"`
	Category     string   `json:"category"`
	Priority     string   `json:"priority"`
	WorktreePath string   `json:"worktree_path"`
	Branch       string   `json:"branch"`
	Phases       []string `json:"phases"`
}

// updateStreamRequest is the PATCH `/streams/{id}` payload. Absent fields
// leave the stream unchanged.
type updateStreamRequest struct {
	Status       *string `json:"status"`
	Progress     *int    `json:"progress"`
	CurrentPhase *int    `json:"current_phase"`
	BlockedBy    *string `json:"blocked_by"`
}

// completeStreamRequest is the POST `/streams/{id}/complete` payload.
type completeStreamRequest struct {
	Summary string `json:"summary"`
}

// recordCommitRequest is the POST `/commits` payload.
type recordCommitRequest struct {
	StreamID     string `json:"stream_id"`
	CommitHash   string `json:"commit_hash"`
	Message      string `json:"message"`
	Author       string `json:"author"`
	FilesChanged int    `json:"files_changed"`
}

func toStreamJSON(s domain.Stream) streamJSON {
	return streamJSON{
		ID:           s.ID,
		StreamNumber: s.StreamNumber,
		Title:        s.Title,
		Category:     string(s.Category),
		Priority:     string(s.Priority),
		Status:       string(s.Status),
		Progress:     s.Progress,
		Phases:       s.Phases,
		CurrentPhase: s.CurrentPhase,
		BlockedBy:    s.BlockedBy,
		WorktreePath: s.WorktreePath,
		Branch:       s.Branch,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		CompletedAt:  s.CompletedAt,
	}
}

func toHistoryEventJSON(e domain.HistoryEvent) historyEventJSON {
	return historyEventJSON{
		ID:        e.ID,
		StreamID:  e.StreamID,
		EventType: string(e.EventType),
		OldValue:  e.OldValue,
		NewValue:  e.NewValue,
		Timestamp: e.Timestamp,
	}
}

func toCommitJSON(c domain.Commit) commitJSON {
	return commitJSON{
		ID:           c.ID,
		StreamID:     c.StreamID,
		CommitHash:   c.CommitHash,
		Message:      c.Message,
		Author:       c.Author,
		FilesChanged: c.FilesChanged,
		Timestamp:    c.Timestamp,
	}
}

func toCommitJSONs(commits []domain.Commit) []commitJSON {
	out := make([]commitJSON, 0, len(commits))
	for _, c := range commits {
		out = append(out, toCommitJSON(c))
	}
	return out
}
