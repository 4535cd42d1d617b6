package domain

import (
	"strings"
	"time"
)

// Commit links one code change to a stream. The ledger never checks the
// stream id against the stream table, so commits may reference archived ids.
type Commit struct {
	ID           int64
	StreamID     string
	CommitHash   string
	Message      string
	Author       string
	FilesChanged int
	Timestamp    time.Time
}

// CommitInput carries the caller-supplied fields for NewCommit.
type CommitInput struct {
	StreamID     string
	CommitHash   string
	Message      string
	Author       string
	FilesChanged int
}

// NewCommit validates input and returns a ledger entry stamped with now.
func NewCommit(in CommitInput, now time.Time) (Commit, error) {
	in.StreamID = strings.TrimSpace(in.StreamID)
	in.CommitHash = strings.TrimSpace(in.CommitHash)
	in.Author = strings.TrimSpace(in.Author)

	if in.StreamID == "" {
		return Commit{}, ErrInvalidID
	}
	if in.CommitHash == "" {
		return Commit{}, ErrInvalidCommitHash
	}
	if in.FilesChanged < 0 {
		return Commit{}, ErrInvalidFilesChanged
	}

	return Commit{
		StreamID:     in.StreamID,
		CommitHash:   in.CommitHash,
		Message:      strings.TrimSpace(in.Message),
		Author:       in.Author,
		FilesChanged: in.FilesChanged,
		Timestamp:    now.UTC(),
	}, nil
}
