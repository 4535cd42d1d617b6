package domain

import (
	"errors"
	"testing"
	"time"
)

func testNow() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func validStreamInput() StreamInput {
	return StreamInput{
		ID:           "stream-1",
		StreamNumber: "S-1",
		Title:        "Add cache layer",
		Category:     CategoryBackend,
		Priority:     PriorityHigh,
		WorktreePath: "/wt/s1",
		Branch:       "feat/s1",
	}
}

func TestNewStreamDefaults(t *testing.T) {
	s, err := NewStream(validStreamInput(), testNow())
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if s.Status != StatusInitializing {
		t.Fatalf("status = %s, want %s", s.Status, StatusInitializing)
	}
	if s.Progress != 0 {
		t.Fatalf("progress = %d, want 0", s.Progress)
	}
	if !s.CreatedAt.Equal(s.UpdatedAt) {
		t.Fatalf("CreatedAt %v != UpdatedAt %v", s.CreatedAt, s.UpdatedAt)
	}
	if s.CompletedAt != nil {
		t.Fatalf("CompletedAt should be nil on create")
	}
}

func TestNewStreamDefaultsPriorityToMedium(t *testing.T) {
	in := validStreamInput()
	in.Priority = ""
	s, err := NewStream(in, testNow())
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if s.Priority != PriorityMedium {
		t.Fatalf("priority = %s, want %s", s.Priority, PriorityMedium)
	}
}

func TestNewStreamValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*StreamInput)
		want   error
	}{
		{"empty id", func(in *StreamInput) { in.ID = " " }, ErrInvalidID},
		{"empty stream number", func(in *StreamInput) { in.StreamNumber = "" }, ErrInvalidStreamNumber},
		{"empty title", func(in *StreamInput) { in.Title = "  " }, ErrInvalidTitle},
		{"unknown category", func(in *StreamInput) { in.Category = "ops" }, ErrInvalidCategory},
		{"unknown priority", func(in *StreamInput) { in.Priority = "urgent" }, ErrInvalidPriority},
		{"empty worktree", func(in *StreamInput) { in.WorktreePath = "" }, ErrInvalidWorktreePath},
		{"empty branch", func(in *StreamInput) { in.Branch = "" }, ErrInvalidBranch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validStreamInput()
			tc.mutate(&in)
			if _, err := NewStream(in, testNow()); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestStreamPatchValidate(t *testing.T) {
	bad := Status("finished")
	if err := (StreamPatch{Status: &bad}).Validate(); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidStatus)
	}
	over := 101
	if err := (StreamPatch{Progress: &over}).Validate(); !errors.Is(err, ErrInvalidProgress) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidProgress)
	}
	neg := -1
	if err := (StreamPatch{CurrentPhase: &neg}).Validate(); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidPhase)
	}
	ok := 50
	active := StatusActive
	if err := (StreamPatch{Status: &active, Progress: &ok}).Validate(); err != nil {
		t.Fatalf("valid patch rejected: %v", err)
	}
}

func TestApplyIsIdempotentForEqualValues(t *testing.T) {
	s, err := NewStream(validStreamInput(), testNow())
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	status := StatusInitializing
	progress := 0
	if changed := s.Apply(StreamPatch{Status: &status, Progress: &progress}, testNow().Add(time.Minute)); changed {
		t.Fatalf("Apply reported a change for equal values")
	}
	if !s.UpdatedAt.Equal(testNow()) {
		t.Fatalf("UpdatedAt moved on a no-op patch")
	}
}

func TestApplyStampsCompletedAtOnTerminalStatus(t *testing.T) {
	s, err := NewStream(validStreamInput(), testNow())
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	archived := StatusArchived
	later := testNow().Add(time.Hour)
	if changed := s.Apply(StreamPatch{Status: &archived}, later); !changed {
		t.Fatalf("Apply reported no change")
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(later) {
		t.Fatalf("CompletedAt = %v, want %v", s.CompletedAt, later)
	}
	if !s.UpdatedAt.Equal(later) {
		t.Fatalf("UpdatedAt = %v, want %v", s.UpdatedAt, later)
	}
}

func TestCompleteStampsOnce(t *testing.T) {
	s, err := NewStream(validStreamInput(), testNow())
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	first := testNow().Add(time.Hour)
	s.Complete(first)
	if s.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", s.Status, StatusCompleted)
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(first) {
		t.Fatalf("CompletedAt = %v, want %v", s.CompletedAt, first)
	}
	s.Complete(first.Add(time.Hour))
	if !s.CompletedAt.Equal(first) {
		t.Fatalf("CompletedAt re-stamped to %v", s.CompletedAt)
	}
}

func TestNewCommitValidation(t *testing.T) {
	if _, err := NewCommit(CommitInput{CommitHash: "abc"}, testNow()); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidID)
	}
	if _, err := NewCommit(CommitInput{StreamID: "s1"}, testNow()); !errors.Is(err, ErrInvalidCommitHash) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidCommitHash)
	}
	if _, err := NewCommit(CommitInput{StreamID: "s1", CommitHash: "abc", FilesChanged: -1}, testNow()); !errors.Is(err, ErrInvalidFilesChanged) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidFilesChanged)
	}
	c, err := NewCommit(CommitInput{StreamID: "s1", CommitHash: "abc", Message: " fix ", Author: "dev", FilesChanged: 3}, testNow())
	if err != nil {
		t.Fatalf("NewCommit: %v", err)
	}
	if c.Message != "fix" {
		t.Fatalf("message = %q, want %q", c.Message, "fix")
	}
	if !c.Timestamp.Equal(testNow()) {
		t.Fatalf("timestamp = %v, want %v", c.Timestamp, testNow())
	}
}
