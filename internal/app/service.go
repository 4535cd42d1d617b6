package app

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/strand/internal/domain"
)

// Change categories published after successful mutations. Subscribers use
// them as a refresh hint; they never carry the changed value. Every mutation
// also publishes a stats hint, since the rollup derives from both ledgers.
const (
	ChangeStreams = "streams"
	ChangeCommits = "commits"
	ChangeStats   = "stats"
)

// defaultCommitLimit caps commit listings when the caller passes no limit.
const defaultCommitLimit = 20

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service orchestrates the stream store, commit ledger, history ledger, and
// change publisher behind one application surface.
type Service struct {
	repo  Repository
	pub   Publisher
	idGen IDGenerator
	clock Clock
}

// NewService constructs a new value for this package.
func NewService(repo Repository, pub Publisher, idGen IDGenerator, clock Clock) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:  repo,
		pub:   pub,
		idGen: idGen,
		clock: clock,
	}
}

// CreateStreamInput holds input values for create stream operations.
type CreateStreamInput struct {
	StreamNumber string
	Title        string
	Category     domain.Category
	Priority     domain.Priority
	WorktreePath string
	Branch       string
	Phases       []string
}

// CreateStream validates input, persists the stream together with its
// `created` history event, and signals subscribers.
func (s *Service) CreateStream(ctx context.Context, in CreateStreamInput) (domain.Stream, error) {
	stream, err := domain.NewStream(domain.StreamInput{
		ID:           s.idGen(),
		StreamNumber: in.StreamNumber,
		Title:        in.Title,
		Category:     in.Category,
		Priority:     in.Priority,
		WorktreePath: in.WorktreePath,
		Branch:       in.Branch,
		Phases:       in.Phases,
	}, s.clock())
	if err != nil {
		return domain.Stream{}, err
	}
	if err := s.repo.CreateStream(ctx, stream); err != nil {
		return domain.Stream{}, err
	}
	s.publish(ChangeStreams)
	return stream, nil
}

// GetStream returns the stream and whether it exists. A missing id is a
// valid result, not an error.
func (s *Service) GetStream(ctx context.Context, id string) (domain.Stream, bool, error) {
	stream, err := s.repo.GetStream(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return domain.Stream{}, false, nil
	}
	if err != nil {
		return domain.Stream{}, false, err
	}
	return stream, true, nil
}

// ListStreams lists streams matching the filter, newest first.
func (s *Service) ListStreams(ctx context.Context, filter StreamFilter) ([]domain.Stream, error) {
	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return nil, domain.ErrInvalidStatus
	}
	if filter.Category != "" && !domain.ValidCategory(filter.Category) {
		return nil, domain.ErrInvalidCategory
	}
	return s.repo.ListStreams(ctx, filter)
}

// UpdateStream applies the patch and records one history event per changed
// field in the same transaction as the row update. An empty or no-op patch
// writes nothing and emits nothing.
func (s *Service) UpdateStream(ctx context.Context, id string, patch domain.StreamPatch) (domain.Stream, error) {
	if err := patch.Validate(); err != nil {
		return domain.Stream{}, err
	}
	if patch.Empty() {
		return s.repo.GetStream(ctx, id)
	}
	stream, err := s.repo.UpdateStream(ctx, id, patch, s.clock())
	if err != nil {
		return domain.Stream{}, err
	}
	s.publish(ChangeStreams)
	return stream, nil
}

// CompleteStream marks the stream completed, stamps CompletedAt once, and
// records a single `completed` event carrying the summary.
func (s *Service) CompleteStream(ctx context.Context, id, summary string) (domain.Stream, error) {
	stream, err := s.repo.CompleteStream(ctx, id, summary, s.clock())
	if err != nil {
		return domain.Stream{}, err
	}
	s.publish(ChangeStreams)
	return stream, nil
}

// ArchiveStream moves the stream into the archived terminal status and
// records a single `archived` event.
func (s *Service) ArchiveStream(ctx context.Context, id string) (domain.Stream, error) {
	stream, err := s.repo.ArchiveStream(ctx, id, s.clock())
	if err != nil {
		return domain.Stream{}, err
	}
	s.publish(ChangeStreams)
	return stream, nil
}

// ListHistory lists the audit events for a stream, newest first.
func (s *Service) ListHistory(ctx context.Context, streamID string) ([]domain.HistoryEvent, error) {
	return s.repo.ListHistoryByStream(ctx, streamID)
}

// RecordCommit appends a commit to the ledger. The stream id is not checked
// against the stream store so commit ingestion never blocks on bookkeeping.
func (s *Service) RecordCommit(ctx context.Context, in domain.CommitInput) (domain.Commit, error) {
	commit, err := domain.NewCommit(in, s.clock())
	if err != nil {
		return domain.Commit{}, err
	}
	id, err := s.repo.RecordCommit(ctx, commit)
	if err != nil {
		return domain.Commit{}, err
	}
	commit.ID = id
	s.publish(ChangeCommits)
	return commit, nil
}

// CommitsByStream lists a stream's commits, newest first.
func (s *Service) CommitsByStream(ctx context.Context, streamID string, limit int) ([]domain.Commit, error) {
	return s.repo.CommitsByStream(ctx, streamID, normalizeLimit(limit))
}

// RecentCommits lists commits across all streams, newest first.
func (s *Service) RecentCommits(ctx context.Context, limit int) ([]domain.Commit, error) {
	return s.repo.RecentCommits(ctx, normalizeLimit(limit))
}

// CountCommitsByStream counts all ledger entries recorded for a stream.
func (s *Service) CountCommitsByStream(ctx context.Context, streamID string) (int, error) {
	return s.repo.CountCommitsByStream(ctx, streamID)
}

// CountCommits counts all ledger entries across every stream.
func (s *Service) CountCommits(ctx context.Context) (int, error) {
	return s.repo.CountCommits(ctx)
}

// QuickStats recomputes the aggregate rollup from current store state.
func (s *Service) QuickStats(ctx context.Context) (domain.QuickStats, error) {
	return s.repo.QuickStats(ctx, s.clock())
}

func (s *Service) publish(category string) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(category)
	s.pub.Publish(ChangeStats)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultCommitLimit
	}
	return limit
}
