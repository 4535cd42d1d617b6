package app

import (
	"context"
	"time"

	"github.com/hylla/strand/internal/domain"
)

// StreamFilter narrows ListStreams to a conjunction of the given fields.
// Empty fields match everything; priority refinement belongs to the caller.
type StreamFilter struct {
	Status   domain.Status
	Category domain.Category
}

// Repository is the durable-store port. Implementations must execute each
// mutation and its history append inside one atomic transaction so a reader
// never observes a stream change without its audit record.
type Repository interface {
	CreateStream(context.Context, domain.Stream) error
	GetStream(context.Context, string) (domain.Stream, error)
	ListStreams(context.Context, StreamFilter) ([]domain.Stream, error)
	UpdateStream(context.Context, string, domain.StreamPatch, time.Time) (domain.Stream, error)
	CompleteStream(context.Context, string, string, time.Time) (domain.Stream, error)
	ArchiveStream(context.Context, string, time.Time) (domain.Stream, error)

	ListHistoryByStream(context.Context, string) ([]domain.HistoryEvent, error)

	RecordCommit(context.Context, domain.Commit) (int64, error)
	CommitsByStream(context.Context, string, int) ([]domain.Commit, error)
	RecentCommits(context.Context, int) ([]domain.Commit, error)
	CountCommitsByStream(context.Context, string) (int, error)
	CountCommits(context.Context) (int, error)

	QuickStats(context.Context, time.Time) (domain.QuickStats, error)
}

// Publisher is the live-notification port. Delivery carries no durability
// guarantee and must never fail a mutation.
type Publisher interface {
	Publish(category string)
}
