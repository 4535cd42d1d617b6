package domain

// QuickStats is a derived point-in-time rollup across streams and commits.
// It is recomputed fully on every request and never persisted.
type QuickStats struct {
	ActiveStreams  int
	InProgress     int
	Blocked        int
	ReadyToStart   int
	CompletedToday int
	TotalCommits   int
	CommitsToday   int
}
