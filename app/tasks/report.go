package tasks

import (
	"time"

	"github.com/lysyi3m/rss-bulletin/app/database"
	"github.com/lysyi3m/rss-bulletin/app/feed"
)

type Outcome string

const (
	OutcomeSkippedQuietHours Outcome = "skipped_quiet_hours"
	OutcomeNoNewItems        Outcome = "no_new_items"
	OutcomeDryRun            Outcome = "dry_run"
	OutcomeDelivered         Outcome = "delivered"
	OutcomeFailed            Outcome = "failed"
)

// Report summarizes one digest run.
type Report struct {
	StartedAt   time.Time
	Duration    time.Duration
	Outcome     Outcome
	StateStatus database.LoadStatus

	FeedsFetched int
	FeedsFailed  int

	ItemsSelected  int
	ItemsDelivered int
	ItemsTrimmed   int
	Format         feed.Format

	Err error
}
