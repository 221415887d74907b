package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-bulletin/app/feed"
	"github.com/lysyi3m/rss-bulletin/app/telegram"
)

// TaskSchedulerInterface is what the HTTP API needs from the daemon scheduler.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	Trigger() error
	LastReport() (Report, bool)
	NextRun() (time.Time, bool)
}

// Sender delivers one rendered bulletin.
type Sender interface {
	Send(ctx context.Context, text string, format feed.Format) error
}

// Reporter is implemented by tasks that describe their last execution.
type Reporter interface {
	Report() Report
}

var (
	_ TaskSchedulerInterface = (*Scheduler)(nil)
	_ Sender                 = (*telegram.Sender)(nil)
	_ Reporter               = (*DigestTask)(nil)
)
