package api

import (
	"time"

	"github.com/lysyi3m/rss-bulletin/app/database"
	"github.com/lysyi3m/rss-bulletin/app/feed"
	"github.com/lysyi3m/rss-bulletin/app/tasks"
)

// recentIDs is how many of the newest delivered ids /api/state returns.
const recentIDs = 20

type Handler struct {
	config    *feed.Config
	store     database.SeenStore
	scheduler tasks.TaskSchedulerInterface
	location  *time.Location
	version   string
}
