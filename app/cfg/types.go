package cfg

import (
	"time"

	"github.com/lysyi3m/rss-bulletin/app/feed"
)

type Cfg struct {
	// Delivery
	BotToken       string
	ChatID         string
	TelegramAPIURL string

	// Bulletin
	DigestConfig   string
	MaxItems       int
	PerSourceLimit int
	MessageBudget  int
	WakeHour       int
	QuietHour      int
	Timezone       string
	Location       *time.Location

	// State
	StateDriver string
	StateFile   string
	StateLimit  int

	// Fetching
	FetchTimeout time.Duration
	UserAgent    string

	// Modes
	DryRun       bool
	Serve        bool
	Schedule     string
	Port         string
	APIAccessKey string

	Debug   bool
	Version string
}

// Options returns the selection and fitting knobs.
func (c *Cfg) Options() feed.Options {
	return feed.Options{
		MaxItems:       c.MaxItems,
		PerSourceLimit: c.PerSourceLimit,
		Budget:         c.MessageBudget,
	}
}
