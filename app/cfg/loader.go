package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Delivery configuration
	BotToken       string `long:"bot-token" env:"BOT_TOKEN" description:"Telegram bot token (required unless --dry-run)"`
	ChatID         string `long:"chat-id" env:"CHAT_ID" description:"Target chat id or @channel (required unless --dry-run)"`
	TelegramAPIURL string `long:"telegram-api-url" env:"TELEGRAM_API_URL" description:"Bot API endpoint override"`

	// Bulletin configuration
	DigestConfig   string `long:"config" env:"DIGEST_CONFIG" default:"digest.yml" description:"Bulletin configuration file (YAML)"`
	MaxItems       int    `long:"max-items" env:"MAX_ITEMS" default:"10" description:"Maximum items per bulletin"`
	PerSourceLimit int    `long:"per-source-limit" env:"PER_SOURCE_LIMIT" default:"30" description:"Entries considered per feed"`
	MessageBudget  int    `long:"message-budget" env:"MESSAGE_BUDGET" default:"3800" description:"Maximum bulletin size in bytes"`
	WakeHour       int    `long:"wake-hour" env:"WAKE_HOUR" default:"0" description:"First local hour runs are allowed"`
	QuietHour      int    `long:"quiet-hour" env:"QUIET_HOUR" default:"22" description:"Local hour from which runs are skipped"`
	Timezone       string `long:"timezone" env:"TIMEZONE" default:"Europe/Chisinau" description:"Timezone for quiet hours and the bulletin header"`

	// State configuration
	StateDriver string `long:"state-driver" env:"STATE_DRIVER" default:"file" choice:"file" choice:"sqlite" description:"Delivered-id store backend"`
	StateFile   string `long:"state-file" env:"STATE_FILE" default:"state.json" description:"Delivered-id store location"`
	StateLimit  int    `long:"state-limit" env:"STATE_LIMIT" default:"2000" description:"Delivered ids to remember"`

	// Fetch configuration
	FetchTimeout time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30s" description:"Timeout per feed request"`
	UserAgent    string        `long:"user-agent" env:"USER_AGENT" default:"RSS Bulletin/1.0" description:"User agent string for HTTP requests"`

	// Modes
	DryRun       bool   `long:"dry-run" env:"DRY_RUN" description:"Print the bulletin instead of sending it; state is not updated"`
	Serve        bool   `long:"serve" env:"SERVE" description:"Run as a daemon with a cron schedule and HTTP API"`
	Schedule     string `long:"schedule" env:"SCHEDULE" default:"0 * * * *" description:"Cron expression for daemon runs"`
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port (daemon mode)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses command-line arguments and environment variables. It returns
// nil, nil when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		BotToken:       strings.TrimSpace(raw.BotToken),
		ChatID:         strings.TrimSpace(raw.ChatID),
		TelegramAPIURL: raw.TelegramAPIURL,
		DigestConfig:   raw.DigestConfig,
		MaxItems:       raw.MaxItems,
		PerSourceLimit: raw.PerSourceLimit,
		MessageBudget:  raw.MessageBudget,
		WakeHour:       raw.WakeHour,
		QuietHour:      raw.QuietHour,
		Timezone:       raw.Timezone,
		StateDriver:    raw.StateDriver,
		StateFile:      raw.StateFile,
		StateLimit:     raw.StateLimit,
		FetchTimeout:   raw.FetchTimeout,
		UserAgent:      raw.UserAgent,
		DryRun:         raw.DryRun,
		Serve:          raw.Serve,
		Schedule:       raw.Schedule,
		Port:           raw.Port,
		APIAccessKey:   raw.APIAccessKey,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = location

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Cfg) error {
	if !cfg.DryRun {
		if cfg.BotToken == "" {
			return errors.New("BOT_TOKEN is required")
		}
		if cfg.ChatID == "" {
			return errors.New("CHAT_ID is required")
		}
	}

	if strings.TrimSpace(cfg.DigestConfig) == "" {
		return errors.New("DIGEST_CONFIG is required")
	}

	positive := []struct {
		name  string
		value int
	}{
		{"MAX_ITEMS", cfg.MaxItems},
		{"PER_SOURCE_LIMIT", cfg.PerSourceLimit},
		{"MESSAGE_BUDGET", cfg.MessageBudget},
		{"STATE_LIMIT", cfg.StateLimit},
	}
	for _, knob := range positive {
		if knob.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", knob.name, knob.value)
		}
	}

	if cfg.WakeHour < 0 || cfg.WakeHour > 23 {
		return fmt.Errorf("WAKE_HOUR must be within 0-23, got %d", cfg.WakeHour)
	}
	if cfg.QuietHour < 0 || cfg.QuietHour > 23 {
		return fmt.Errorf("QUIET_HOUR must be within 0-23, got %d", cfg.QuietHour)
	}

	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", cfg.FetchTimeout)
	}

	if cfg.Serve && strings.TrimSpace(cfg.Schedule) == "" {
		return errors.New("SCHEDULE is required with --serve")
	}

	return nil
}
