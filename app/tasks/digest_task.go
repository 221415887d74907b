package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lysyi3m/rss-bulletin/app/database"
	"github.com/lysyi3m/rss-bulletin/app/feed"
)

const commitTimeout = 30 * time.Second

type DigestSettings struct {
	Options      feed.Options
	Location     *time.Location
	WakeHour     int
	QuietHour    int
	UserAgent    string
	FetchTimeout time.Duration
	DryRun       bool
	Output       io.Writer // receives the bulletin in dry-run mode
}

// DigestTask runs one bulletin: fetch every configured feed, select unseen
// items, render within the budget, deliver and remember what was delivered.
type DigestTask struct {
	Task
	config     *feed.Config
	settings   DigestSettings
	httpClient *http.Client
	parser     *feed.Parser
	store      database.SeenStore
	sender     Sender
	now        func() time.Time
	report     Report
}

func NewDigestTask(config *feed.Config, settings DigestSettings, httpClient *http.Client, parser *feed.Parser, store database.SeenStore, sender Sender) *DigestTask {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.Output == nil {
		settings.Output = io.Discard
	}
	if settings.FetchTimeout <= 0 {
		settings.FetchTimeout = 30 * time.Second
	}

	return &DigestTask{
		Task:       NewTask(TaskTypeDigest),
		config:     config,
		settings:   settings,
		httpClient: httpClient,
		parser:     parser,
		store:      store,
		sender:     sender,
		now:        time.Now,
	}
}

func (t *DigestTask) Execute(ctx context.Context) error {
	t.report = t.run(ctx)

	slog.Info("Task completed",
		"type", "Digest",
		"outcome", t.report.Outcome,
		"duration", t.report.Duration,
		"state", t.report.StateStatus,
		"feeds", t.report.FeedsFetched,
		"failed_feeds", t.report.FeedsFailed,
		"selected", t.report.ItemsSelected,
		"delivered", t.report.ItemsDelivered,
		"trimmed", t.report.ItemsTrimmed,
		"format", t.report.Format)

	return t.report.Err
}

func (t *DigestTask) Report() Report {
	return t.report
}

func (t *DigestTask) run(ctx context.Context) Report {
	now := t.now().In(t.settings.Location)
	report := Report{StartedAt: now}

	finish := func(outcome Outcome, err error) Report {
		report.Outcome = outcome
		report.Err = err
		report.Duration = t.now().Sub(now)
		return report
	}

	if !IsAwake(now.Hour(), t.settings.WakeHour, t.settings.QuietHour) {
		slog.Info("Quiet hours, skipping bulletin", "now", now.Format("2006-01-02 15:04 MST"))
		return finish(OutcomeSkippedQuietHours, nil)
	}

	loaded := t.store.Load(ctx)
	report.StateStatus = loaded.Status
	if loaded.Status == database.LoadCorrupt {
		slog.Warn("Delivered-id state unreadable, starting with empty history", "error", loaded.Err)
	}

	pools, err := t.collect(ctx, &report)
	if err != nil {
		return finish(OutcomeFailed, err)
	}

	options := t.settings.Options
	selector := feed.NewSelector(t.config, feed.NewRouter(t.config.Routing), options)
	selection := selector.Run(pools, loaded.Seen)
	report.ItemsSelected = selection.Count()

	if selection.Count() == 0 {
		slog.Info("No new items")
		return finish(OutcomeNoNewItems, nil)
	}

	fitter := feed.NewFitter(feed.NewRenderer(t.config), options.Budget)
	result := fitter.Run(selection, feed.FormatHTML, now)
	report.ItemsTrimmed = len(result.Removed)
	report.Format = feed.FormatHTML

	if result.Selection.Count() == 0 {
		slog.Warn("No item fits the message budget", "budget", options.Budget)
		return finish(OutcomeNoNewItems, nil)
	}

	if t.settings.DryRun {
		if _, err := fmt.Fprintln(t.settings.Output, result.Text); err != nil {
			return finish(OutcomeFailed, fmt.Errorf("failed to write bulletin: %w", err))
		}
		report.ItemsDelivered = result.Selection.Count()
		return finish(OutcomeDryRun, nil)
	}

	delivered, err := t.deliver(ctx, fitter, selection, result, now)
	if err != nil {
		return finish(OutcomeFailed, err)
	}
	report.Format = delivered.format
	report.ItemsTrimmed = len(delivered.result.Removed)

	ids := delivered.result.Selection.IDs()
	report.ItemsDelivered = len(ids)

	// The bulletin is out; a cancelled run must still record it.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	if err := t.store.Commit(commitCtx, ids); err != nil {
		return finish(OutcomeDelivered, fmt.Errorf("failed to commit delivered ids: %w", err))
	}

	return finish(OutcomeDelivered, nil)
}

type delivery struct {
	result feed.FitResult
	format feed.Format
}

// deliver sends the HTML bulletin and, when that fails, one plain-text
// bulletin fitted separately. The returned result is exactly what was sent.
func (t *DigestTask) deliver(ctx context.Context, fitter *feed.Fitter, selection feed.Selection, html feed.FitResult, now time.Time) (delivery, error) {
	htmlErr := t.sender.Send(ctx, html.Text, feed.FormatHTML)
	if htmlErr == nil {
		return delivery{result: html, format: feed.FormatHTML}, nil
	}
	if ctx.Err() != nil {
		return delivery{}, fmt.Errorf("html delivery failed: %w", htmlErr)
	}

	slog.Warn("HTML delivery failed, retrying as plain text", "error", htmlErr)

	plain := fitter.Run(selection, feed.FormatPlain, now)
	if plain.Selection.Count() == 0 {
		return delivery{}, fmt.Errorf("html delivery failed: %w", htmlErr)
	}

	if err := t.sender.Send(ctx, plain.Text, feed.FormatPlain); err != nil {
		return delivery{}, errors.Join(
			fmt.Errorf("html delivery failed: %w", htmlErr),
			fmt.Errorf("plain delivery failed: %w", err))
	}

	return delivery{result: plain, format: feed.FormatPlain}, nil
}

// collect fetches every feed of every category in configured order. A feed
// that fails contributes nothing; only cancellation aborts the run.
func (t *DigestTask) collect(ctx context.Context, report *Report) ([]feed.CategoryPool, error) {
	pools := make([]feed.CategoryPool, 0, len(t.config.Categories))

	for _, category := range t.config.Categories {
		pool := feed.CategoryPool{Category: category.Name}

		for _, url := range category.Feeds {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			items, err := t.loadSource(ctx, url, category.Name)
			if err != nil {
				report.FeedsFailed++
				slog.Warn("Feed skipped", "category", category.Name, "url", url, "error", err)
				continue
			}

			report.FeedsFetched++
			pool.Sources = append(pool.Sources, feed.Source{URL: url, Items: items})
		}

		pools = append(pools, pool)
	}

	return pools, nil
}

func (t *DigestTask) loadSource(ctx context.Context, url, category string) ([]feed.Item, error) {
	data, err := t.fetchFeed(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	metadata, entries, err := t.parser.Run(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := feed.Ingest(entries, category)
	slog.Debug("Feed loaded", "url", url, "title", metadata.Title, "entries", len(entries), "items", len(items))

	return items, nil
}

func (t *DigestTask) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, t.settings.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.settings.UserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
