package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/rss-bulletin/app/database"
	"github.com/lysyi3m/rss-bulletin/app/feed"
)

var digestNow = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	seen      []string
	status    database.LoadStatus
	commits   [][]string
	commitErr error
}

func (s *fakeStore) Load(ctx context.Context) database.LoadResult {
	return database.LoadResult{Status: s.status, Seen: database.NewSeenSet(s.seen)}
}

func (s *fakeStore) Commit(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits = append(s.commits, append([]string(nil), ids...))
	return nil
}

func (s *fakeStore) Close() error {
	return nil
}

type sentMessage struct {
	text   string
	format feed.Format
}

type fakeSender struct {
	fail map[feed.Format]bool
	sent []sentMessage
}

func (s *fakeSender) Send(ctx context.Context, text string, format feed.Format) error {
	s.sent = append(s.sent, sentMessage{text: text, format: format})
	if s.fail[format] {
		return fmt.Errorf("%s rejected", format)
	}
	return nil
}

type testEntry struct {
	id    string
	title string
	age   time.Duration
}

func rssFeed(entries ...testEntry) string {
	var buf strings.Builder
	buf.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>`)
	for _, entry := range entries {
		fmt.Fprintf(&buf, "<item><guid>%s</guid><title>%s</title><link>https://example.com/items/%s/</link><pubDate>%s</pubDate></item>",
			entry.id, entry.title, entry.id, digestNow.Add(-entry.age).Format(time.RFC1123Z))
	}
	buf.WriteString(`</channel></rss>`)
	return buf.String()
}

type feedServer struct {
	*httptest.Server
	mu         sync.Mutex
	requests   int
	userAgents []string
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()

	feeds := map[string]string{
		"/a": rssFeed(
			testEntry{"a1", "Patch Tuesday roundup", 1 * time.Hour},
			testEntry{"a2", "Browser update released", 5 * time.Hour},
		),
		"/b": rssFeed(
			testEntry{"a1", "Patch Tuesday roundup", 1 * time.Hour},
			testEntry{"b1", "Ransomware group disrupted", 3 * time.Hour},
		),
		"/c": rssFeed(
			testEntry{"c1", "New zero-day exploit found in widely used library", 2 * time.Hour},
			testEntry{"c2", "Quarterly results", 4 * time.Hour},
		),
	}

	fs := &feedServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.requests++
		fs.userAgents = append(fs.userAgents, r.UserAgent())
		fs.mu.Unlock()

		body, ok := feeds[r.URL.Path]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(fs.Close)

	return fs
}

func (fs *feedServer) stats() (int, []string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests, append([]string(nil), fs.userAgents...)
}

func digestConfig(baseURL string, extraFeeds ...string) *feed.Config {
	return &feed.Config{
		Title:        "Digest",
		DefaultEmoji: feed.DefaultEmoji,
		Categories: []feed.Category{
			{Name: "Security", Limit: 5, Feeds: append([]string{baseURL + "/a", baseURL + "/b"}, extraFeeds...)},
			{Name: "General", Limit: 5, Feeds: []string{baseURL + "/c"}},
		},
		Routing: []feed.RoutingRule{{Keywords: []string{"zero-day", "exploit"}, Target: "Security"}},
	}
}

func newDigestTask(config *feed.Config, settings DigestSettings, store database.SeenStore, sender Sender) *DigestTask {
	if settings.Options == (feed.Options{}) {
		settings.Options = feed.Options{MaxItems: 10, PerSourceLimit: 30, Budget: 3800}
	}
	if settings.QuietHour == 0 {
		settings.QuietHour = 22
	}
	settings.UserAgent = "bulletin-test/1.0"

	task := NewDigestTask(config, settings, http.DefaultClient, feed.NewParser(), store, sender)
	task.now = func() time.Time { return digestNow }
	return task
}

// linked reports whether the bulletin links to item id.
func linked(text, id string) bool {
	return strings.Contains(text, "/items/"+id+"/")
}

func TestDigestTaskDeliversAndCommits(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{status: database.LoadAbsent}
	sender := &fakeSender{}

	task := newDigestTask(digestConfig(server.URL), DigestSettings{}, store, sender)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	report := task.Report()
	if report.Outcome != OutcomeDelivered {
		t.Fatalf("Expected outcome delivered, got %s (%v)", report.Outcome, report.Err)
	}
	if report.FeedsFetched != 3 || report.FeedsFailed != 0 {
		t.Errorf("Expected 3 fetched feeds, got %d fetched %d failed", report.FeedsFetched, report.FeedsFailed)
	}
	if report.ItemsSelected != 5 || report.ItemsDelivered != 5 {
		t.Errorf("Expected 5 selected and delivered, got %d and %d", report.ItemsSelected, report.ItemsDelivered)
	}

	if len(sender.sent) != 1 || sender.sent[0].format != feed.FormatHTML {
		t.Fatalf("Expected one HTML message, got %v", sender.sent)
	}
	text := sender.sent[0].text

	if strings.Count(text, "/items/a1/") != 1 {
		t.Errorf("Expected duplicate a1 exactly once, got %d", strings.Count(text, "/items/a1/"))
	}

	security := strings.Index(text, "<b>Security</b>")
	general := strings.Index(text, "<b>General</b>")
	zeroDay := strings.Index(text, "/items/c1/")
	if security < 0 || general < 0 || zeroDay < security || zeroDay > general {
		t.Errorf("Expected routed zero-day item under Security, got %q", text)
	}

	if len(store.commits) != 1 {
		t.Fatalf("Expected one commit, got %d", len(store.commits))
	}
	committed := store.commits[0]
	slices.Sort(committed)
	if fmt.Sprint(committed) != "[a1 a2 b1 c1 c2]" {
		t.Errorf("Expected committed [a1 a2 b1 c1 c2], got %v", committed)
	}

	_, userAgents := server.stats()
	for _, ua := range userAgents {
		if ua != "bulletin-test/1.0" {
			t.Errorf("Expected configured user agent, got %q", ua)
		}
	}
}

func TestDigestTaskSkipsSeenItems(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{seen: []string{"a1", "c1"}}
	sender := &fakeSender{}

	task := newDigestTask(digestConfig(server.URL), DigestSettings{}, store, sender)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	text := sender.sent[0].text
	if linked(text, "a1") || linked(text, "c1") {
		t.Errorf("Expected seen items to be skipped, got %q", text)
	}
	if len(store.commits) != 1 || len(store.commits[0]) != 3 || slices.Contains(store.commits[0], "a1") {
		t.Errorf("Expected commit without seen ids, got %v", store.commits[0])
	}
}

func TestDigestTaskNoNewItems(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{seen: []string{"a1", "a2", "b1", "c1", "c2"}}
	sender := &fakeSender{}

	task := newDigestTask(digestConfig(server.URL), DigestSettings{}, store, sender)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if task.Report().Outcome != OutcomeNoNewItems {
		t.Errorf("Expected outcome no_new_items, got %s", task.Report().Outcome)
	}
	if len(sender.sent) != 0 {
		t.Errorf("Expected nothing sent, got %d messages", len(sender.sent))
	}
	if len(store.commits) != 0 {
		t.Errorf("Expected no commit, got %d", len(store.commits))
	}
}

func TestDigestTaskQuietHours(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{}
	sender := &fakeSender{}

	task := newDigestTask(digestConfig(server.URL), DigestSettings{WakeHour: 10, QuietHour: 22}, store, sender)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if task.Report().Outcome != OutcomeSkippedQuietHours {
		t.Errorf("Expected outcome skipped_quiet_hours, got %s", task.Report().Outcome)
	}
	if requests, _ := server.stats(); requests != 0 {
		t.Errorf("Expected no feed requests, got %d", requests)
	}
	if len(sender.sent) != 0 || len(store.commits) != 0 {
		t.Error("Expected no delivery and no commit")
	}
}

func TestDigestTaskQuietHoursUseLocation(t *testing.T) {
	server := newFeedServer(t)
	sender := &fakeSender{}

	// 09:30 UTC is 23:30 in UTC+14.
	location := time.FixedZone("UTC+14", 14*3600)
	task := newDigestTask(digestConfig(server.URL), DigestSettings{Location: location}, &fakeStore{}, sender)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if task.Report().Outcome != OutcomeSkippedQuietHours {
		t.Errorf("Expected outcome skipped_quiet_hours, got %s", task.Report().Outcome)
	}
}

func TestDigestTaskIsolatesFailingFeed(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{}
	sender := &fakeSender{}

	config := digestConfig(server.URL, server.URL+"/broken", "http://127.0.0.1:0/unreachable")
	task := newDigestTask(config, DigestSettings{}, store, sender)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	report := task.Report()
	if report.FeedsFailed != 2 {
		t.Errorf("Expected 2 failed feeds, got %d", report.FeedsFailed)
	}
	if report.Outcome != OutcomeDelivered || report.ItemsDelivered != 5 {
		t.Errorf("Expected 5 delivered items despite failures, got %s with %d", report.Outcome, report.ItemsDelivered)
	}
}

func TestDigestTaskTrimsToBudget(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{}
	sender := &fakeSender{}

	full := newDigestTask(digestConfig(server.URL), DigestSettings{}, &fakeStore{}, &fakeSender{})
	fullSender := full.sender.(*fakeSender)
	if err := full.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	budget := len(fullSender.sent[0].text) - 1

	options := feed.Options{MaxItems: 10, PerSourceLimit: 30, Budget: budget}
	task := newDigestTask(digestConfig(server.URL), DigestSettings{Options: options}, store, sender)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	report := task.Report()
	if report.ItemsTrimmed == 0 {
		t.Fatal("Expected at least one trimmed item")
	}
	text := sender.sent[0].text
	if len(text) > budget {
		t.Errorf("Expected bulletin within %d bytes, got %d", budget, len(text))
	}

	committed := store.commits[0]
	if len(committed) != report.ItemsSelected-report.ItemsTrimmed {
		t.Errorf("Expected %d committed ids, got %d", report.ItemsSelected-report.ItemsTrimmed, len(committed))
	}
	for _, id := range []string{"a1", "a2", "b1", "c1", "c2"} {
		if linked(text, id) != slices.Contains(committed, id) {
			t.Errorf("Commit and bulletin disagree about %s", id)
		}
	}
}

func TestDigestTaskPlainFallback(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{}
	sender := &fakeSender{fail: map[feed.Format]bool{feed.FormatHTML: true}}

	task := newDigestTask(digestConfig(server.URL), DigestSettings{}, store, sender)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("Expected HTML attempt and plain fallback, got %d sends", len(sender.sent))
	}
	plain := sender.sent[1]
	if plain.format != feed.FormatPlain {
		t.Errorf("Expected plain fallback, got %s", plain.format)
	}
	if strings.Contains(plain.text, "<b>") {
		t.Errorf("Expected no markup in fallback, got %q", plain.text)
	}

	report := task.Report()
	if report.Format != feed.FormatPlain || report.Outcome != OutcomeDelivered {
		t.Errorf("Expected delivered as plain, got %s as %s", report.Outcome, report.Format)
	}
	for _, id := range store.commits[0] {
		if !linked(plain.text, id) {
			t.Errorf("Committed id %s missing from delivered text", id)
		}
	}
}

func TestDigestTaskDeliveryFailureCommitsNothing(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{}
	sender := &fakeSender{fail: map[feed.Format]bool{feed.FormatHTML: true, feed.FormatPlain: true}}

	task := newDigestTask(digestConfig(server.URL), DigestSettings{}, store, sender)
	err := task.Execute(context.Background())
	if err == nil {
		t.Fatal("Expected delivery error")
	}
	if !strings.Contains(err.Error(), "plain delivery failed") {
		t.Errorf("Expected both failures reported, got %v", err)
	}

	if task.Report().Outcome != OutcomeFailed {
		t.Errorf("Expected outcome failed, got %s", task.Report().Outcome)
	}
	if len(sender.sent) != 2 {
		t.Errorf("Expected exactly one fallback attempt, got %d sends", len(sender.sent))
	}
	if len(store.commits) != 0 {
		t.Errorf("Expected no commit after failed delivery, got %v", store.commits)
	}
}

func TestDigestTaskCommitFailureIsReported(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{commitErr: errors.New("disk full")}
	sender := &fakeSender{}

	task := newDigestTask(digestConfig(server.URL), DigestSettings{}, store, sender)
	err := task.Execute(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected commit error, got %v", err)
	}
	if task.Report().Outcome != OutcomeDelivered {
		t.Errorf("Expected outcome delivered, got %s", task.Report().Outcome)
	}
}

// cancellingSender accepts the message and then cancels the run, as a
// shutdown signal arriving right after delivery would.
type cancellingSender struct {
	cancel context.CancelFunc
	sent   int
}

func (s *cancellingSender) Send(ctx context.Context, text string, format feed.Format) error {
	s.sent++
	s.cancel()
	return nil
}

func TestDigestTaskCommitsAfterCancelledDelivery(t *testing.T) {
	server := newFeedServer(t)
	store := database.NewFileStore(filepath.Join(t.TempDir(), "state.json"), 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &cancellingSender{cancel: cancel}

	task := newDigestTask(digestConfig(server.URL), DigestSettings{}, store, sender)
	if err := task.Execute(ctx); err != nil {
		t.Fatalf("Expected commit to survive cancellation, got %v", err)
	}

	if sender.sent != 1 {
		t.Fatalf("Expected one message, got %d", sender.sent)
	}
	if task.Report().Outcome != OutcomeDelivered {
		t.Errorf("Expected outcome delivered, got %s", task.Report().Outcome)
	}

	loaded := store.Load(context.Background())
	committed := loaded.Seen.IDs()
	slices.Sort(committed)
	if fmt.Sprint(committed) != "[a1 a2 b1 c1 c2]" {
		t.Errorf("Expected delivered ids [a1 a2 b1 c1 c2] committed, got %v", committed)
	}
}

func TestDigestTaskDryRun(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{}
	sender := &fakeSender{}
	var out bytes.Buffer

	task := newDigestTask(digestConfig(server.URL), DigestSettings{DryRun: true, Output: &out}, store, sender)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if task.Report().Outcome != OutcomeDryRun {
		t.Errorf("Expected outcome dry_run, got %s", task.Report().Outcome)
	}
	if !strings.Contains(out.String(), "<b>Security</b>") {
		t.Errorf("Expected bulletin on output, got %q", out.String())
	}
	if len(sender.sent) != 0 || len(store.commits) != 0 {
		t.Error("Expected no delivery and no commit in dry run")
	}
}

func TestDigestTaskCancelled(t *testing.T) {
	server := newFeedServer(t)
	store := &fakeStore{}
	sender := &fakeSender{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := newDigestTask(digestConfig(server.URL), DigestSettings{}, store, sender)
	if err := task.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(sender.sent) != 0 || len(store.commits) != 0 {
		t.Error("Expected no delivery and no commit after cancellation")
	}
}
