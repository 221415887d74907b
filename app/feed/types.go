package feed

import (
	"time"
)

// Feed processing types

// Entry is one raw feed entry as delivered by the parser. Empty strings and
// nil times mean the feed did not supply the field.
type Entry struct {
	ID        string // RSS <guid> or Atom <id>
	GUID      string // alternate identifier (dc:identifier)
	Title     string
	Link      string
	Published *time.Time
	Updated   *time.Time
}

type Item struct {
	ID             string
	Title          string
	Link           string
	Timestamp      int64 // epoch seconds UTC, 0 when unknown
	SourceCategory string
	RoutedCategory string
}

// Source is the parsed pool of one configured feed location.
type Source struct {
	URL   string
	Items []Item
}

// CategoryPool holds the freshly parsed sources of one category, in
// configured source order.
type CategoryPool struct {
	Category string
	Sources  []Source
}

// Bucket is one category of the final selection.
type Bucket struct {
	Category string
	Items    []Item
}

// Selection is the grouped, ordered output of the selector. Buckets follow
// configured category order and may be empty.
type Selection struct {
	Buckets []Bucket
}

// Configuration types

type Config struct {
	Title        string        `yaml:"title"`
	Subtitle     string        `yaml:"subtitle"`
	DefaultEmoji string        `yaml:"default_emoji"`
	Categories   []Category    `yaml:"categories"`
	Routing      []RoutingRule `yaml:"routing"`
	Emoji        []EmojiRule   `yaml:"emoji"`
}

type Category struct {
	Name      string   `yaml:"name"`
	Limit     int      `yaml:"limit"`
	Feeds     []string `yaml:"feeds"`
	FeedsFile string   `yaml:"feeds_file"` // plain list, one URL per line, '#' comments
}

type RoutingRule struct {
	Keywords []string `yaml:"keywords"`
	Target   string   `yaml:"target"`
}

type EmojiRule struct {
	Emoji    string   `yaml:"emoji"`
	Keywords []string `yaml:"keywords"`
}

// Options are the numeric knobs shared by the selector and the fitter.
type Options struct {
	MaxItems       int
	PerSourceLimit int
	Budget         int // bytes
}

// CategoryNames returns configured category names in declared order.
func (c *Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for _, category := range c.Categories {
		names = append(names, category.Name)
	}
	return names
}

// Items returns all selected items in bucket order.
func (s Selection) Items() []Item {
	var items []Item
	for _, bucket := range s.Buckets {
		items = append(items, bucket.Items...)
	}
	return items
}

func (s Selection) Count() int {
	n := 0
	for _, bucket := range s.Buckets {
		n += len(bucket.Items)
	}
	return n
}

// IDs returns the ids of all selected items in bucket order.
func (s Selection) IDs() []string {
	ids := make([]string, 0, s.Count())
	for _, bucket := range s.Buckets {
		for _, item := range bucket.Items {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// clone returns a deep copy so trimming never aliases the caller's buckets.
func (s Selection) clone() Selection {
	buckets := make([]Bucket, len(s.Buckets))
	for i, bucket := range s.Buckets {
		buckets[i] = Bucket{
			Category: bucket.Category,
			Items:    append([]Item(nil), bucket.Items...),
		}
	}
	return Selection{Buckets: buckets}
}
