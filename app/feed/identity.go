package feed

import (
	"cmp"
)

// MaxIDLength bounds derived identifiers, in characters.
const MaxIDLength = 500

// Identify derives the dedup key and recency timestamp of an entry. The key
// falls back to link and title so entries from feeds without identifiers
// still map to the same id on every run.
func Identify(entry Entry) (string, int64) {
	id := cmp.Or(entry.ID, entry.GUID, entry.Link+"|"+entry.Title)
	if runes := []rune(id); len(runes) > MaxIDLength {
		id = string(runes[:MaxIDLength])
	}

	var timestamp int64
	switch {
	case entry.Published != nil:
		timestamp = entry.Published.UTC().Unix()
	case entry.Updated != nil:
		timestamp = entry.Updated.UTC().Unix()
	}
	if timestamp < 0 {
		timestamp = 0
	}

	return id, timestamp
}

// Ingest turns parsed entries into items of the given category, dropping
// entries without a title or link.
func Ingest(entries []Entry, category string) []Item {
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry.Title == "" || entry.Link == "" {
			continue
		}
		id, timestamp := Identify(entry)
		items = append(items, Item{
			ID:             id,
			Title:          entry.Title,
			Link:           entry.Link,
			Timestamp:      timestamp,
			SourceCategory: category,
		})
	}
	return items
}
