package feed

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

type Metadata struct {
	Title string
	Link  string
}

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*Metadata, []Entry, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title: strings.TrimSpace(feed.Title),
		Link:  strings.TrimSpace(feed.Link),
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, p.normalizeItem(item))
	}

	return metadata, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Entry {
	entry := Entry{
		ID:    strings.TrimSpace(item.GUID),
		Title: normalizeText(item.Title),
		Link:  strings.TrimSpace(item.Link),
	}

	if entry.Link == "" && len(item.Links) > 0 {
		entry.Link = strings.TrimSpace(item.Links[0])
	}

	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Identifier) > 0 {
		entry.GUID = strings.TrimSpace(item.DublinCoreExt.Identifier[0])
	}

	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		entry.Published = &published
	}

	if item.UpdatedParsed != nil {
		updated := item.UpdatedParsed.UTC()
		entry.Updated = &updated
	}

	return entry
}

// normalizeText composes unicode (feeds mix precomposed and combining
// diacritics), folds runs of whitespace and trims.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
