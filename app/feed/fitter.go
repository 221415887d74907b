package feed

import (
	"time"
	"unicode/utf8"
)

// TruncationMarker ends a bulletin whose header alone exceeds the budget.
const TruncationMarker = "…"

type FitResult struct {
	Text      string
	Selection Selection // items that made it into Text
	Removed   []Item    // trimmed items, last removed first
}

type Fitter struct {
	renderer *Renderer
	budget   int
}

func NewFitter(renderer *Renderer, budget int) *Fitter {
	return &Fitter{
		renderer: renderer,
		budget:   budget,
	}
}

// Run renders selection and drops whole items from the end of the last
// non-empty bucket until the payload fits the byte budget. The caller's
// selection is not modified.
func (f *Fitter) Run(selection Selection, format Format, now time.Time) FitResult {
	kept := selection.clone()
	var removed []Item

	text := f.renderer.Run(kept, format, now)
	for f.exceeds(text) {
		item, ok := popLast(&kept)
		if !ok {
			break
		}
		removed = append(removed, item)
		text = f.renderer.Run(kept, format, now)
	}

	if f.exceeds(text) {
		text = f.truncatedHeader(format, now)
	}

	return FitResult{
		Text:      text,
		Selection: kept,
		Removed:   removed,
	}
}

func (f *Fitter) exceeds(text string) bool {
	return f.budget > 0 && len(text) > f.budget
}

// truncatedHeader is the last resort once every item is gone and the header
// alone is over budget: as much of the header as fits, then the marker.
func (f *Fitter) truncatedHeader(format Format, now time.Time) string {
	suffix := "\n" + TruncationMarker
	if room := f.budget - len(suffix); room > 0 {
		return cutBytes(f.renderer.Header(format, now), room) + suffix
	}
	if !f.exceeds(TruncationMarker) {
		return TruncationMarker
	}
	return ""
}

// cutBytes shortens s to at most n bytes without splitting a rune.
func cutBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// popLast removes the last item of the last non-empty bucket.
func popLast(selection *Selection) (Item, bool) {
	for i := len(selection.Buckets) - 1; i >= 0; i-- {
		items := selection.Buckets[i].Items
		if len(items) == 0 {
			continue
		}
		item := items[len(items)-1]
		selection.Buckets[i].Items = items[:len(items)-1]
		return item, true
	}
	return Item{}, false
}
