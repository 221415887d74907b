package feed

import (
	"cmp"
	"slices"
)

// SeenSet answers whether an id was delivered by an earlier run.
type SeenSet interface {
	Contains(id string) bool
}

type Selector struct {
	config  *Config
	router  *Router
	options Options
}

func NewSelector(config *Config, router *Router, options Options) *Selector {
	return &Selector{
		config:  config,
		router:  router,
		options: options,
	}
}

// Run picks the items of this run from the parsed pools. Categories are
// visited in configured order, so earlier categories win the global cap.
func (s *Selector) Run(pools []CategoryPool, seen SeenSet) Selection {
	knownCategories := s.config.CategoryNames()

	poolsByCategory := make(map[string]CategoryPool, len(pools))
	for _, pool := range pools {
		poolsByCategory[pool.Category] = pool
	}

	claimed := make(map[string]bool)
	routed := make(map[string][]Item, len(s.config.Categories))

	for _, category := range s.config.Categories {
		candidates := s.collectCandidates(poolsByCategory[category.Name], seen, claimed)

		sortByRecency(candidates)
		if len(candidates) > category.Limit {
			candidates = candidates[:category.Limit]
		}

		for _, item := range candidates {
			item.RoutedCategory = s.router.Route(item.Title, category.Name, knownCategories)
			routed[item.RoutedCategory] = append(routed[item.RoutedCategory], item)
		}
	}

	selection := Selection{Buckets: make([]Bucket, 0, len(s.config.Categories))}
	total := 0

	for _, category := range s.config.Categories {
		bucket := Bucket{Category: category.Name}

		items := routed[category.Name]
		sortByRecency(items)

		for _, item := range items {
			if len(bucket.Items) >= category.Limit || s.globalCapReached(total) {
				break
			}
			bucket.Items = append(bucket.Items, item)
			total++
		}

		selection.Buckets = append(selection.Buckets, bucket)
	}

	return selection
}

// collectCandidates walks the first PerSourceLimit entries of every source of
// a category, skipping delivered ids and ids already claimed in this run.
func (s *Selector) collectCandidates(pool CategoryPool, seen SeenSet, claimed map[string]bool) []Item {
	var candidates []Item

	for _, source := range pool.Sources {
		window := source.Items
		if s.options.PerSourceLimit > 0 && len(window) > s.options.PerSourceLimit {
			window = window[:s.options.PerSourceLimit]
		}

		for _, item := range window {
			if item.Title == "" || item.Link == "" {
				continue
			}
			if claimed[item.ID] || (seen != nil && seen.Contains(item.ID)) {
				continue
			}
			claimed[item.ID] = true
			candidates = append(candidates, item)
		}
	}

	return candidates
}

func (s *Selector) globalCapReached(total int) bool {
	return s.options.MaxItems > 0 && total >= s.options.MaxItems
}

// sortByRecency orders items newest first. Items without a timestamp go last;
// ties keep their original order.
func sortByRecency(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		switch {
		case a.Timestamp == b.Timestamp:
			return 0
		case a.Timestamp == 0:
			return 1
		case b.Timestamp == 0:
			return -1
		}
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
}
