package database

// SeenSet is an insertion-ordered set of delivered ids. The oldest ids come
// first and are the first to go when the set is truncated.
type SeenSet struct {
	ids   []string
	index map[string]struct{}
}

func NewSeenSet(ids []string) *SeenSet {
	s := &SeenSet{index: make(map[string]struct{}, len(ids))}
	s.append(ids)
	return s
}

func (s *SeenSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *SeenSet) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the retained ids, oldest first.
func (s *SeenSet) IDs() []string {
	return append([]string(nil), s.ids...)
}

// Merge appends the ids not already present, in the given order, then drops
// the oldest entries until at most limit remain. A non-positive limit keeps
// everything.
func (s *SeenSet) Merge(ids []string, limit int) {
	s.append(ids)

	if limit <= 0 || len(s.ids) <= limit {
		return
	}

	drop := len(s.ids) - limit
	for _, id := range s.ids[:drop] {
		delete(s.index, id)
	}
	s.ids = append([]string(nil), s.ids[drop:]...)
}

func (s *SeenSet) append(ids []string) {
	for _, id := range ids {
		if id == "" || s.Contains(id) {
			continue
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
}
