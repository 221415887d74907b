package database

// LoadStatus tells callers how the persisted state was found.
type LoadStatus int

const (
	LoadOK LoadStatus = iota
	LoadAbsent
	LoadCorrupt
)

func (s LoadStatus) String() string {
	switch s {
	case LoadOK:
		return "ok"
	case LoadAbsent:
		return "absent"
	case LoadCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// LoadResult is never an error for the caller: Absent and Corrupt both carry
// an empty Seen set, Err only explains a Corrupt status.
type LoadResult struct {
	Status LoadStatus
	Seen   *SeenSet
	Err    error
}

// state is the on-disk document of the file store.
type state struct {
	PostedIDs []string `json:"posted_ids"`
}
