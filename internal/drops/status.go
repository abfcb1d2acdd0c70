package drops

import "time"

type LoadStatus string

const (
	LoadIdle    LoadStatus = "idle"
	LoadLoading LoadStatus = "loading"
	LoadSuccess LoadStatus = "success"
	LoadError   LoadStatus = "error"
)

var validNext = map[LoadStatus]map[LoadStatus]bool{
	LoadIdle:    {LoadLoading: true},
	LoadLoading: {LoadSuccess: true, LoadError: true},
	LoadSuccess: {LoadLoading: true},
	LoadError:   {LoadLoading: true},
}

func CanTransition(from, to LoadStatus) bool {
	return validNext[from][to]
}

// LoadState is the per-drop prefetch bookkeeping.
type LoadState struct {
	DropID    string     `json:"drop_id"`
	Status    LoadStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	FetchedAt time.Time  `json:"fetched_at,omitempty"`
}
