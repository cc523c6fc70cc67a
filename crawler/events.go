package crawler

import "github.com/lukemcguire/linkrot/result"

// Phase identifies the stage of a run an Event belongs to.
type Phase int

const (
	PhaseDiscover Phase = iota // post URLs found
	PhaseFetchPosts            // one post page fetched
	PhaseCheckLinks            // one link checked
)

// String returns a short label for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseDiscover:
		return "discovering posts"
	case PhaseFetchPosts:
		return "reading posts"
	case PhaseCheckLinks:
		return "checking links"
	default:
		return "working"
	}
}

// Event reports progress within a phase. Done and Total count items of the
// current phase; Broken counts broken items seen so far in it.
type Event struct {
	Phase    Phase
	URL      string
	Category result.Category
	Done     int
	Total    int
	Broken   int
}
