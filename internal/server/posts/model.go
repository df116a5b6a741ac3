// Package posts implements the post collection and its approval
// workflow. A post's acceptance status is an append-only event log,
// newest last; the current status is the last entry.
package posts

import "time"

// Status is a post's workflow state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

// StatusEvent is one entry in a post's acceptance log.
type StatusEvent struct {
	Operator uint64    `json:"operator"`
	Status   Status    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// Post is a submission referencing uploaded images by content hash.
// The display range is a pair of dates bounding when the post is shown.
type Post struct {
	ID          uint64        `json:"id"`
	Images      []uint64      `json:"images"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Publisher   uint64        `json:"publisher"`
	Log         []StatusEvent `json:"log"`
}

// Current returns the latest status event. The log is never empty for
// a post that exists in the store.
func (p *Post) Current() StatusEvent {
	return p.Log[len(p.Log)-1]
}

func (p *Post) references(hash uint64) bool {
	for _, h := range p.Images {
		if h == hash {
			return true
		}
	}
	return false
}
