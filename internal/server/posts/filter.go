package posts

import (
	"context"
	"strings"
	"time"

	"github.com/subit-dev/posterd/internal/server/accounts"
)

// PermissionSource answers permission queries for post visibility.
// Satisfied by the account store.
type PermissionSource interface {
	HasPermission(id uint64, p accounts.Permission) bool
}

// Filter narrows a Query. Zero-valued fields are skipped; set fields
// are combined as a conjunction.
type Filter struct {
	// Status matches the post's current status.
	Status *Status
	// Publisher matches the post's publisher account.
	Publisher *uint64
	// Before keeps posts whose display range starts on or before the
	// date, After on or after it.
	Before *time.Time
	After  *time.Time
	// Keywords is a whitespace-split word list; every word must appear
	// in both the title and the description.
	Keywords string
}

func (f *Filter) matches(p *Post) bool {
	if f.Status != nil && p.Current().Status != *f.Status {
		return false
	}
	if f.Publisher != nil && p.Publisher != *f.Publisher {
		return false
	}
	if f.Before != nil && p.Start.After(*f.Before) {
		return false
	}
	if f.After != nil && p.Start.Before(*f.After) {
		return false
	}
	for _, k := range strings.Fields(f.Keywords) {
		if !strings.Contains(p.Title, k) || !strings.Contains(p.Description, k) {
			return false
		}
	}
	return true
}

// visible reports whether the caller may see the post at all: the
// publisher always, holders of the check permission always, and
// everyone with the view permission once the display range has begun.
func (s *Store) visible(p *Post, callerID uint64, today time.Time) bool {
	if p.Publisher == callerID {
		return true
	}
	if !p.Start.After(today) && s.perms.HasPermission(callerID, accounts.PermissionView) {
		return true
	}
	return s.perms.HasPermission(callerID, accounts.PermissionCheck)
}

// Query returns the ids of posts matching the filter that the caller
// is allowed to see.
func (s *Store) Query(ctx context.Context, callerID uint64, f Filter) []uint64 {
	today := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uint64
	for _, e := range s.entries {
		e.mu.RLock()
		if f.matches(&e.post) && s.visible(&e.post, callerID, today) {
			ids = append(ids, e.post.ID)
		}
		e.mu.RUnlock()
	}
	return ids
}

// InfoKind tags an Info result.
type InfoKind string

const (
	InfoFull     InfoKind = "full"
	InfoForeign  InfoKind = "foreign"
	InfoNotFound InfoKind = "not_found"
)

// Info is one per-post result of GetInfo. Full carries the whole post;
// Foreign exposes only what a plain viewer may see of someone else's
// post; NotFound covers unknown and invisible posts alike.
type Info struct {
	Kind     InfoKind `json:"kind"`
	ID       uint64   `json:"id"`
	Post     *Post    `json:"post,omitempty"`
	Title    string   `json:"title,omitempty"`
	Images   []uint64 `json:"images,omitempty"`
	Archived bool     `json:"archived,omitempty"`
}

// GetInfo resolves each requested id to the view the caller is
// entitled to. The publisher and check-permission holders get the full
// post; plain viewers get the foreign projection once the display
// range has begun; everything else reads as not found.
func (s *Store) GetInfo(ctx context.Context, callerID uint64, ids []uint64) []Info {
	today := s.now()
	check := s.perms.HasPermission(callerID, accounts.PermissionCheck)
	view := s.perms.HasPermission(callerID, accounts.PermissionView)

	results := make([]Info, 0, len(ids))
	for _, id := range ids {
		e, ok := s.lookup(id)
		if !ok {
			results = append(results, Info{Kind: InfoNotFound, ID: id})
			continue
		}

		e.mu.RLock()
		p := e.post
		p.Images = append([]uint64(nil), e.post.Images...)
		p.Log = append([]StatusEvent(nil), e.post.Log...)
		e.mu.RUnlock()

		switch {
		case p.Publisher == callerID || check:
			results = append(results, Info{Kind: InfoFull, ID: id, Post: &p})
		case !p.Start.After(today) && view:
			results = append(results, Info{
				Kind:     InfoForeign,
				ID:       id,
				Title:    p.Title,
				Images:   p.Images,
				Archived: p.End.Before(today),
			})
		default:
			results = append(results, Info{Kind: InfoNotFound, ID: id})
		}
	}
	return results
}
