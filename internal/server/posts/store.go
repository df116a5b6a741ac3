package posts

import (
	"context"
	"sync"
	"time"

	"github.com/subit-dev/posterd/internal/common"
	"github.com/subit-dev/posterd/internal/logging"
	"github.com/subit-dev/posterd/internal/server/ident"
)

// maxRangeDays caps a post's display range.
const maxRangeDays = 7

// ImageSet is the slice of the image cache the post store depends on.
type ImageSet interface {
	Contains(hashes ...uint64) bool
	SetBlocked(ctx context.Context, hash uint64, blocked bool) error
}

// Gateway persists posts. A nil Gateway disables persistence.
type Gateway interface {
	SavePost(ctx context.Context, p *Post) error
	DeletePost(ctx context.Context, id uint64) error
}

type entry struct {
	mu   sync.RWMutex
	post Post
}

// Store is the post manager. Lock discipline mirrors the account
// store: a coarse lock over the collection plus one lock per entry,
// collection first. Operations that recompute image block state hold
// the collection write lock for the whole scan-and-toggle step.
type Store struct {
	mu      sync.RWMutex
	entries []*entry
	index   map[uint64]int

	hasher  ident.Hasher
	images  ImageSet
	perms   PermissionSource
	gateway Gateway
	logger  logging.Logger
	now     func() time.Time
}

// NewStore builds a Store hydrated with existing posts.
func NewStore(hasher ident.Hasher, images ImageSet, perms PermissionSource, gateway Gateway, logger logging.Logger, existing []Post) *Store {
	s := &Store{
		hasher:  hasher,
		images:  images,
		perms:   perms,
		gateway: gateway,
		logger:  logger.With("component", "posts"),
		now:     time.Now,
	}
	for i := range existing {
		s.entries = append(s.entries, &entry{post: existing[i]})
	}
	s.rebuildIndex()
	return s
}

// SetClock overrides the store's time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) rebuildIndex() {
	s.index = make(map[uint64]int, len(s.entries))
	for i, e := range s.entries {
		s.index[e.post.ID] = i
	}
}

func (s *Store) lookup(id uint64) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.entries[i], true
}

func (s *Store) save(ctx context.Context, p *Post) {
	if s.gateway == nil {
		return
	}
	if err := s.gateway.SavePost(ctx, p); err != nil {
		s.logger.Error(ctx, "post save failed", "id", p.ID, "err", err)
	}
}

// referencedLocked reports whether any post other than exclude still
// references the hash. Callers must hold the collection write lock, so
// entry fields may be read without entry locks.
func (s *Store) referencedLocked(hash uint64, exclude uint64) bool {
	for _, e := range s.entries {
		if e.post.ID == exclude {
			continue
		}
		if e.post.references(hash) {
			return true
		}
	}
	return false
}

func validateRange(start, end time.Time) error {
	if end.Before(start) || start.AddDate(0, 0, maxRangeDays).Before(end) {
		return common.ErrDateOutOfRange
	}
	return nil
}

// Descriptor carries everything needed to create a post.
type Descriptor struct {
	Title       string
	Description string
	Images      []uint64
	Start       time.Time
	End         time.Time
}

// Create registers a new post: validates the display range and image
// references, derives the id from the content, blocks the referenced
// images, and records the initial pending status.
func (s *Store) Create(ctx context.Context, publisher uint64, d Descriptor) (uint64, error) {
	if err := validateRange(d.Start, d.End); err != nil {
		return 0, err
	}
	if !s.images.Contains(d.Images...) {
		return 0, common.ErrImageNotFound
	}

	id := s.hasher.HashPost(d.Title, d.Description, d.Images)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		return 0, common.ErrConflict
	}

	var blocked []uint64
	for _, h := range d.Images {
		if err := s.images.SetBlocked(ctx, h, true); err != nil {
			// an image vanished between the existence check and here;
			// undo the blocks this call made before giving up
			for _, b := range blocked {
				if !s.referencedLocked(b, 0) {
					s.images.SetBlocked(ctx, b, false)
				}
			}
			return 0, err
		}
		blocked = append(blocked, h)
	}

	e := &entry{post: Post{
		ID:          id,
		Images:      append([]uint64(nil), d.Images...),
		Title:       d.Title,
		Description: d.Description,
		Start:       d.Start,
		End:         d.End,
		Publisher:   publisher,
		Log: []StatusEvent{{
			Operator: publisher,
			Status:   StatusPending,
			Time:     s.now(),
		}},
	}}
	s.entries = append(s.entries, e)
	s.index[id] = len(s.entries) - 1

	s.save(ctx, &e.post)
	s.logger.Info(ctx, "post created", "id", id, "publisher", publisher)
	return id, nil
}

// EditVariant is one field change inside an Edit call.
type EditVariant interface{ isEditVariant() }

type EditTitle struct{ Value string }

type EditDescription struct{ Value string }

// EditSchedule replaces the display range.
type EditSchedule struct{ Start, End time.Time }

// EditImages replaces the referenced image set.
type EditImages struct{ Hashes []uint64 }

func (EditTitle) isEditVariant()       {}
func (EditDescription) isEditVariant() {}
func (EditSchedule) isEditVariant()    {}
func (EditImages) isEditVariant()      {}

// Edit applies field changes atomically: every variant is validated
// against a staged copy first, and nothing is committed unless all
// pass. Only the publisher may edit, and not while the post sits in
// review. Image block state is recomputed for a replaced image set.
func (s *Store) Edit(ctx context.Context, editorID, postID uint64, variants []EditVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[postID]
	if !ok {
		return common.ErrNotFound
	}
	e := s.entries[i]

	if e.post.Publisher != editorID {
		return common.ErrPermissionDenied
	}
	if e.post.Current().Status == StatusSubmitted {
		return common.ErrConflict
	}

	staged := e.post
	staged.Images = append([]uint64(nil), e.post.Images...)

	for _, v := range variants {
		switch v := v.(type) {
		case EditTitle:
			staged.Title = v.Value
		case EditDescription:
			staged.Description = v.Value
		case EditSchedule:
			if err := validateRange(v.Start, v.End); err != nil {
				return err
			}
			staged.Start, staged.End = v.Start, v.End
		case EditImages:
			if !s.images.Contains(v.Hashes...) {
				return common.ErrImageNotFound
			}
			staged.Images = append([]uint64(nil), v.Hashes...)
		}
	}

	// derive the block-state delta before committing
	removed := diff(e.post.Images, staged.Images)
	added := diff(staged.Images, e.post.Images)

	var blocked []uint64
	for _, h := range added {
		if err := s.images.SetBlocked(ctx, h, true); err != nil {
			// an image vanished between the existence check and here;
			// undo the blocks this call made and leave the post as it was
			for _, b := range blocked {
				if !s.referencedLocked(b, 0) {
					s.images.SetBlocked(ctx, b, false)
				}
			}
			return err
		}
		blocked = append(blocked, h)
	}

	e.post = staged

	for _, h := range removed {
		if !s.referencedLocked(h, 0) {
			s.images.SetBlocked(ctx, h, false)
		}
	}

	s.save(ctx, &e.post)
	return nil
}

// diff returns the elements of a that are absent from b.
func diff(a, b []uint64) []uint64 {
	var out []uint64
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			out = append(out, x)
		}
	}
	return out
}

// RequestReview submits the post for approval.
func (s *Store) RequestReview(ctx context.Context, editorID, postID uint64, message string) error {
	return s.transition(ctx, postID, func(p *Post) error {
		if p.Publisher != editorID {
			return common.ErrPermissionDenied
		}
		if p.Current().Status == StatusSubmitted {
			return &common.AlreadyInStatusError{Status: string(StatusSubmitted)}
		}
		p.Log = append(p.Log, StatusEvent{
			Operator: editorID,
			Status:   StatusSubmitted,
			Message:  message,
			Time:     s.now(),
		})
		return nil
	})
}

// CancelSubmission pulls the post back to pending.
func (s *Store) CancelSubmission(ctx context.Context, editorID, postID uint64) error {
	return s.transition(ctx, postID, func(p *Post) error {
		if p.Publisher != editorID {
			return common.ErrPermissionDenied
		}
		if p.Current().Status == StatusPending {
			return &common.AlreadyInStatusError{Status: string(StatusPending)}
		}
		p.Log = append(p.Log, StatusEvent{
			Operator: editorID,
			Status:   StatusPending,
			Time:     s.now(),
		})
		return nil
	})
}

// Approve records an accept or reject outcome. Neither requires the
// post to be in review first; only appending the same outcome twice in
// a row is refused. A rejection must carry a message.
func (s *Store) Approve(ctx context.Context, operatorID, postID uint64, accept bool, message string) error {
	return s.transition(ctx, postID, func(p *Post) error {
		target := StatusAccepted
		if !accept {
			if message == "" {
				return common.ErrRejectMessage
			}
			target = StatusRejected
		}
		if p.Current().Status == target {
			return &common.AlreadyInStatusError{Status: string(target)}
		}
		p.Log = append(p.Log, StatusEvent{
			Operator: operatorID,
			Status:   target,
			Message:  message,
			Time:     s.now(),
		})
		return nil
	})
}

// transition runs fn against the post under its entry lock and
// persists when fn leaves a new log entry.
func (s *Store) transition(ctx context.Context, postID uint64, fn func(*Post) error) error {
	e, ok := s.lookup(postID)
	if !ok {
		return common.ErrNotFound
	}

	e.mu.Lock()
	err := fn(&e.post)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	s.save(ctx, &e.post)
	return nil
}

// Snapshot returns a copy of every post. Used for the shutdown dump.
func (s *Store) Snapshot() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Post, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.RLock()
		p := e.post
		p.Images = append([]uint64(nil), e.post.Images...)
		p.Log = append([]StatusEvent(nil), e.post.Log...)
		e.mu.RUnlock()
		out = append(out, p)
	}
	return out
}

// Destroy removes the post. Each image the post referenced is
// unblocked only if no surviving post still references it.
func (s *Store) Destroy(ctx context.Context, editorID, postID uint64) error {
	s.mu.Lock()
	i, ok := s.index[postID]
	if !ok {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	e := s.entries[i]
	if e.post.Publisher != editorID {
		s.mu.Unlock()
		return common.ErrPermissionDenied
	}

	imgs := append([]uint64(nil), e.post.Images...)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.rebuildIndex()

	for _, h := range imgs {
		if !s.referencedLocked(h, 0) {
			s.images.SetBlocked(ctx, h, false)
		}
	}
	s.mu.Unlock()

	if s.gateway != nil {
		if err := s.gateway.DeletePost(ctx, postID); err != nil {
			s.logger.Error(ctx, "post delete failed", "id", postID, "err", err)
		}
	}
	s.logger.Info(ctx, "post destroyed", "id", postID)
	return nil
}
