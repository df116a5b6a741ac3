package posts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subit-dev/posterd/internal/common"
	"github.com/subit-dev/posterd/internal/logging"
	"github.com/subit-dev/posterd/internal/server/accounts"
	"github.com/subit-dev/posterd/internal/server/ident"
)

type fakeImages struct {
	blocked map[uint64]bool
	// failBlock makes SetBlocked fail for a hash even though Contains
	// still reports it, imitating an eviction racing the caller
	failBlock map[uint64]bool
}

func newFakeImages(hashes ...uint64) *fakeImages {
	f := &fakeImages{blocked: map[uint64]bool{}}
	for _, h := range hashes {
		f.blocked[h] = false
	}
	return f
}

func (f *fakeImages) Contains(hashes ...uint64) bool {
	for _, h := range hashes {
		if _, ok := f.blocked[h]; !ok {
			return false
		}
	}
	return true
}

func (f *fakeImages) SetBlocked(ctx context.Context, hash uint64, blocked bool) error {
	if f.failBlock[hash] {
		return common.ErrImageNotFound
	}
	if _, ok := f.blocked[hash]; !ok {
		return common.ErrImageNotFound
	}
	f.blocked[hash] = blocked
	return nil
}

type fakePerms struct {
	perms map[uint64]accounts.Permissions
}

func (f *fakePerms) HasPermission(id uint64, p accounts.Permission) bool {
	return f.perms[id].Contains(p)
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

const (
	publisherID = uint64(100)
	reviewerID  = uint64(200)
)

func newTestStore(t *testing.T, imgs *fakeImages) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}
	perms := &fakePerms{perms: map[uint64]accounts.Permissions{
		publisherID: {accounts.PermissionPost},
		reviewerID:  {accounts.PermissionApprove, accounts.PermissionCheck},
	}}
	s := NewStore(ident.NewFNV(), imgs, perms, nil, logging.NewDiscard(), nil)
	s.SetClock(clock.Now)
	return s, clock
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestCreate_RangeBound(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	_, err := s.Create(ctx, publisherID, Descriptor{
		Title: "a", Description: "b", Images: []uint64{1},
		Start: day(10), End: day(18), // 8 days
	})
	assert.True(t, errors.Is(err, common.ErrDateOutOfRange))

	_, err = s.Create(ctx, publisherID, Descriptor{
		Title: "a", Description: "b", Images: []uint64{1},
		Start: day(10), End: day(17), // exactly 7
	})
	assert.NoError(t, err)
}

func TestCreate_EndBeforeStart(t *testing.T) {
	s, _ := newTestStore(t, newFakeImages())
	_, err := s.Create(context.Background(), publisherID, Descriptor{
		Title: "a", Start: day(12), End: day(10),
	})
	assert.True(t, errors.Is(err, common.ErrDateOutOfRange))
}

func TestCreate_UnknownImage(t *testing.T) {
	s, _ := newTestStore(t, newFakeImages(1))
	_, err := s.Create(context.Background(), publisherID, Descriptor{
		Title: "a", Images: []uint64{1, 99}, Start: day(10), End: day(11),
	})
	assert.True(t, errors.Is(err, common.ErrImageNotFound))
}

func TestCreate_IdCollision(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()
	d := Descriptor{Title: "same", Description: "same", Images: []uint64{1}, Start: day(10), End: day(11)}

	_, err := s.Create(ctx, publisherID, d)
	require.NoError(t, err)
	_, err = s.Create(ctx, publisherID, d)
	assert.True(t, errors.Is(err, common.ErrConflict))
}

func TestCreate_BlocksImagesAndStartsPending(t *testing.T) {
	imgs := newFakeImages(1, 2)
	s, _ := newTestStore(t, imgs)

	id, err := s.Create(context.Background(), publisherID, Descriptor{
		Title: "t", Description: "d", Images: []uint64{1, 2}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)

	assert.True(t, imgs.blocked[1])
	assert.True(t, imgs.blocked[2])

	e, ok := s.lookup(id)
	require.True(t, ok)
	require.Len(t, e.post.Log, 1)
	assert.Equal(t, StatusPending, e.post.Current().Status)
	assert.Equal(t, publisherID, e.post.Current().Operator)
}

func TestDestroy_ReferenceCountedUnblocking(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	first, err := s.Create(ctx, publisherID, Descriptor{
		Title: "first", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)
	second, err := s.Create(ctx, publisherID, Descriptor{
		Title: "second", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)

	require.NoError(t, s.Destroy(ctx, publisherID, first))
	assert.True(t, imgs.blocked[1], "image still referenced by the surviving post")

	require.NoError(t, s.Destroy(ctx, publisherID, second))
	assert.False(t, imgs.blocked[1])
}

func TestDestroy_PublisherOnly(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	id, err := s.Create(ctx, publisherID, Descriptor{
		Title: "t", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)

	err = s.Destroy(ctx, reviewerID, id)
	assert.True(t, errors.Is(err, common.ErrPermissionDenied))
	assert.True(t, imgs.blocked[1])
}

func TestEdit_PublisherOnly(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	id, err := s.Create(ctx, publisherID, Descriptor{
		Title: "t", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)

	err = s.Edit(ctx, reviewerID, id, []EditVariant{EditTitle{Value: "x"}})
	assert.True(t, errors.Is(err, common.ErrPermissionDenied))
}

func TestEdit_RejectedWhileSubmitted(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	id, err := s.Create(ctx, publisherID, Descriptor{
		Title: "t", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)
	require.NoError(t, s.RequestReview(ctx, publisherID, id, "please"))

	err = s.Edit(ctx, publisherID, id, []EditVariant{EditTitle{Value: "x"}})
	assert.True(t, errors.Is(err, common.ErrConflict))

	// pulling it back re-enables edits
	require.NoError(t, s.CancelSubmission(ctx, publisherID, id))
	assert.NoError(t, s.Edit(ctx, publisherID, id, []EditVariant{EditTitle{Value: "x"}}))
}

func TestEdit_AtomicOnFailure(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	id, err := s.Create(ctx, publisherID, Descriptor{
		Title: "original", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)

	err = s.Edit(ctx, publisherID, id, []EditVariant{
		EditTitle{Value: "changed"},
		EditSchedule{Start: day(10), End: day(19)}, // out of range
	})
	assert.True(t, errors.Is(err, common.ErrDateOutOfRange))

	e, _ := s.lookup(id)
	assert.Equal(t, "original", e.post.Title)
	assert.Equal(t, day(11), e.post.End)
}

func TestEdit_ImagesReblocking(t *testing.T) {
	imgs := newFakeImages(1, 2)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	id, err := s.Create(ctx, publisherID, Descriptor{
		Title: "t", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)

	// unknown hash rejects the whole edit
	err = s.Edit(ctx, publisherID, id, []EditVariant{EditImages{Hashes: []uint64{99}}})
	assert.True(t, errors.Is(err, common.ErrImageNotFound))
	assert.True(t, imgs.blocked[1])

	// swap 1 for 2: 1 unblocks, 2 blocks
	require.NoError(t, s.Edit(ctx, publisherID, id, []EditVariant{EditImages{Hashes: []uint64{2}}}))
	assert.False(t, imgs.blocked[1])
	assert.True(t, imgs.blocked[2])
}

func TestEdit_BlockFailureLeavesPostUntouched(t *testing.T) {
	imgs := newFakeImages(1, 2)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	id, err := s.Create(ctx, publisherID, Descriptor{
		Title: "t", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)

	// image 2 is evicted between the existence check and the block
	imgs.failBlock = map[uint64]bool{2: true}

	err = s.Edit(ctx, publisherID, id, []EditVariant{EditImages{Hashes: []uint64{2}}})
	assert.True(t, errors.Is(err, common.ErrImageNotFound))

	e, _ := s.lookup(id)
	assert.Equal(t, []uint64{1}, e.post.Images, "failed edit must not commit the new image set")
	assert.True(t, imgs.blocked[1], "the post's original image must stay blocked")
	assert.False(t, imgs.blocked[2])
}

func TestTransitions_AlreadyInStatus(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	id, err := s.Create(ctx, publisherID, Descriptor{
		Title: "t", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)

	var inStatus *common.AlreadyInStatusError

	err = s.CancelSubmission(ctx, publisherID, id)
	require.True(t, errors.As(err, &inStatus))
	assert.Equal(t, string(StatusPending), inStatus.Status)

	require.NoError(t, s.RequestReview(ctx, publisherID, id, "look"))
	err = s.RequestReview(ctx, publisherID, id, "again")
	require.True(t, errors.As(err, &inStatus))
	assert.Equal(t, string(StatusSubmitted), inStatus.Status)
}

func TestApprove_Workflow(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	id, err := s.Create(ctx, publisherID, Descriptor{
		Title: "t", Images: []uint64{1}, Start: day(10), End: day(11),
	})
	require.NoError(t, err)

	// rejecting needs a message
	err = s.Approve(ctx, reviewerID, id, false, "")
	assert.True(t, errors.Is(err, common.ErrRejectMessage))

	// accepting a pending post is allowed
	require.NoError(t, s.Approve(ctx, reviewerID, id, true, "fine"))

	var inStatus *common.AlreadyInStatusError
	err = s.Approve(ctx, reviewerID, id, true, "again")
	require.True(t, errors.As(err, &inStatus))
	assert.Equal(t, string(StatusAccepted), inStatus.Status)

	require.NoError(t, s.Approve(ctx, reviewerID, id, false, "changed my mind"))
	e, _ := s.lookup(id)
	assert.Equal(t, StatusRejected, e.post.Current().Status)
	assert.Equal(t, "changed my mind", e.post.Current().Message)
}

func TestIndexConsistencyAfterDestroy(t *testing.T) {
	imgs := newFakeImages(1)
	s, _ := newTestStore(t, imgs)
	ctx := context.Background()

	var ids []uint64
	for _, title := range []string{"a", "b", "c", "d"} {
		id, err := s.Create(ctx, publisherID, Descriptor{
			Title: title, Images: []uint64{1}, Start: day(10), End: day(11),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, s.Destroy(ctx, publisherID, ids[1]))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, e := range s.entries {
		assert.Equal(t, i, s.index[e.post.ID])
	}
	assert.Len(t, s.index, 3)
}
