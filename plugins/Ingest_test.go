package plugins

import (
	"context"
	"errors"
	"io"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
	"ywwzwb/imagearchive/models/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedArchive resolves every url to its base name after an optional
// delay, and records the order it was asked in.
type scriptedArchive struct {
	mtx      sync.Mutex
	resolved []string
	delay    func(rawURL string) time.Duration
	fail     map[string]bool
	gate     chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (a *scriptedArchive) Resolve(ctx context.Context, media models.MediaRef) (models.Image, error) {
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	if n > a.maxSeen.Load() {
		a.maxSeen.Store(n)
	}
	if a.gate != nil {
		<-a.gate
	}
	if a.delay != nil {
		time.Sleep(a.delay(media.URL))
	}
	a.mtx.Lock()
	a.resolved = append(a.resolved, media.URL)
	a.mtx.Unlock()
	if a.fail[media.URL] {
		return models.Image{}, errors.New("boom")
	}
	return models.Image{Filename: path.Base(media.URL), Width: -1, Height: -1}, nil
}

func (a *scriptedArchive) order() []string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return append([]string(nil), a.resolved...)
}

func (a *scriptedArchive) Get(filename string) (models.Image, bool) {
	return models.Image{}, false
}
func (a *scriptedArchive) List() []models.Image {
	return nil
}
func (a *scriptedArchive) Len() int {
	return 0
}
func (a *scriptedArchive) Path(filename string) string {
	return filename
}
func (a *scriptedArchive) Open(filename string) (io.ReadSeekCloser, error) {
	return nil, ErrNotFound
}
func (a *scriptedArchive) Restore(records []models.ImageRecord) {
}
func (a *scriptedArchive) Records() []models.ImageRecord {
	return nil
}
func (a *scriptedArchive) Revision() uint64 {
	return 0
}

func startIngest(t *testing.T, archive interfaces.IArchiveService) (*Ingest, *PostStore, *ImagePostsStore) {
	t.Helper()
	posts := newPostStore()
	imagePosts := newImagePostsStore()
	ingest := newIngest()
	ingest.start(config.IngestConfig{WarnQueueLength: 2}, archive, posts, imagePosts)
	return ingest, posts, imagePosts
}

func pending(authorID, postID, rawURL string) models.PendingMedia {
	return models.PendingMedia{
		Post:  models.Post{AuthorID: authorID, PostID: postID, AuthorName: "name " + authorID},
		Media: models.MediaRef{URL: rawURL},
	}
}

func TestIngestProcessesInSubmissionOrder(t *testing.T) {
	urls := []string{"https://h/1.jpg", "https://h/2.jpg", "https://h/3.jpg", "https://h/4.jpg", "https://h/5.jpg"}
	archive := &scriptedArchive{delay: func(rawURL string) time.Duration {
		// earlier items are slower
		for idx, u := range urls {
			if u == rawURL {
				return time.Duration(len(urls)-idx) * 5 * time.Millisecond
			}
		}
		return 0
	}}
	ingest, posts, imagePosts := startIngest(t, archive)
	defer ingest.Unload()

	for idx, u := range urls {
		ingest.Enqueue(pending("a", string(rune('1'+idx)), u))
	}
	require.Eventually(t, func() bool { return ingest.Stats().Processed == uint64(len(urls)) }, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, urls, archive.order())
	assert.Equal(t, int32(1), archive.maxSeen.Load())
	assert.Equal(t, 5, posts.Len())
	assert.Equal(t, []models.PostKey{"a:1"}, imagePosts.Keys("1.jpg"))
	assert.False(t, ingest.Stats().Busy)
}

func TestIngestDropsFailures(t *testing.T) {
	archive := &scriptedArchive{fail: map[string]bool{"https://h/bad.jpg": true}}
	ingest, posts, imagePosts := startIngest(t, archive)
	defer ingest.Unload()

	ingest.Enqueue(pending("a", "1", "https://h/bad.jpg"))
	ingest.Enqueue(models.PendingMedia{Post: models.Post{AuthorID: "a"}, Media: models.MediaRef{URL: "https://h/x.jpg"}})
	ingest.Enqueue(pending("a", "2", "https://h/good.jpg"))
	require.Eventually(t, func() bool {
		stats := ingest.Stats()
		return stats.Processed == 1 && stats.Dropped == 2
	}, 5*time.Second, 5*time.Millisecond)

	assert.False(t, posts.Has("a:1"))
	assert.True(t, posts.Has("a:2"))
	assert.Empty(t, imagePosts.Keys("bad.jpg"))
	assert.Equal(t, []string{"https://h/bad.jpg", "https://h/good.jpg"}, archive.order())
}

func TestIngestFillsUnknownAuthor(t *testing.T) {
	archive := &scriptedArchive{}
	ingest, posts, imagePosts := startIngest(t, archive)
	defer ingest.Unload()

	ingest.Enqueue(models.PendingMedia{Post: models.Post{PostID: "9"}, Media: models.MediaRef{URL: "https://h/9.jpg"}})
	require.Eventually(t, func() bool { return ingest.Stats().Processed == 1 }, 5*time.Second, 5*time.Millisecond)

	post, ok := posts.Get("none:9")
	require.True(t, ok)
	assert.Equal(t, models.UnknownAuthor, post.AuthorName)
	assert.Equal(t, []models.PostKey{"none:9"}, imagePosts.Keys("9.jpg"))
}

func TestIngestUnloadFinishesInFlightItem(t *testing.T) {
	archive := &scriptedArchive{gate: make(chan struct{})}
	ingest, _, _ := startIngest(t, archive)

	ingest.Enqueue(pending("a", "1", "https://h/1.jpg"))
	ingest.Enqueue(pending("a", "2", "https://h/2.jpg"))
	ingest.Enqueue(pending("a", "3", "https://h/3.jpg"))
	require.Eventually(t, func() bool { return ingest.Stats().Busy }, 5*time.Second, time.Millisecond)

	unloaded := make(chan struct{})
	go func() {
		ingest.Unload()
		close(unloaded)
	}()
	select {
	case <-unloaded:
		t.Fatal("unload returned while an item was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(archive.gate)
	<-unloaded

	stats := ingest.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, 2, stats.QueueLength)
}

func TestIngestDeduplicatesThroughArchive(t *testing.T) {
	fx := newArchiveFixture(t)
	base := scene(200, 150)
	catURL := fx.source(t, "cat.jpg", base, 90)
	copyURL := fx.source(t, "cat_copy.jpg", base, 60)

	ingest, posts, imagePosts := startIngest(t, fx.archive)
	defer ingest.Unload()
	ingest.Enqueue(models.PendingMedia{Post: models.Post{AuthorID: "A", PostID: "1"}, Media: models.MediaRef{URL: catURL}})
	ingest.Enqueue(models.PendingMedia{Post: models.Post{AuthorID: "B", PostID: "2"}, Media: models.MediaRef{URL: copyURL}})
	require.Eventually(t, func() bool { return ingest.Stats().Processed == 2 }, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, fx.archive.Len())
	assert.Equal(t, []string{"cat.jpg"}, imagePosts.Filenames())
	assert.Equal(t, []models.PostKey{"A:1", "B:2"}, imagePosts.Keys("cat.jpg"))
	assert.Equal(t, 2, posts.Len())
}
