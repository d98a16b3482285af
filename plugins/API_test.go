package plugins

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	api    *API
	ingest *recordingIngest
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	imageDir := t.TempDir()
	archive := newArchive()
	require.NoError(t, archive.open(imageDir, defaultConfig().Comparator, nil, nil))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "cat.jpg"), []byte("cat bytes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "dog.jpg"), []byte("dog bytes"), 0644))
	archive.Restore([]models.ImageRecord{
		{Filename: "cat.jpg", Width: 10, Height: 10},
		{Filename: "dog.jpg", Width: 20, Height: 20},
	})
	posts := newPostStore()
	posts.Add(models.Post{AuthorID: "A", PostID: "1", AuthorName: "alice"})
	posts.Add(models.Post{AuthorID: "B", PostID: "2", AuthorName: "bob"})
	imagePosts := newImagePostsStore()
	imagePosts.Add("cat.jpg", "A:1")
	imagePosts.Add("cat.jpg", "B:2")
	imagePosts.Add("cat.jpg", "C:3")
	imagePosts.Add("dog.jpg", "B:2")

	fx := &apiFixture{api: newAPI(), ingest: &recordingIngest{stats: interfaces.IngestStats{QueueLength: 4, Busy: true, Processed: 9}}}
	fx.api.setup(archive, posts, imagePosts, fx.ingest)
	return fx
}

func (fx *apiFixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	fx.api.router.ServeHTTP(w, req)
	return w
}

func TestAPIGetImage(t *testing.T) {
	fx := newAPIFixture(t)
	w := fx.do(http.MethodGet, "/api/image/cat.jpg", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cat bytes", w.Body.String())

	w = fx.do(http.MethodGet, "/api/image/bird.jpg", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIListImagePosts(t *testing.T) {
	fx := newAPIFixture(t)
	w := fx.do(http.MethodGet, "/api/image-posts", "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries [][]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)

	var filename string
	var posts []models.Post
	require.NoError(t, json.Unmarshal(entries[0][0], &filename))
	require.NoError(t, json.Unmarshal(entries[0][1], &posts))
	assert.Equal(t, "cat.jpg", filename)
	require.Len(t, posts, 2)
	assert.Equal(t, "alice", posts[0].AuthorName)
	assert.Equal(t, "bob", posts[1].AuthorName)
}

func TestAPIListImages(t *testing.T) {
	fx := newAPIFixture(t)
	w := fx.do(http.MethodGet, "/api/images?offset=1&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list imageList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.TotalCount)
	require.Len(t, list.Images, 1)
	assert.Equal(t, "dog.jpg", list.Images[0].Image.Filename)
	require.Len(t, list.Images[0].Posts, 1)
	assert.Equal(t, "B", list.Images[0].Posts[0].AuthorID)

	w = fx.do(http.MethodGet, "/api/images?offset=10", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Images)
}

func TestAPIStatus(t *testing.T) {
	fx := newAPIFixture(t)
	w := fx.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"queueLength":4,"busy":true,"processed":9,"dropped":0,"images":2,"posts":2}`, w.Body.String())
}

func TestAPIIngest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKeys []models.PostKey
	}{
		{
			name:     "two media",
			body:     `{"post":{"authorId":"A","postId":"5","text":"hi"},"media":[{"url":"https://h/a.jpg","width":3,"height":4},{"url":"https://h/b.jpg"}]}`,
			wantCode: http.StatusAccepted,
			wantKeys: []models.PostKey{"A:5", "A:5"},
		},
		{
			name:     "missing author",
			body:     `{"post":{"postId":"6"},"media":[{"url":"https://h/c.jpg"}]}`,
			wantCode: http.StatusAccepted,
			wantKeys: []models.PostKey{"none:6"},
		},
		{name: "missing post id", body: `{"post":{"authorId":"A"},"media":[{"url":"https://h/c.jpg"}]}`, wantCode: http.StatusBadRequest},
		{name: "invalid url", body: `{"post":{"authorId":"A","postId":"7"},"media":[{"url":"https://h/ok.jpg"},{"url":"ftp://h/c.jpg"}]}`, wantCode: http.StatusBadRequest},
		{name: "local file", body: `{"post":{"authorId":"A","postId":"8"},"media":[{"url":"file:///etc/passwd"}]}`, wantCode: http.StatusBadRequest},
		{name: "local file among remote", body: `{"post":{"authorId":"A","postId":"8"},"media":[{"url":"https://h/ok.jpg"},{"url":"file:///home/user/.ssh/id_rsa.jpg"}]}`, wantCode: http.StatusBadRequest},
		{name: "malformed", body: `{"post":`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newAPIFixture(t)
			w := fx.do(http.MethodPost, "/api/ingest", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			var keys []models.PostKey
			for _, item := range fx.ingest.items {
				keys = append(keys, item.Post.Key())
			}
			assert.Equal(t, tt.wantKeys, keys)
		})
	}
}
