package plugins

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
	"ywwzwb/imagearchive/util"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

const APIPluginID string = "API"

// API serves the archive read-only over http. The only write is
// POST /api/ingest, which just enqueues.
type API struct {
	router     *gin.Engine
	server     *http.Server
	archive    interfaces.IArchiveService
	posts      interfaces.IPostStoreService
	imagePosts interfaces.IImagePostsService
	ingest     interfaces.IIngestService
}

type imageEntry struct {
	Image models.Image  `json:"image"`
	Posts []models.Post `json:"posts"`
}

type imageList struct {
	Images     []imageEntry `json:"images"`
	TotalCount int          `json:"totalCount"`
}

type statusResponse struct {
	interfaces.IngestStats
	Images int `json:"images"`
	Posts  int `json:"posts"`
}

type ingestRequest struct {
	Post  models.Post       `json:"post"`
	Media []models.MediaRef `json:"media"`
}

func newAPI() *API {
	API := API{}
	return &API
}

func (s *API) Name() string {
	return "API"
}
func (s *API) ID() string {
	return APIPluginID
}
func (s *API) Load(app interfaces.IApplication) error {
	archive, err := getService[interfaces.IArchiveService](app, s.ID(), ArchivePluginID, interfaces.ArchiveServiceID)
	if err != nil {
		return err
	}
	posts, err := getService[interfaces.IPostStoreService](app, s.ID(), PostStorePluginID, interfaces.PostStoreServiceID)
	if err != nil {
		return err
	}
	imagePosts, err := getService[interfaces.IImagePostsService](app, s.ID(), ImagePostsPluginID, interfaces.ImagePostsServiceID)
	if err != nil {
		return err
	}
	ingest, err := getService[interfaces.IIngestService](app, s.ID(), IngestPluginID, interfaces.IngestServiceID)
	if err != nil {
		return err
	}
	s.setup(archive, posts, imagePosts, ingest)
	s.server = &http.Server{
		Addr:    ":" + strconv.FormatInt(int64(app.GetAppConfig().APIConfig.Port), 10),
		Handler: s.router,
	}
	go func() {
		// 服务连接
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen", "error", err)
		}
	}()
	return nil
}

func (s *API) setup(archive interfaces.IArchiveService, posts interfaces.IPostStoreService, imagePosts interfaces.IImagePostsService, ingest interfaces.IIngestService) {
	s.archive = archive
	s.posts = posts
	s.imagePosts = imagePosts
	s.ingest = ingest
	s.router = gin.New()
	s.router.Use(sloggin.New(slog.Default()), gin.Recovery())
	api := s.router.Group("/api")
	api.GET("/image/:filename", s.getImage)
	api.GET("/image-posts", s.listImagePosts)
	api.GET("/images", s.listImages)
	api.GET("/status", s.status)
	api.POST("/ingest", s.enqueue)
}

func (s *API) Unload() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	slog.Info("Server stopped")
}
func (s *API) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	return nil, unsupportedService(serviceID)
}

func (s *API) getImage(c *gin.Context) {
	filename := c.Param("filename")
	file, err := s.archive.Open(filename)
	if errors.Is(err, ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	defer file.Close()
	http.ServeContent(c.Writer, c.Request, filename, time.Time{}, file)
}

// postsOf returns the stored posts of filename, skipping keys whose post
// is not stored.
func (s *API) postsOf(filename string) []models.Post {
	posts := make([]models.Post, 0)
	for _, key := range s.imagePosts.Keys(filename) {
		if post, ok := s.posts.Get(key); ok {
			posts = append(posts, post)
		}
	}
	return posts
}

// listImagePosts answers [[filename, [post, ...]], ...].
func (s *API) listImagePosts(c *gin.Context) {
	result := make([][2]any, 0)
	for _, filename := range s.imagePosts.Filenames() {
		result = append(result, [2]any{filename, s.postsOf(filename)})
	}
	c.JSON(http.StatusOK, result)
}

func (s *API) listImages(c *gin.Context) {
	var offset int64 = 0
	var limit int64 = 50
	if v, err := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 32); err == nil && v >= 0 {
		offset = v
	}
	if v, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 32); err == nil && v > 0 {
		limit = v
	}
	images := s.archive.List()
	list := imageList{Images: make([]imageEntry, 0), TotalCount: len(images)}
	start := min(int(offset), len(images))
	end := min(start+int(limit), len(images))
	for _, img := range images[start:end] {
		list.Images = append(list.Images, imageEntry{Image: img, Posts: s.postsOf(img.Filename)})
	}
	c.JSON(http.StatusOK, list)
}

func (s *API) status(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		IngestStats: s.ingest.Stats(),
		Images:      s.archive.Len(),
		Posts:       s.posts.Len(),
	})
}

func (s *API) enqueue(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	req.Post.FillUnknown()
	if err := req.Post.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if req.Post.Timestamp.IsZero() {
		req.Post.Timestamp = time.Now().UTC()
	}
	for _, media := range req.Media {
		if err := util.RequireRemote(media.URL); err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if _, err := util.DeriveFilename(media.URL); err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
	}
	for _, media := range req.Media {
		s.ingest.Enqueue(models.PendingMedia{Post: req.Post, Media: media})
	}
	c.JSON(http.StatusAccepted, map[string]any{"enqueued": len(req.Media)})
}
