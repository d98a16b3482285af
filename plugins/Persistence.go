package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
	"ywwzwb/imagearchive/models/snapshot"

	"golang.org/x/sync/errgroup"
)

const PersistencePluginID string = "Persistence"

const (
	ImagesDocument     = "images.json"
	PostsDocument      = "posts.json"
	ImagePostsDocument = "image_posts.json"
)

// Persistence restores the stores at startup and writes a snapshot of every
// changed store periodically and on unload.
type Persistence struct {
	interval        time.Duration
	archive         interfaces.IArchiveService
	posts           interfaces.IPostStoreService
	imagePosts      interfaces.IImagePostsService
	db              interfaces.IDBService
	imagesDoc       *snapshot.Document[models.ImageRecord]
	postsDoc        *snapshot.Document[models.PostRecord]
	imagePostsDoc   *snapshot.Document[models.ImagePostsRecord]
	persistMtx      sync.Mutex
	written         [3]uint64
	mirrored        bool
	stopChain       chan struct{}
	stopFinishChain chan struct{}
}

const (
	imagesRevision = iota
	postsRevision
	imagePostsRevision
)

func newPersistence() *Persistence {
	return &Persistence{}
}

func (p *Persistence) Name() string {
	return "Persistence"
}
func (p *Persistence) ID() string {
	return PersistencePluginID
}
func (p *Persistence) Load(app interfaces.IApplication) error {
	archive, err := getService[interfaces.IArchiveService](app, p.ID(), ArchivePluginID, interfaces.ArchiveServiceID)
	if err != nil {
		return err
	}
	posts, err := getService[interfaces.IPostStoreService](app, p.ID(), PostStorePluginID, interfaces.PostStoreServiceID)
	if err != nil {
		return err
	}
	imagePosts, err := getService[interfaces.IImagePostsService](app, p.ID(), ImagePostsPluginID, interfaces.ImagePostsServiceID)
	if err != nil {
		return err
	}
	cfg := app.GetAppConfig()
	if slices.Contains(cfg.Plugins, DBPluginID) {
		db, err := getService[interfaces.IDBService](app, p.ID(), DBPluginID, interfaces.DBServiceID)
		if err != nil {
			slog.Warn("database mirror unavailable", "error", err)
		}
		p.db = db
	}
	if err := p.open(cfg.DataDir, archive, posts, imagePosts); err != nil {
		return err
	}
	p.stopChain = make(chan struct{})
	p.stopFinishChain = make(chan struct{})
	p.interval = cfg.Persistence.Interval
	go p.loop()
	return nil
}

// open restores the stores from the documents in dataDir.
func (p *Persistence) open(dataDir string, archive interfaces.IArchiveService, posts interfaces.IPostStoreService, imagePosts interfaces.IImagePostsService) error {
	p.archive = archive
	p.posts = posts
	p.imagePosts = imagePosts
	p.imagesDoc = snapshot.NewDocument[models.ImageRecord](filepath.Join(dataDir, ImagesDocument))
	p.postsDoc = snapshot.NewDocument[models.PostRecord](filepath.Join(dataDir, PostsDocument))
	p.imagePostsDoc = snapshot.NewDocument[models.ImagePostsRecord](filepath.Join(dataDir, ImagePostsDocument))

	for _, sweep := range []func() (int, error){p.imagesDoc.Sweep, p.postsDoc.Sweep, p.imagePostsDoc.Sweep} {
		removed, err := sweep()
		if err != nil {
			return &PluginError{PluginID: p.ID(), Err: err}
		}
		if removed > 0 {
			slog.Info("removed stale temp documents", "count", removed)
		}
	}

	images, err := p.imagesDoc.Load()
	if err != nil {
		return &PluginError{PluginID: p.ID(), Err: err}
	}
	postRecords, err := p.postsDoc.Load()
	if err != nil {
		return &PluginError{PluginID: p.ID(), Err: err}
	}
	imagePostRecords, err := p.imagePostsDoc.Load()
	if err != nil {
		return &PluginError{PluginID: p.ID(), Err: err}
	}
	archive.Restore(images)
	posts.Restore(postRecords)
	imagePosts.Restore(imagePostRecords)
	p.written[imagesRevision] = archive.Revision()
	p.written[postsRevision] = posts.Revision()
	p.written[imagePostsRevision] = imagePosts.Revision()
	slog.Info("stores restored", "images", len(images), "posts", len(postRecords), "imagePosts", len(imagePostRecords))
	return nil
}

func (p *Persistence) Unload() {
	if p.stopChain == nil {
		return
	}
	close(p.stopChain)
	<-p.stopFinishChain
}
func (p *Persistence) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	switch serviceID {
	case interfaces.PersistenceServiceID:
		return p, nil
	}
	return nil, unsupportedService(serviceID)
}

func (p *Persistence) loop() {
	defer close(p.stopFinishChain)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopChain:
			if err := p.Persist(); err != nil {
				slog.Error("final persist failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := p.Persist(); err != nil {
				slog.Error("persist failed", "error", err)
			}
		}
	}
}

// Persist snapshots the association index first, then images, then posts.
// Ingest writes in the opposite order, so every filename and key in the
// index snapshot is present in the later ones.
func (p *Persistence) Persist() error {
	p.persistMtx.Lock()
	defer p.persistMtx.Unlock()

	var snap interfaces.Snapshot
	var revisions [3]uint64
	var changed [3]bool

	revisions[imagePostsRevision] = p.imagePosts.Revision()
	if changed[imagePostsRevision] = revisions[imagePostsRevision] != p.written[imagePostsRevision]; changed[imagePostsRevision] {
		snap.ImagePosts = p.imagePosts.Records()
	}
	revisions[imagesRevision] = p.archive.Revision()
	if changed[imagesRevision] = revisions[imagesRevision] != p.written[imagesRevision]; changed[imagesRevision] {
		snap.Images = p.archive.Records()
	}
	revisions[postsRevision] = p.posts.Revision()
	if changed[postsRevision] = revisions[postsRevision] != p.written[postsRevision]; changed[postsRevision] {
		snap.Posts = p.posts.Records()
	}
	if !changed[imagesRevision] && !changed[postsRevision] && !changed[imagePostsRevision] {
		return p.mirror(snap)
	}

	var group errgroup.Group
	if changed[imagePostsRevision] {
		group.Go(func() error { return p.imagePostsDoc.Save(snap.ImagePosts) })
	}
	if changed[imagesRevision] {
		group.Go(func() error { return p.imagesDoc.Save(snap.Images) })
	}
	if changed[postsRevision] {
		group.Go(func() error { return p.postsDoc.Save(snap.Posts) })
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	for idx := range changed {
		if changed[idx] {
			p.written[idx] = revisions[idx]
		}
	}
	slog.Debug("snapshot written", "images", len(snap.Images), "posts", len(snap.Posts), "imagePosts", len(snap.ImagePosts))
	return p.mirror(snap)
}

// mirror upserts the changed records into the database. The first call
// after startup sends everything, restored data included.
func (p *Persistence) mirror(snap interfaces.Snapshot) error {
	if p.db == nil {
		return nil
	}
	if !p.mirrored {
		snap = interfaces.Snapshot{
			Images:     p.archive.Records(),
			Posts:      p.posts.Records(),
			ImagePosts: p.imagePosts.Records(),
		}
	} else if len(snap.Images) == 0 && len(snap.Posts) == 0 && len(snap.ImagePosts) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.db.Mirror(ctx, snap); err != nil {
		// retried with the next change
		slog.Error("mirror snapshot to database failed", "error", err)
		return nil
	}
	p.mirrored = true
	return nil
}
