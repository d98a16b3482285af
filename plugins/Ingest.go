package plugins

import (
	"container/list"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"ywwzwb/imagearchive/common"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
	"ywwzwb/imagearchive/models/config"
)

const IngestPluginID string = "Ingest"

type ingestState int

const (
	ingestIdle ingestState = iota
	ingestProcessing
)

func (s ingestState) Equals(other common.State) bool {
	o, ok := other.(ingestState)
	return ok && o == s
}

type ingestEvent int

const (
	ingestDequeue ingestEvent = iota
	ingestDone
)

func (e ingestEvent) Equals(other common.Event) bool {
	o, ok := other.(ingestEvent)
	return ok && o == e
}

// Ingest queues media in arrival order and processes them one at a time.
type Ingest struct {
	config          config.IngestConfig
	archive         interfaces.IArchiveService
	posts           interfaces.IPostStoreService
	imagePosts      interfaces.IImagePostsService
	queueMtx        sync.Mutex
	queue           *list.List
	notify          chan struct{}
	machine         *common.StateMachine
	ctx             context.Context
	cancel          context.CancelFunc
	stopChain       chan struct{}
	stopFinishChain chan struct{}
	processed       atomic.Uint64
	dropped         atomic.Uint64
}

func newIngest() *Ingest {
	return &Ingest{
		queue:   list.New(),
		notify:  make(chan struct{}, 1),
		machine: newIngestMachine(),
	}
}

func newIngestMachine() *common.StateMachine {
	machine := common.NewStateMachine(ingestIdle)
	machine.AddTransition(ingestIdle, ingestProcessing, ingestDequeue, nil, nil)
	machine.AddTransition(ingestProcessing, ingestIdle, ingestDone, nil, nil)
	return machine
}

func (i *Ingest) Name() string {
	return "Ingest"
}
func (i *Ingest) ID() string {
	return IngestPluginID
}
func (i *Ingest) Load(app interfaces.IApplication) error {
	archive, err := getService[interfaces.IArchiveService](app, i.ID(), ArchivePluginID, interfaces.ArchiveServiceID)
	if err != nil {
		return err
	}
	posts, err := getService[interfaces.IPostStoreService](app, i.ID(), PostStorePluginID, interfaces.PostStoreServiceID)
	if err != nil {
		return err
	}
	imagePosts, err := getService[interfaces.IImagePostsService](app, i.ID(), ImagePostsPluginID, interfaces.ImagePostsServiceID)
	if err != nil {
		return err
	}
	cfg := app.GetAppConfig()
	if slices.Contains(cfg.Plugins, PersistencePluginID) {
		// stores must be restored before the first item, and the final
		// snapshot must come after the last one
		if _, err := getService[interfaces.IPersistenceService](app, i.ID(), PersistencePluginID, interfaces.PersistenceServiceID); err != nil {
			return err
		}
	}
	i.start(cfg.Ingest, archive, posts, imagePosts)
	return nil
}

func (i *Ingest) start(cfg config.IngestConfig, archive interfaces.IArchiveService, posts interfaces.IPostStoreService, imagePosts interfaces.IImagePostsService) {
	i.config = cfg
	i.archive = archive
	i.posts = posts
	i.imagePosts = imagePosts
	i.ctx, i.cancel = context.WithCancel(context.Background())
	i.stopChain = make(chan struct{})
	i.stopFinishChain = make(chan struct{})
	go i.consume()
}

// Unload lets the in-flight item finish; anything still queued is abandoned.
func (i *Ingest) Unload() {
	if i.stopChain == nil {
		return
	}
	close(i.stopChain)
	<-i.stopFinishChain
	i.cancel()
	i.queueMtx.Lock()
	abandoned := i.queue.Len()
	i.queueMtx.Unlock()
	if abandoned > 0 {
		slog.Warn("ingest stopped with queued media", "abandoned", abandoned)
	}
}
func (i *Ingest) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	switch serviceID {
	case interfaces.IngestServiceID:
		return i, nil
	}
	return nil, unsupportedService(serviceID)
}

func (i *Ingest) Enqueue(item models.PendingMedia) {
	i.queueMtx.Lock()
	i.queue.PushBack(item)
	length := i.queue.Len()
	i.queueMtx.Unlock()
	if i.config.WarnQueueLength > 0 && length == i.config.WarnQueueLength+1 {
		slog.Warn("ingest queue is growing", "length", length)
	}
	select {
	case i.notify <- struct{}{}:
	default:
	}
}

func (i *Ingest) Stats() interfaces.IngestStats {
	i.queueMtx.Lock()
	length := i.queue.Len()
	i.queueMtx.Unlock()
	return interfaces.IngestStats{
		QueueLength: length,
		Busy:        i.machine.CurrentState().Equals(ingestProcessing),
		Processed:   i.processed.Load(),
		Dropped:     i.dropped.Load(),
	}
}

func (i *Ingest) dequeue() (models.PendingMedia, bool) {
	i.queueMtx.Lock()
	defer i.queueMtx.Unlock()
	front := i.queue.Front()
	if front == nil {
		return models.PendingMedia{}, false
	}
	return i.queue.Remove(front).(models.PendingMedia), true
}

func (i *Ingest) consume() {
	defer close(i.stopFinishChain)
	for {
		select {
		case <-i.stopChain:
			return
		default:
		}
		item, ok := i.dequeue()
		if !ok {
			select {
			case <-i.stopChain:
				return
			case <-i.notify:
			}
			continue
		}
		i.machine.Handle(ingestDequeue, item)
		i.process(item)
		i.machine.Handle(ingestDone, item)
	}
}

func (i *Ingest) process(item models.PendingMedia) {
	post := item.Post
	post.FillUnknown()
	logger := slog.With("post", post.Key(), "url", item.Media.URL)
	if err := post.Validate(); err != nil {
		logger.Error("drop media with invalid post", "error", err)
		i.dropped.Add(1)
		return
	}
	img, err := i.archive.Resolve(i.ctx, item.Media)
	if err != nil {
		logger.Error("resolve media failed, dropping", "error", err)
		i.dropped.Add(1)
		return
	}
	i.posts.Add(post)
	i.imagePosts.Add(img.Filename, post.Key())
	i.processed.Add(1)
	logger.Debug("media ingested", "filename", img.Filename)
}
