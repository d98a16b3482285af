package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
	"ywwzwb/imagearchive/models/config"
	"ywwzwb/imagearchive/util"

	"github.com/PuerkitoBio/goquery"
)

const FeedPluginID string = "Feed"

// Feed polls HTML pages listing posts and enqueues every image of each
// post it has not stored yet.
type Feed struct {
	feeds     config.FeedList
	ingest    interfaces.IIngestService
	posts     interfaces.IPostStoreService
	stopChain chan struct{}
	wg        sync.WaitGroup
}

type feedParsers struct {
	authorID   *util.HTMLParser
	postID     *util.HTMLParser
	authorName *util.HTMLParser
	text       *util.HTMLParser
	media      *util.HTMLParser
}

func newFeedParsers(feed *config.FeedConfig) feedParsers {
	return feedParsers{
		authorID:   util.NewParser(&feed.AuthorID),
		postID:     util.NewParser(&feed.PostID),
		authorName: util.NewParser(&feed.AuthorName),
		text:       util.NewParser(&feed.Text),
		media:      util.NewParser(&feed.Media),
	}
}

func newFeed() *Feed {
	return &Feed{stopChain: make(chan struct{})}
}

func (f *Feed) Name() string {
	return "Feed"
}
func (f *Feed) ID() string {
	return FeedPluginID
}
func (f *Feed) Load(app interfaces.IApplication) error {
	f.feeds = app.GetAppConfig().Feeds
	if len(f.feeds) == 0 {
		return fmt.Errorf("no feeds")
	}
	ingest, err := getService[interfaces.IIngestService](app, f.ID(), IngestPluginID, interfaces.IngestServiceID)
	if err != nil {
		return err
	}
	posts, err := getService[interfaces.IPostStoreService](app, f.ID(), PostStorePluginID, interfaces.PostStoreServiceID)
	if err != nil {
		return err
	}
	f.ingest = ingest
	f.posts = posts
	for _, feed := range f.feeds {
		f.wg.Add(1)
		go f.runFeed(feed)
	}
	return nil
}
func (f *Feed) Unload() {
	close(f.stopChain)
	f.wg.Wait()
}
func (f *Feed) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	return nil, unsupportedService(serviceID)
}

func (f *Feed) runFeed(feed *config.FeedConfig) {
	defer f.wg.Done()
	logger := slog.With("feed", feed.ID)
	logger.Info("start feed")
	client := feedClient(feed)
	parsers := newFeedParsers(feed)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-f.stopChain:
			cancel()
		case <-ctx.Done():
		}
	}()
	for {
		enqueued, err := f.poll(ctx, client, feed, parsers)
		if err != nil {
			logger.Error("poll feed failed", "error", err)
		} else {
			logger.Info("feed polled", "enqueued", enqueued)
		}
		select {
		case <-f.stopChain:
			logger.Info("stop feed")
			return
		case <-time.After(feed.Interval):
		}
	}
}

func feedClient(feed *config.FeedConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if feed.ConnectTimeout > 0 {
		// 设置连接超时时间
		transport.DialContext = (&net.Dialer{
			Timeout: time.Duration(feed.ConnectTimeout) * time.Second,
		}).DialContext
	}
	return &http.Client{Transport: transport}
}

// poll fetches the feed page once and returns how many media were enqueued.
func (f *Feed) poll(ctx context.Context, client *http.Client, feed *config.FeedConfig, parsers feedParsers) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	for k, v := range feed.Headers {
		req.Header.Add(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("request feed: unexpected status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("parse feed page: %w", err)
	}
	base := resp.Request.URL
	enqueued := 0
	doc.Find(feed.PostSelector).Each(func(_ int, sel *goquery.Selection) {
		post := models.Post{
			AuthorID:   parsers.authorID.First(sel, ""),
			PostID:     parsers.postID.First(sel, ""),
			AuthorName: parsers.authorName.First(sel, ""),
			Text:       parsers.text.First(sel, ""),
			Timestamp:  time.Now().UTC(),
		}
		post.FillUnknown()
		logger := slog.With("feed", feed.ID, "post", post.Key())
		if err := post.Validate(); err != nil {
			logger.Warn("skip post", "error", err)
			return
		}
		if f.posts.Has(post.Key()) {
			logger.Debug("post already stored")
			return
		}
		for _, ref := range parsers.media.Parse(sel) {
			mediaURL, err := base.Parse(ref)
			if err != nil {
				logger.Warn("skip media with bad url", "url", ref, "error", err)
				continue
			}
			if err := util.RequireRemote(mediaURL.String()); err != nil {
				logger.Warn("skip media with bad url", "url", ref, "error", err)
				continue
			}
			f.ingest.Enqueue(models.PendingMedia{Post: post, Media: models.MediaRef{URL: mediaURL.String()}})
			enqueued++
		}
	})
	return enqueued, nil
}

