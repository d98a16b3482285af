package plugins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
	"ywwzwb/imagearchive/models/config"
	"ywwzwb/imagearchive/util"
)

const ArchivePluginID string = "Archive"

var ErrNotFound = errors.New("not found")

// Archive holds one canonical file per distinct image in ImageDir. Only the
// ingest processor resolves; everything else reads.
type Archive struct {
	imageDir  string
	threshold float64
	fetcher   interfaces.IFetcherService
	pool      interfaces.IComparatorPoolService
	mtx       sync.RWMutex
	images    map[string]models.Image
	order     []string
	staging   atomic.Uint64
	revision  atomic.Uint64
}

func newArchive() *Archive {
	return &Archive{images: make(map[string]models.Image)}
}

func (a *Archive) Name() string {
	return "Archive"
}
func (a *Archive) ID() string {
	return ArchivePluginID
}
func (a *Archive) Load(app interfaces.IApplication) error {
	fetcher, err := getService[interfaces.IFetcherService](app, a.ID(), FetcherPluginID, interfaces.FetcherServiceID)
	if err != nil {
		return err
	}
	pool, err := getService[interfaces.IComparatorPoolService](app, a.ID(), ComparatorPoolPluginID, interfaces.ComparatorPoolServiceID)
	if err != nil {
		return err
	}
	cfg := app.GetAppConfig()
	return a.open(cfg.ImageDir, cfg.Comparator, fetcher, pool)
}

func (a *Archive) open(imageDir string, cfg config.ComparatorConfig, fetcher interfaces.IFetcherService, pool interfaces.IComparatorPoolService) error {
	a.imageDir = imageDir
	a.threshold = cfg.Threshold
	a.fetcher = fetcher
	a.pool = pool
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		return &PluginError{PluginID: a.ID(), Err: fmt.Errorf("create image dir: %w", err)}
	}
	return a.sweep()
}

// sweep deletes staging files left behind by an interrupted run.
func (a *Archive) sweep() error {
	entries, err := os.ReadDir(a.imageDir)
	if err != nil {
		return &PluginError{PluginID: a.ID(), Err: fmt.Errorf("read image dir: %w", err)}
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), util.StagingPrefix) {
			continue
		}
		path := filepath.Join(a.imageDir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("remove stale staging file failed", "path", path, "error", err)
			continue
		}
		slog.Info("removed stale staging file", "path", path)
	}
	return nil
}

func (a *Archive) Unload() {
}
func (a *Archive) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	switch serviceID {
	case interfaces.ArchiveServiceID:
		return a, nil
	}
	return nil, unsupportedService(serviceID)
}

// Resolve returns the canonical image for media, archiving it when no
// existing image is similar enough.
func (a *Archive) Resolve(ctx context.Context, media models.MediaRef) (models.Image, error) {
	filename, err := util.DeriveFilename(media.URL)
	if err != nil {
		return models.Image{}, err
	}
	if img, ok := a.Get(filename); ok {
		return img, nil
	}
	logger := slog.With("url", media.URL, "filename", filename)

	stagedPath := filepath.Join(a.imageDir, util.StagingName(a.staging.Add(1), filename))
	if err := a.fetcher.Fetch(ctx, media.URL, stagedPath); err != nil {
		os.Remove(stagedPath)
		return models.Image{}, fmt.Errorf("fetch %s: %w", media.URL, err)
	}

	result, err := a.pool.FindMatch(ctx, interfaces.MatchRequest{
		CandidatePath: stagedPath,
		Dir:           a.imageDir,
		Filenames:     a.filenames(),
		Threshold:     a.threshold,
	})
	switch {
	case errors.Is(err, util.ErrUndecodableImage):
		os.Remove(stagedPath)
		return models.Image{}, err
	case err != nil:
		logger.Warn("similarity search failed, archiving as new image", "error", err)
	case result.Found:
		os.Remove(stagedPath)
		if img, ok := a.Get(result.Filename); ok {
			logger.Info("duplicate image", "existing", result.Filename, "score", result.Score)
			return img, nil
		}
		return models.Image{}, fmt.Errorf("%w: matched image %s", ErrNotFound, result.Filename)
	}

	finalPath := a.Path(filename)
	if err := os.Rename(stagedPath, finalPath); err != nil {
		os.Remove(stagedPath)
		return models.Image{}, fmt.Errorf("archive %s: %w", filename, err)
	}
	img := models.Image{Filename: filename, Width: media.Width, Height: media.Height}
	if img.Width <= 0 || img.Height <= 0 {
		img.Width, img.Height = models.UnknownDimension, models.UnknownDimension
		if w, h, err := util.DecodeFileConfig(finalPath); err == nil {
			img.Width, img.Height = w, h
		}
	}
	a.add(img)
	logger.Info("archived new image", "width", img.Width, "height", img.Height, "compared", result.Compared)
	return img, nil
}

func (a *Archive) add(img models.Image) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if _, ok := a.images[img.Filename]; !ok {
		a.order = append(a.order, img.Filename)
	}
	a.images[img.Filename] = img
	a.revision.Add(1)
}

func (a *Archive) filenames() []string {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return append([]string(nil), a.order...)
}

func (a *Archive) Get(filename string) (models.Image, bool) {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	img, ok := a.images[filename]
	return img, ok
}

// List returns every image in archive order.
func (a *Archive) List() []models.Image {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	images := make([]models.Image, 0, len(a.order))
	for _, filename := range a.order {
		images = append(images, a.images[filename])
	}
	return images
}

func (a *Archive) Len() int {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return len(a.order)
}

func (a *Archive) Path(filename string) string {
	return filepath.Join(a.imageDir, filename)
}

func (a *Archive) Open(filename string) (io.ReadSeekCloser, error) {
	if _, ok := a.Get(filename); !ok {
		return nil, fmt.Errorf("%w: image %s", ErrNotFound, filename)
	}
	file, err := os.Open(a.Path(filename))
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (a *Archive) Restore(records []models.ImageRecord) {
	for _, record := range records {
		if record.Filename == "" {
			continue
		}
		a.add(record)
	}
}

func (a *Archive) Records() []models.ImageRecord {
	return a.List()
}

func (a *Archive) Revision() uint64 {
	return a.revision.Load()
}
