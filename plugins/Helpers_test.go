package plugins

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
	"ywwzwb/imagearchive/models/config"

	"github.com/stretchr/testify/require"
)

// stubApp hands out already constructed plugins.
type stubApp struct {
	cfg     config.Config
	plugins map[string]interfaces.IPlugin
}

func (a *stubApp) Run() error {
	return nil
}
func (a *stubApp) GetAppConfig() *config.Config {
	return &a.cfg
}
func (a *stubApp) GetService(callerPluginID, targetPluginID string, serviceID interfaces.ServiceID) (interfaces.IService, error) {
	p, ok := a.plugins[targetPluginID]
	if !ok {
		return nil, fmt.Errorf("plugin not found, id:%s", targetPluginID)
	}
	return p.GetService(serviceID)
}

func defaultConfig() config.Config {
	var cfg config.Config
	cfg.Plugins = []string{PostStorePluginID}
	cfg.ApplyDefaults()
	return cfg
}

// scene draws a gradient with a horizontal wave and a bright block.
func scene(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(x)*160/float64(w) + 40*math.Sin(float64(y)/7) + 40
			if x > w/4 && x < w/2 && y > h/3 && y < 2*h/3 {
				v = 230
			}
			c := uint8(math.Max(0, math.Min(255, v)))
			img.Set(x, y, color.RGBA{R: c, G: c, B: uint8(float64(c) * 0.8), A: 255})
		}
	}
	return img
}

func invert(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			dst.Set(x, y, color.RGBA{R: 255 - uint8(r>>8), G: 255 - uint8(g>>8), B: 255 - uint8(bl>>8), A: 255})
		}
	}
	return dst
}

func writeJPEG(t *testing.T, path string, img image.Image, quality int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: quality}))
}

func fileURL(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// stagingFiles lists the temp_ files left in dir.
func stagingFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "temp_") {
			names = append(names, entry.Name())
		}
	}
	return names
}

type countingFetcher struct {
	mtx   sync.Mutex
	inner interfaces.IFetcherService
	urls  []string
}

func (f *countingFetcher) Fetch(ctx context.Context, rawURL, destPath string) error {
	f.mtx.Lock()
	f.urls = append(f.urls, rawURL)
	f.mtx.Unlock()
	return f.inner.Fetch(ctx, rawURL, destPath)
}

func (f *countingFetcher) calls() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return len(f.urls)
}

type archiveFixture struct {
	archive  *Archive
	pool     *ComparatorPool
	fetcher  *countingFetcher
	imageDir string
	srcDir   string
}

func newArchiveFixture(t *testing.T) *archiveFixture {
	t.Helper()
	cfg := defaultConfig()
	pool := newComparatorPool()
	require.NoError(t, pool.start(cfg.Comparator, nil))
	t.Cleanup(pool.Unload)
	srcDir := t.TempDir()
	cfg.Fetcher.LocalRoot = srcDir
	fetcher := newFetcher()
	fetcher.configure(cfg.Fetcher)
	fx := &archiveFixture{
		archive:  newArchive(),
		pool:     pool,
		fetcher:  &countingFetcher{inner: fetcher},
		imageDir: t.TempDir(),
		srcDir:   srcDir,
	}
	require.NoError(t, fx.archive.open(fx.imageDir, cfg.Comparator, fx.fetcher, pool))
	return fx
}

// source writes img as a jpeg into the source dir and returns its file url.
func (fx *archiveFixture) source(t *testing.T, name string, img image.Image, quality int) string {
	t.Helper()
	path := filepath.Join(fx.srcDir, name)
	writeJPEG(t, path, img, quality)
	return fileURL(path)
}

func (fx *archiveFixture) resolve(t *testing.T, rawURL string) models.Image {
	t.Helper()
	img, err := fx.archive.Resolve(context.Background(), models.MediaRef{URL: rawURL})
	require.NoError(t, err)
	return img
}
