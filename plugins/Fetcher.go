package plugins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models/config"

	"golang.org/x/time/rate"
)

const FetcherPluginID string = "Fetcher"

type Fetcher struct {
	config     config.FetcherConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newFetcher() *Fetcher {
	return &Fetcher{}
}

func (f *Fetcher) Name() string {
	return "Fetcher"
}
func (f *Fetcher) ID() string {
	return FetcherPluginID
}
func (f *Fetcher) Load(app interfaces.IApplication) error {
	f.configure(app.GetAppConfig().Fetcher)
	return nil
}

func (f *Fetcher) configure(cfg config.FetcherConfig) {
	f.config = cfg
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ConnectTimeout > 0 {
		// 设置连接超时时间
		transport.DialContext = (&net.Dialer{
			Timeout: time.Duration(cfg.ConnectTimeout) * time.Second,
		}).DialContext
	}
	f.httpClient = &http.Client{Transport: transport}
	f.limiter = rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
}
func (f *Fetcher) Unload() {
	if f.httpClient != nil {
		f.httpClient.CloseIdleConnections()
	}
}
func (f *Fetcher) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	switch serviceID {
	case interfaces.FetcherServiceID:
		return f, nil
	}
	return nil, unsupportedService(serviceID)
}

// Fetch copies rawURL into destPath. http(s) is downloaded, file:// is a
// pre-staged local file under the configured local root and gets copied.
// destPath is removed on failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destPath string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "file" {
		return copyLocal(f.config.LocalRoot, u.Path, destPath)
	}
	logger := slog.With("url", rawURL)
	var lastErr error
	for idx := 0; idx < int(f.config.ErrorRetryMaxCount); idx++ {
		if idx > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(f.config.ErrorRetryInterval) * time.Second):
			}
		}
		if lastErr = f.download(ctx, rawURL, destPath); lastErr == nil {
			return nil
		}
		logger.Warn("download failed", "attempt", idx+1, "error", lastErr)
	}
	return lastErr
}

func (f *Fetcher) download(ctx context.Context, rawURL, destPath string) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range f.config.Headers {
		req.Header.Add(k, v)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	return writeFile(destPath, resp.Body)
}

var ErrLocalMediaDenied = errors.New("local media outside the configured root")

func copyLocal(root, srcPath, destPath string) error {
	if root == "" {
		return fmt.Errorf("%w: no local root configured", ErrLocalMediaDenied)
	}
	resolved, err := withinRoot(root, srcPath)
	if err != nil {
		return err
	}
	src, err := os.Open(resolved)
	if err != nil {
		return fmt.Errorf("open local media: %w", err)
	}
	defer src.Close()
	return writeFile(destPath, src)
}

// withinRoot resolves srcPath and symlinks on it, and fails unless the
// result lies inside root.
func withinRoot(root, srcPath string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve local root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = real
	}
	resolved, err := filepath.Abs(filepath.FromSlash(srcPath))
	if err != nil {
		return "", fmt.Errorf("resolve local media: %w", err)
	}
	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = real
	}
	rel, err := filepath.Rel(absRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrLocalMediaDenied, srcPath)
	}
	return resolved, nil
}

func writeFile(destPath string, r io.Reader) error {
	output, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	_, err = io.Copy(output, r)
	if closeErr := output.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return nil
}
