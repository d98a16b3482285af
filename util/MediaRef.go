package util

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var ErrInvalidMediaRef = errors.New("invalid media reference")

// DeriveFilename returns the archive identity of a media URL: its final path
// segment. Only http, https and file URLs whose last segment is a plain file
// name are accepted.
func DeriveFilename(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("%w: url is empty", ErrInvalidMediaRef)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMediaRef, err)
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidMediaRef, u.Scheme)
	}
	if strings.HasSuffix(u.Path, "/") {
		return "", fmt.Errorf("%w: no file name in %q", ErrInvalidMediaRef, rawURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == ".." || strings.ContainsAny(name, `\:`) {
		return "", fmt.Errorf("%w: no file name in %q", ErrInvalidMediaRef, rawURL)
	}
	if strings.HasPrefix(name, StagingPrefix) {
		return "", fmt.Errorf("%w: reserved file name %q", ErrInvalidMediaRef, name)
	}
	return name, nil
}

// StagingPrefix starts the name of every transient staging file.
const StagingPrefix = "temp_"

// StagingName is the staging file name for counter and the derived filename.
func StagingName(counter uint64, filename string) string {
	return fmt.Sprintf("%s%d%s", StagingPrefix, counter, strings.ToLower(path.Ext(filename)))
}

// RequireRemote rejects media URLs that are not served over http or https.
// file:// references are only for callers that stage media themselves.
func RequireRemote(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMediaRef, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not accepted from remote sources", ErrInvalidMediaRef, u.Scheme)
	}
	return nil
}
