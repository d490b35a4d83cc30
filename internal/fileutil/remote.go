package fileutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/lepinkainen/shelfsource/internal/ratelimit"
)

// fileNamespace scopes RemoteFile identifiers so they never collide with other uuid v5 ids
var fileNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("shelfsource/file"))

// RemoteFile is the identity of a file that was fetched from a URL and stored locally.
type RemoteFile struct {
	// ID is stable for a given local path
	ID string `json:"id"`
	// URL is the source the file was materialized from
	URL string `json:"url"`
	// Path is the local file location
	Path string `json:"path"`
	// Modified is the local file's modification time
	Modified time.Time `json:"modified"`
	// Size in bytes
	Size int64 `json:"size"`
	// Downloaded reports whether this call fetched the file over the network
	Downloaded bool `json:"-"`
}

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	// Dir is where materialized files are written
	Dir string
	// Client is the HTTP client; a 30s-timeout client is used when nil
	Client *http.Client
	// Limiter throttles requests per host; nil disables throttling
	Limiter *ratelimit.HostLimiter
	// MaxWidth resizes images wider than this many pixels; 0 keeps the original bytes
	MaxWidth int
	// Force re-downloads files that already exist locally
	Force bool
}

// Downloader materializes remote files into a local directory.
// Files are named after a hash of their source URL, so the same URL always
// maps to the same local path.
type Downloader struct {
	opts DownloaderOptions
}

// NewDownloader creates a Downloader
func NewDownloader(opts DownloaderOptions) *Downloader {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Downloader{opts: opts}
}

// LocalPath returns where the file for rawURL is stored
func (d *Downloader) LocalPath(rawURL string) string {
	name := strconv.FormatUint(xxhash.Sum64String(rawURL), 16) + extensionFor(rawURL)
	return filepath.Join(d.opts.Dir, name)
}

// Materialize fetches rawURL into the local directory and returns its identity.
// An existing local copy is reused unless Force is set.
func (d *Downloader) Materialize(ctx context.Context, rawURL string) (*RemoteFile, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("no URL to materialize")
	}

	localPath := d.LocalPath(rawURL)

	if FileExists(localPath) && !d.opts.Force {
		slog.Debug("Remote file already materialized, skipping download", "path", localPath)
		return describe(rawURL, localPath, false)
	}

	if err := os.MkdirAll(d.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	if d.opts.Limiter != nil {
		if err := d.opts.Limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, rawURL)
	}

	if err := d.store(resp.Body, localPath); err != nil {
		return nil, err
	}

	slog.Info("Downloaded remote file", "url", rawURL, "path", localPath)
	return describe(rawURL, localPath, true)
}

// store writes body to localPath through a temporary file so a failed
// download never leaves a truncated file that would be reused later.
func (d *Downloader) store(body io.Reader, localPath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	_, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return fmt.Errorf("failed to write downloaded file: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close downloaded file: %w", closeErr)
	}

	if d.opts.MaxWidth > 0 && resizable(localPath) {
		return resizeImage(tmpPath, localPath, d.opts.MaxWidth)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return fmt.Errorf("failed to move downloaded file into place: %w", err)
	}
	return nil
}

func resizeImage(src, dst string, maxWidth int) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	if err := imaging.Save(img, dst, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("failed to save resized image: %w", err)
	}
	return nil
}

// resizable reports whether imaging can re-encode files with this name
func resizable(name string) bool {
	_, err := imaging.FormatFromFilename(name)
	return err == nil
}

func describe(rawURL, localPath string, downloaded bool) (*RemoteFile, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat materialized file: %w", err)
	}

	abs, err := filepath.Abs(localPath)
	if err != nil {
		abs = localPath
	}

	return &RemoteFile{
		ID:         uuid.NewSHA1(fileNamespace, []byte(abs)).String(),
		URL:        rawURL,
		Path:       localPath,
		Modified:   info.ModTime().UTC(),
		Size:       info.Size(),
		Downloaded: downloaded,
	}, nil
}

// extensionFor returns the lowercase file extension of the URL path, or .jpg
// when the path has none that imaging can write.
func extensionFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	default:
		return ".jpg"
	}
}
