package downloader

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Caches downloads as files in a directory, one per URL. File
// modification time tells the age of an entry.
type Directory struct {
	Path   string
	Now    func() time.Time
	Logger *slog.Logger
}

func NewDirectory(path string) (*Directory, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Directory{
		Path:   path,
		Now:    time.Now,
		Logger: slog.Default(),
	}, nil
}

func (d *Directory) fileName(url string) string {
	return filepath.Join(d.Path, fmt.Sprintf("%x.zip", sha256.Sum256([]byte(url))))
}

func (d *Directory) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {

	path := d.fileName(url)

	if options.Cache {
		info, err := os.Stat(path)
		if err == nil && info.ModTime().Add(options.CacheTTL).After(d.Now()) {
			body, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading cached %s: %w", url, err)
			}
			d.Logger.Debug("download cache hit", "url", url, "bytes", len(body))
			return body, nil
		}
		if err == nil {
			d.Logger.Debug("download cache expired", "url", url)
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}

	if options.Cache {
		// Write then rename, so readers never see a partial file
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, body, 0644); err != nil {
			return nil, fmt.Errorf("writing cache: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return nil, fmt.Errorf("writing cache: %w", err)
		}
	}

	return body, nil
}
