package file

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"nstbot/internal/core/domain"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"
)

const defaultExtension = ".jpg"

// DownloadFile returns the byte content of a file on a provided URL.
func DownloadFile(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		err = fmt.Errorf("error creating request %w", err)
		log.Error().Err(err).Msg("could not build download request")
		return nil, err
	}

	client := &http.Client{}
	res, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error executing request %w", err)
		log.Error().Err(err).Msg("download failed")
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected status code on download: %d", res.StatusCode)
		log.Error().Err(err).Send()
		return nil, err
	}

	buf, err := io.ReadAll(res.Body)
	if err != nil {
		err = fmt.Errorf("error reading response %w", err)
		log.Error().Err(err).Send()
		return nil, err
	}

	return buf, nil
}

// UniqueName returns a collision-free file name with the given extension.
func UniqueName(extension string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}

	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}

	return id.String() + extension, nil
}

// SaveFile stores bytes under a fresh name in dir and returns the path.
func SaveFile(dir string, data []byte, extension string) (string, error) {
	name, err := UniqueName(extension)
	if err != nil {
		return "", err
	}

	log.Debug().Int("bytes", len(data)).Str("extension", extension).Str("dir", dir).Msg("creating file")

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		err = fmt.Errorf("error writing file %w", err)
		log.Error().Err(err).Send()
		return "", err
	}

	log.Debug().Str("path", p).Msg("created file")

	return p, nil
}

// GetFile retrieves a stored file by its path, as returned from SaveFile().
func GetFile(path string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("error reading file %w", err)
		log.Error().Err(err).Send()
		return nil, err
	}

	return buf, nil
}

// RemoveFile removes the file at the given path and logs success or failure.
func RemoveFile(path string) {
	err := os.Remove(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("could not clean up file")
		return
	}
	log.Debug().Str("path", path).Msg("cleaned up file")
}

// Fetcher downloads user images into a local directory.
type Fetcher struct {
	dir string
}

func NewFetcher(dir string) (*Fetcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating image directory %w", err)
	}
	return &Fetcher{dir: dir}, nil
}

// Fetch downloads url and stores it under a fresh name, keeping the extension of the remote file.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	data, err := DownloadFile(ctx, url)
	if err != nil {
		return "", err
	}

	return SaveFile(f.dir, data, extensionOf(url))
}

// Read returns the content of a stored file.
func (f *Fetcher) Read(path string) ([]byte, error) {
	return GetFile(path)
}

func extensionOf(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	ext := path.Ext(url)
	if ext == "" || len(ext) > 5 {
		return defaultExtension
	}
	return strings.ToLower(ext)
}

// ArtifactAllocator hands out collision-free output paths in dir.
func ArtifactAllocator(dir, extension string) domain.PathAllocator {
	return func() (string, error) {
		name, err := UniqueName(extension)
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, name), nil
	}
}
