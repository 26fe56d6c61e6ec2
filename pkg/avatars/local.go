package avatars

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
)

// ServePath is the URL path locally stored avatars are served under.
const ServePath = "/data/avatars/"

// LocalStore keeps avatars in a directory of an afero filesystem.
type LocalStore struct {
	fs        afero.Fs
	urlPrefix string
	logger    hclog.Logger
}

// NewLocalStore creates a store rooted at dir. The directory is created if
// it does not exist. URLs are baseURL followed by ServePath and the file
// name; an empty baseURL keeps them relative.
func NewLocalStore(fs afero.Fs, dir, baseURL string, logger hclog.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("avatar directory is required")
	}
	urlPrefix := strings.TrimSuffix(baseURL, "/") + ServePath
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating avatar directory: %w", err)
	}

	return &LocalStore{
		fs:        afero.NewBasePathFs(fs, dir),
		urlPrefix: urlPrefix,
		logger:    logger,
	}, nil
}

func fileName(key string) string {
	return path.Base(strings.TrimPrefix(key, KeyPrefix))
}

func (s *LocalStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	name := fileName(key)
	f, err := s.fs.OpenFile("/"+name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("error creating avatar file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("error writing avatar file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("error closing avatar file: %w", err)
	}

	s.logger.Debug("stored avatar", "key", key)
	return s.urlPrefix + name, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := s.fs.Remove("/" + fileName(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error deleting avatar file: %w", err)
	}
	return nil
}

func (s *LocalStore) KeyFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, s.urlPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(url, s.urlPrefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return KeyPrefix + name, true
}

// URLPrefix returns the prefix of the URLs returned by Put.
func (s *LocalStore) URLPrefix() string {
	return s.urlPrefix
}

// Handler serves stored avatars. It expects requests under ServePath.
// Directories are never listed.
func (s *LocalStore) Handler() http.Handler {
	return http.StripPrefix(ServePath,
		http.FileServer(filesOnly{afero.NewHttpFs(s.fs).Dir("/")}))
}

// filesOnly reports directories as missing.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
