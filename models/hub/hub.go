// Package hub - resolution and cached auto-download of hub-hosted model
// artifacts.
//
// Families without a local artifact requirement (the zero-shot detector and
// the OCR engine) name their model by a hub identifier such as
// "IDEA-Research/grounding-dino-tiny"; the resolver materializes the needed
// files in a local cache directory, fetching them on first use.
package hub

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// CacheDirEnv overrides the artifact cache location.
const CacheDirEnv = "AUTOLABEL_CACHE_DIR"

const defaultBaseURL = "https://huggingface.co"

// Resolver fetches hub artifacts into a local cache.
type Resolver struct {
	// CacheDir is the root of the local artifact cache.
	CacheDir string
	// BaseURL is the hub endpoint.
	BaseURL string
	// Client is the HTTP client used for downloads.
	Client *http.Client
}

// DefaultResolver returns a resolver caching under $AUTOLABEL_CACHE_DIR or
// ~/.cache/autolabel.
func DefaultResolver() *Resolver {
	dir := os.Getenv(CacheDirEnv)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".cache", "autolabel")
	}
	return &Resolver{
		CacheDir: dir,
		BaseURL:  defaultBaseURL,
		Client:   &http.Client{Timeout: 10 * time.Minute},
	}
}

// Fetch resolves one file of a hub repository to a local path, downloading
// it when not already cached. repo is a hub identifier like
// "IDEA-Research/grounding-dino-tiny".
//
// Returns:
//   - string: Local path of the cached file.
//   - error: An error if the artifact cannot be resolved or downloaded.
func (r *Resolver) Fetch(ctx context.Context, repo, filename string) (string, error) {
	if repo == "" || filename == "" {
		return "", errors.New("hub fetch requires a repository and filename")
	}

	local := filepath.Join(r.CacheDir, filepath.FromSlash(repo), filename)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", errors.Wrap(err, "creating cache directory")
	}

	url := strings.TrimSuffix(r.BaseURL, "/") + "/" + repo + "/resolve/main/" + filename
	glog.Infof("downloading %s/%s -> %s", repo, filename, local)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "building hub request")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "downloading %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	// Download to a temp name first so a partial fetch never looks cached.
	tmp, err := os.CreateTemp(filepath.Dir(local), "."+filename+".part-*")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "writing %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return "", errors.Wrap(err, "installing cached file")
	}

	glog.Infof("cached %s/%s (%d bytes)", repo, filename, fileSize(local))
	return local, nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return fi.Size()
}
