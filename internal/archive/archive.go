// Package archive reads image archives (docker save / OCI layout for docker
// load) without a daemon, to count the images an archive will load.
package archive

import (
	"fmt"
	"io"
	"os"

	"github.com/google/go-containerregistry/pkg/v1/tarball"
)

// Entry is one image in an archive manifest.
type Entry struct {
	Config   string   `json:"config"`
	RepoTags []string `json:"repo_tags"`
}

// Manifest lists the images in an archive.
type Manifest []Entry

// CountError reports an archive that does not hold exactly one image.
type CountError struct {
	Path  string
	Count int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("%s: expected exactly one image in archive, found %d", e.Path, e.Count)
}

// Inspect reads manifest.json from the archive at path.
func Inspect(path string) (Manifest, error) {
	opener := func() (io.ReadCloser, error) {
		return os.Open(path)
	}

	m, err := tarball.LoadManifest(opener)
	if err != nil {
		return nil, fmt.Errorf("read manifest of %s: %w", path, err)
	}

	manifest := make(Manifest, 0, len(m))
	for _, d := range m {
		manifest = append(manifest, Entry{
			Config:   d.Config,
			RepoTags: d.RepoTags,
		})
	}
	return manifest, nil
}

// Single returns the only entry, or a *CountError.
func (m Manifest) Single(path string) (Entry, error) {
	if len(m) != 1 {
		return Entry{}, &CountError{Path: path, Count: len(m)}
	}
	return m[0], nil
}
