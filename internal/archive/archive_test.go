package archive

import (
	"archive/tar"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, dir string, refs map[name.Reference]v1.Image) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("images-%d.tar", time.Now().UnixNano()))
	require.NoError(t, tarball.MultiRefWriteToFile(path, refs))
	return path
}

func randomImage(t *testing.T) v1.Image {
	t.Helper()
	img, err := random.Image(64, 1)
	require.NoError(t, err)
	return img
}

func TestInspectSingleImage(t *testing.T) {
	img := randomImage(t)
	tag, err := name.NewTag("neo4j:5")
	require.NoError(t, err)

	path := writeArchive(t, t.TempDir(), map[name.Reference]v1.Image{tag: img})

	m, err := Inspect(path)
	require.NoError(t, err)

	entry, err := m.Single(path)
	require.NoError(t, err)
	require.Len(t, entry.RepoTags, 1)
	assert.Contains(t, entry.RepoTags[0], "neo4j:5")
	assert.NotEmpty(t, entry.Config)
}

func TestInspectTwoTagsOneImage(t *testing.T) {
	img := randomImage(t)
	a, _ := name.NewTag("app:1")
	b, _ := name.NewTag("app:latest")

	path := writeArchive(t, t.TempDir(), map[name.Reference]v1.Image{a: img, b: img})

	m, err := Inspect(path)
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Len(t, m[0].RepoTags, 2)
}

func TestInspectEmptyManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tar")
	f, err := os.Create(path)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	body := []byte("[]")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "manifest.json", Mode: 0o644, Size: int64(len(body))}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())

	m, err := Inspect(path)
	require.NoError(t, err)

	_, err = m.Single(path)
	var countErr *CountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 0, countErr.Count)
}

func TestInspectMissingFile(t *testing.T) {
	_, err := Inspect(filepath.Join(t.TempDir(), "nope.tar"))
	assert.Error(t, err)
}

// For any archive holding n distinct images, Inspect finds n entries and
// Single succeeds exactly when n == 1.
func TestInspectCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	dir := t.TempDir()
	properties := gopter.NewProperties(parameters)

	properties.Property("entries match images written", prop.ForAll(
		func(n int) bool {
			refs := make(map[name.Reference]v1.Image, n)
			for i := 0; i < n; i++ {
				tag, err := name.NewTag(fmt.Sprintf("img%d:latest", i))
				if err != nil {
					return false
				}
				refs[tag] = randomImage(t)
			}
			if n == 0 {
				return true // an empty MultiRefWrite is covered by TestInspectEmptyManifest
			}

			path := writeArchive(t, dir, refs)
			m, err := Inspect(path)
			if err != nil || len(m) != n {
				return false
			}
			_, err = m.Single(path)
			return (err == nil) == (n == 1)
		},
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
